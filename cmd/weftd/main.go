// Command weftd runs the workflow tagging daemon: HTTP + MCP API server,
// timeout autopilot, and scheduled display-value sync.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hylla/weft/internal/adapters/server"
	"github.com/hylla/weft/internal/adapters/storage/sqlite"
	"github.com/hylla/weft/internal/app"
	"github.com/hylla/weft/internal/config"
	"github.com/hylla/weft/internal/platform"
)

var version = "dev"

var (
	flagConfigPath string
	flagDBPath     string
	flagDevMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "weftd",
	Short: "Tag-based workflow engine with timeout autopilot and a universal relationship store",
	Long: `weftd drives object lifecycles through configured workflows: states are
plain tags, transitions warn on unsatisfied prerequisites instead of
blocking, and timed-out states advance automatically. It also maintains
named relationships between objects with soft-delete and display-value
synchronization.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server with the autopilot and sync loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print resolved config and data paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dev_mode: %t\n", flagDevMode)
		fmt.Fprintf(out, "config: %s\n", configPath(paths))
		fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
		fmt.Fprintf(out, "db: %s\n", dbPath(paths))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the weftd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "weftd %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config TOML")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "path to sqlite database")
	rootCmd.PersistentFlags().BoolVar(&flagDevMode, "dev", version == "dev", "use dev mode paths (weft-dev)")
	rootCmd.AddCommand(serveCmd, pathsCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, rootCmd, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// resolvePaths picks platform-appropriate config/data locations honoring
// the dev flag.
func resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: "weft",
		DevMode: flagDevMode,
	})
}

// configPath resolves the effective config file path from flag, env, then
// platform default.
func configPath(paths platform.Paths) string {
	if flagConfigPath != "" {
		return flagConfigPath
	}
	if envPath := strings.TrimSpace(os.Getenv("WEFT_CONFIG")); envPath != "" {
		return envPath
	}
	return paths.ConfigPath
}

// dbPath resolves the effective database path from flag, env, then
// platform default.
func dbPath(paths platform.Paths) string {
	if strings.TrimSpace(flagDBPath) != "" {
		return flagDBPath
	}
	if envPath := strings.TrimSpace(os.Getenv("WEFT_DB_PATH")); envPath != "" {
		return envPath
	}
	return paths.DBPath
}

// runServe wires the storage, engines, and server together and blocks
// until the context is cancelled.
func runServe(ctx context.Context) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	cfgPath := configPath(paths)
	resolvedDB := dbPath(paths)

	cfg, err := config.Load(cfgPath, config.Default(resolvedDB))
	if err != nil {
		return fmt.Errorf("load config %q: %w", cfgPath, err)
	}
	if strings.TrimSpace(flagDBPath) != "" {
		cfg.Database.Path = flagDBPath
	}

	level, err := charmLog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parse logging level %q: %w", cfg.Logging.Level, err)
	}
	logger := charmLog.NewWithOptions(os.Stderr, charmLog.Options{
		Level:           level,
		Prefix:          "weftd",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})
	logger.Info("configuration loaded", "config_path", cfgPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)

	workflows, err := cfg.WorkflowDefinitions()
	if err != nil {
		return fmt.Errorf("parse workflow definitions: %w", err)
	}
	relDefs, err := cfg.RelationshipDefinitions()
	if err != nil {
		return fmt.Errorf("parse relationship definitions: %w", err)
	}
	scanInterval, err := cfg.ScanInterval()
	if err != nil {
		return err
	}
	syncInterval, err := cfg.SyncInterval()
	if err != nil {
		return err
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()

	checker := app.NewChecker(repo, repo, time.Now)
	engine, err := app.NewEngine(repo, checker, workflows, uuid.NewString, time.Now)
	if err != nil {
		return fmt.Errorf("configure transition engine: %w", err)
	}
	syncer, err := app.NewSyncer(repo, repo, repo, relDefs, syncInterval, logger.With("component", "sync"))
	if err != nil {
		return fmt.Errorf("configure sync engine: %w", err)
	}
	relationships, err := app.NewRelationships(repo, relDefs, syncer, uuid.NewString, time.Now)
	if err != nil {
		return fmt.Errorf("configure relationship service: %w", err)
	}
	notifier := logNotifier{logger: logger.With("component", "autopilot")}
	autopilot := app.NewAutoEngine(engine, repo, notifier, scanInterval, time.Now, logger.With("component", "autopilot"))

	logger.Info("engines initialized",
		"workflows", len(workflows),
		"relationship_defs", len(relDefs),
		"scan_interval", scanInterval,
		"sync_interval", syncInterval,
	)

	go autopilot.Run(ctx)
	go syncer.Run(ctx)

	return server.Run(ctx, server.Config{
		HTTPBind:      cfg.Server.Bind,
		APIEndpoint:   cfg.Server.APIEndpoint,
		MCPEndpoint:   cfg.Server.MCPEndpoint,
		ServerName:    "weft",
		ServerVersion: version,
	}, server.Dependencies{
		Engine:        engine,
		Relationships: relationships,
		Sync:          syncer,
		Records:       repo,
	})
}

// logNotifier surfaces timeout escalations through the runtime logger.
type logNotifier struct {
	logger *charmLog.Logger
}

func (n logNotifier) NotifyTimeout(_ context.Context, objectType, objectID, state, action string) {
	n.logger.Warn("state timeout reached",
		"object_type", objectType,
		"object_id", objectID,
		"state", state,
		"action", action,
	)
}
