package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/weft/internal/domain"
)

// Config is the full TOML configuration: runtime settings plus the workflow
// and relationship definitions the engines run with.
type Config struct {
	Database      DatabaseConfig       `toml:"database"`
	Logging       LoggingConfig        `toml:"logging"`
	Engine        EngineConfig         `toml:"engine"`
	Server        ServerConfig         `toml:"server"`
	Workflows     []WorkflowConfig     `toml:"workflow"`
	Relationships []RelationshipConfig `toml:"relationship"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type EngineConfig struct {
	ScanInterval string `toml:"scan_interval"`
	SyncInterval string `toml:"sync_interval"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type WorkflowConfig struct {
	ID          string             `toml:"id"`
	ObjectType  string             `toml:"object_type"`
	States      []StateConfig      `toml:"state"`
	Transitions []TransitionConfig `toml:"transition"`
}

type StateConfig struct {
	ID               string `toml:"id"`
	Initial          bool   `toml:"initial"`
	Terminal         bool   `toml:"terminal"`
	Timeout          string `toml:"timeout"`
	TimeoutAction    string `toml:"timeout_action"`
	AutoTransitionTo string `toml:"auto_transition_to"`
}

type TransitionConfig struct {
	From          string               `toml:"from"`
	To            string               `toml:"to"`
	Kind          string               `toml:"kind"`
	Prerequisites []PrerequisiteConfig `toml:"prerequisite"`
}

type PrerequisiteConfig struct {
	Kind       string `toml:"kind"`
	Field      string `toml:"field"`
	Op         string `toml:"op"`
	Value      string `toml:"value"`
	Pattern    string `toml:"pattern"`
	URL        string `toml:"url"`
	Timeout    string `toml:"timeout"`
	MinElapsed string `toml:"min_elapsed"`
	Script     string `toml:"script"`
}

type RelationshipConfig struct {
	Name         string `toml:"name"`
	SourceType   string `toml:"source_type"`
	TargetType   string `toml:"target_type"`
	DisplayField string `toml:"display_field"`
	DisplayKey   string `toml:"display_key"`
	Strategy     string `toml:"strategy"`
}

// Default returns baseline configuration for the given database path.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			ScanInterval: "30s",
			SyncInterval: "1m",
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
	}
}

// Load reads TOML from path over the defaults. A missing or empty file
// falls back to defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks runtime settings and the embedded definitions.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if _, err := c.ScanInterval(); err != nil {
		return err
	}
	if _, err := c.SyncInterval(); err != nil {
		return err
	}
	if _, err := c.WorkflowDefinitions(); err != nil {
		return err
	}
	if _, err := c.RelationshipDefinitions(); err != nil {
		return err
	}
	return nil
}

// ScanInterval parses the auto-transition scan interval.
func (c Config) ScanInterval() (time.Duration, error) {
	return parseInterval("engine.scan_interval", c.Engine.ScanInterval)
}

// SyncInterval parses the scheduled sync interval.
func (c Config) SyncInterval() (time.Duration, error) {
	return parseInterval("engine.sync_interval", c.Engine.SyncInterval)
}

// WorkflowDefinitions converts and validates the configured workflows.
func (c Config) WorkflowDefinitions() ([]domain.WorkflowDefinition, error) {
	out := make([]domain.WorkflowDefinition, 0, len(c.Workflows))
	for i, wc := range c.Workflows {
		wf := domain.WorkflowDefinition{
			ID:         strings.TrimSpace(wc.ID),
			ObjectType: strings.TrimSpace(wc.ObjectType),
		}
		for j, sc := range wc.States {
			timeout, err := parseOptionalDuration(sc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("workflow[%d].state[%d].timeout: %w", i, j, err)
			}
			wf.States = append(wf.States, domain.State{
				ID:               strings.TrimSpace(sc.ID),
				Initial:          sc.Initial,
				Terminal:         sc.Terminal,
				Timeout:          timeout,
				TimeoutAction:    strings.TrimSpace(sc.TimeoutAction),
				AutoTransitionTo: strings.TrimSpace(sc.AutoTransitionTo),
			})
		}
		for j, tc := range wc.Transitions {
			tr := domain.Transition{
				From: strings.TrimSpace(tc.From),
				To:   strings.TrimSpace(tc.To),
				Kind: domain.NormalizeTransitionKind(domain.TransitionKind(tc.Kind)),
			}
			for k, pc := range tc.Prerequisites {
				p, err := pc.toDomain()
				if err != nil {
					return nil, fmt.Errorf("workflow[%d].transition[%d].prerequisite[%d]: %w", i, j, k, err)
				}
				tr.Prerequisites = append(tr.Prerequisites, p)
			}
			wf.Transitions = append(wf.Transitions, tr)
		}
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("workflow[%d]: %w", i, err)
		}
		out = append(out, wf)
	}
	return out, nil
}

// RelationshipDefinitions converts and validates the configured
// relationship definitions.
func (c Config) RelationshipDefinitions() ([]domain.RelationshipDefinition, error) {
	out := make([]domain.RelationshipDefinition, 0, len(c.Relationships))
	for i, rc := range c.Relationships {
		def := domain.RelationshipDefinition{
			Name:         strings.TrimSpace(strings.ToLower(rc.Name)),
			SourceType:   strings.TrimSpace(rc.SourceType),
			TargetType:   strings.TrimSpace(rc.TargetType),
			DisplayField: strings.TrimSpace(rc.DisplayField),
			DisplayKey:   strings.TrimSpace(rc.DisplayKey),
			Strategy:     domain.SyncStrategy(strings.TrimSpace(strings.ToLower(rc.Strategy))),
		}
		if def.Strategy == "" {
			def.Strategy = domain.SyncLazy
		}
		if def.DisplayKey == "" && def.Name != "" {
			def.DisplayKey = def.Name + "_display"
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("relationship[%d]: %w", i, err)
		}
		out = append(out, def)
	}
	return out, nil
}

// toDomain converts one prerequisite block.
func (pc PrerequisiteConfig) toDomain() (domain.Prerequisite, error) {
	timeout, err := parseOptionalDuration(pc.Timeout)
	if err != nil {
		return domain.Prerequisite{}, fmt.Errorf("timeout: %w", err)
	}
	minElapsed, err := parseOptionalDuration(pc.MinElapsed)
	if err != nil {
		return domain.Prerequisite{}, fmt.Errorf("min_elapsed: %w", err)
	}
	p := domain.Prerequisite{
		Kind:  domain.PrerequisiteKind(strings.TrimSpace(strings.ToLower(pc.Kind))),
		Field: strings.TrimSpace(pc.Field),
		Condition: domain.FieldCondition{
			Op:      domain.FieldOp(strings.TrimSpace(strings.ToLower(pc.Op))),
			Value:   pc.Value,
			Pattern: pc.Pattern,
		},
		URL:        strings.TrimSpace(pc.URL),
		Timeout:    timeout,
		MinElapsed: minElapsed,
		Script:     strings.TrimSpace(pc.Script),
	}
	if err := p.Validate(); err != nil {
		return domain.Prerequisite{}, err
	}
	return p, nil
}

// parseInterval parses a required positive duration setting.
func parseInterval(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

// parseOptionalDuration parses a duration that may be empty.
func parseOptionalDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("duration must be >= 0")
	}
	return d, nil
}

// EnsureConfigDir creates the directory containing path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
