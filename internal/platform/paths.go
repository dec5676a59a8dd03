// Package platform resolves per-OS locations for the config file and the
// sqlite database.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Paths locates the config file and database of one installation.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
}

// Options select which installation the paths belong to. DevMode keeps a
// development install fully separate from the regular one.
type Options struct {
	AppName string
	DevMode bool
}

// DefaultPaths resolves the standard installation's paths.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: "weft"})
}

// DefaultPathsWithOptions resolves paths for the current OS, honoring the
// XDG environment on Linux and the AppData layout on Windows.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	app := strings.TrimSpace(opts.AppName)
	if app == "" {
		app = "weft"
	}
	if opts.DevMode {
		app += "-dev"
	}
	configBase, dataBase, err := baseDirs(runtime.GOOS, os.Getenv)
	if err != nil {
		return Paths{}, err
	}
	return pathsUnder(configBase, dataBase, app), nil
}

// baseDirs picks the config and data base directories for one OS. The
// getenv hook keeps the lookup testable.
func baseDirs(goos string, getenv func(string) string) (string, string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("user config dir: %w", err)
	}
	dataBase := configBase

	switch goos {
	case "linux":
		if v := strings.TrimSpace(getenv("XDG_CONFIG_HOME")); v != "" {
			configBase = v
		}
		if v := strings.TrimSpace(getenv("XDG_DATA_HOME")); v != "" {
			dataBase = v
		} else {
			home, homeErr := os.UserHomeDir()
			if homeErr != nil {
				return "", "", fmt.Errorf("user home dir: %w", homeErr)
			}
			dataBase = filepath.Join(home, ".local", "share")
		}
	case "windows":
		if v := strings.TrimSpace(getenv("APPDATA")); v != "" {
			configBase = v
		}
		if v := strings.TrimSpace(getenv("LOCALAPPDATA")); v != "" {
			dataBase = v
		}
	default:
		// macOS and the rest keep everything under the user config dir.
	}
	return configBase, dataBase, nil
}

// pathsUnder lays the app's files out under the chosen base directories.
func pathsUnder(configBase, dataBase, app string) Paths {
	dataDir := filepath.Join(dataBase, app)
	return Paths{
		ConfigPath: filepath.Join(configBase, app, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, app+".db"),
	}
}
