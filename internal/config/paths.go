package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "globus-go"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	tokenFileName  = "tokens.json"
	ledgerFileName = "ledger.db"
	pidFileName    = "cleanup.pid"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/globus-go).
// On macOS, uses ~/Library/Application Support/globus-go.
// Other platforms fall back to ~/.config/globus-go.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application data
// (token cache, task ledger, pid file).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/globus-go).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(env, home, fallback string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return joinDir(DefaultConfigDir(), configFileName)
}

// DefaultTokenPath returns the default token cache location.
func DefaultTokenPath() string {
	return joinDir(DefaultDataDir(), tokenFileName)
}

// DefaultLedgerPath returns the default task ledger database location.
func DefaultLedgerPath() string {
	return joinDir(DefaultDataDir(), ledgerFileName)
}

// DefaultPIDPath returns the default pid file for scheduled cleanup.
func DefaultPIDPath() string {
	return joinDir(DefaultDataDir(), pidFileName)
}

func joinDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}

	return filepath.Join(home, p[2:])
}
