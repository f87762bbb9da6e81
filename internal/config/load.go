package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is a fully layered configuration plus the file paths derived from
// it. Commands read everything they need from here.
type Resolved struct {
	*Config
	ConfigPath string
	TokenPath  string
	LedgerPath string
	PIDPath    string
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.ClientID != "" {
		cfg.Auth.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.Auth.ClientSecret = env.ClientSecret
	}

	if env.TokenFile != "" {
		cfg.Auth.TokenFile = env.TokenFile
	}

	if env.AuthMode != "" {
		cfg.Auth.Mode = env.AuthMode
	}

	// 4. Apply CLI overrides
	if cli.AuthMode != "" {
		cfg.Auth.Mode = cli.AuthMode
	}

	if cli.TokenFile != "" {
		cfg.Auth.TokenFile = cli.TokenFile
	}

	// 5. Validate the final layered result
	if err := validateAuth(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	r := &Resolved{
		Config:     cfg,
		ConfigPath: cfgPath,
		TokenPath:  expandHome(cfg.Auth.TokenFile),
		LedgerPath: expandHome(cfg.Transfer.LedgerFile),
		PIDPath:    expandHome(cfg.Cleanup.PIDFile),
	}

	if r.TokenPath == "" {
		r.TokenPath = DefaultTokenPath()
	}

	if r.LedgerPath == "" {
		r.LedgerPath = DefaultLedgerPath()
	}

	if r.PIDPath == "" {
		r.PIDPath = DefaultPIDPath()
	}

	return r, nil
}
