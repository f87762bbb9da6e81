package config

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Validation range constants.
const (
	minParallelListings = 1
	maxParallelListings = 32
	minListAttempts     = 1
	minLogRetention     = 1
	minPollInterval     = 1 * time.Second
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
	minCleanupWindow    = 1 * time.Minute
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateAuth(&cfg.Auth); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateEndpoints(cfg)...)
	errs = append(errs, validateTransfer(&cfg.Transfer)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateIndex(&cfg.Index)...)
	errs = append(errs, validateCleanup(&cfg.Cleanup)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateAuth(a *AuthConfig) error {
	switch a.Mode {
	case AuthNative, AuthClientCredentials:
		return nil
	default:
		return fmt.Errorf("auth.mode: must be %q or %q, got %q", AuthNative, AuthClientCredentials, a.Mode)
	}
}

func validateEndpoints(cfg *Config) []error {
	var errs []error

	for alias, id := range cfg.Endpoints {
		if _, err := uuid.Parse(id); err != nil {
			errs = append(errs, fmt.Errorf("endpoints.%s: %q is not a UUID", alias, id))
		}
	}

	check := func(field, v string) {
		if v == "" {
			return
		}

		if _, ok := cfg.Endpoints[v]; ok {
			return
		}

		if _, err := uuid.Parse(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is neither a UUID nor an endpoint alias", field, v))
		}
	}

	check("share.source_endpoint", cfg.Share.SourceEndpoint)
	check("share.shared_endpoint", cfg.Share.SharedEndpoint)
	check("sync.source_endpoint", cfg.Sync.SourceEndpoint)
	check("sync.destination_endpoint", cfg.Sync.DestinationEndpoint)
	check("index.shared_endpoint", cfg.Index.SharedEndpoint)
	check("index.local_endpoint", cfg.Index.LocalEndpoint)
	check("cleanup.source_endpoint", cfg.Cleanup.SourceEndpoint)

	for field, p := range map[string]string{
		"share.source_path":      cfg.Share.SourcePath,
		"share.destination_path": cfg.Share.DestinationPath,
	} {
		if p != "" && !path.IsAbs(p) {
			errs = append(errs, fmt.Errorf("%s: must be absolute, got %q", field, p))
		}
	}

	return errs
}

var validSyncLevels = map[string]bool{
	"":         true,
	"exists":   true,
	"size":     true,
	"mtime":    true,
	"checksum": true,
}

func validateSyncLevel(field, level string) []error {
	if !validSyncLevels[level] {
		return []error{fmt.Errorf("%s: must be one of exists, size, mtime, checksum; got %q", field, level)}
	}

	return nil
}

func validateTransfer(t *TransferConfig) []error {
	var errs []error

	errs = append(errs, validateSyncLevel("transfer.sync_level", t.SyncLevel)...)
	errs = append(errs, validateDurationMin("transfer.wait_timeout", t.WaitTimeout, 0)...)
	errs = append(errs, validateDurationMin("transfer.poll_interval", t.PollInterval, minPollInterval)...)

	return errs
}

func validateSync(s *SyncConfig) []error {
	return validateSyncLevel("sync.sync_level", s.SyncLevel)
}

func validateIndex(ix *IndexConfig) []error {
	var errs []error

	if ix.Format != FormatHTML && ix.Format != FormatMarkdown {
		errs = append(errs, fmt.Errorf("index.format: must be %q or %q, got %q", FormatHTML, FormatMarkdown, ix.Format))
	}

	if ix.Mode != ModePerDir && ix.Mode != ModeFlat {
		errs = append(errs, fmt.Errorf("index.mode: must be %q or %q, got %q", ModePerDir, ModeFlat, ix.Mode))
	}

	if ix.ParallelListings < minParallelListings || ix.ParallelListings > maxParallelListings {
		errs = append(errs, fmt.Errorf("index.parallel_listings: must be between %d and %d, got %d",
			minParallelListings, maxParallelListings, ix.ParallelListings))
	}

	if ix.ListAttempts < minListAttempts {
		errs = append(errs, fmt.Errorf("index.list_attempts: must be >= %d, got %d", minListAttempts, ix.ListAttempts))
	}

	if !path.IsAbs(ix.Directory) {
		errs = append(errs, fmt.Errorf("index.directory: must be absolute, got %q", ix.Directory))
	}

	if ix.OutputDir == "" {
		errs = append(errs, errors.New("index.output_dir: must not be empty"))
	}

	return errs
}

func validateCleanup(c *CleanupConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("cleanup.window", c.Window, minCleanupWindow)...)

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("cleanup.schedule: %w", err))
		}
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("logging.log_retention_days: must be >= %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

// Duration parses a duration field that Validate has already checked.
// Invalid values yield zero.
func Duration(v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}

	return d
}

// ResolveEndpoint maps an alias to its UUID; other values pass through.
func (c *Config) ResolveEndpoint(v string) string {
	if id, ok := c.Endpoints[v]; ok {
		return id
	}

	return v
}
