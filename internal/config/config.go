// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for globus-go. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth      AuthConfig        `toml:"auth"`
	Endpoints map[string]string `toml:"endpoints"`
	Transfer  TransferConfig    `toml:"transfer"`
	Share     ShareConfig       `toml:"share"`
	Sync      SyncConfig        `toml:"sync"`
	Index     IndexConfig       `toml:"index"`
	Cleanup   CleanupConfig     `toml:"cleanup"`
	Logging   LoggingConfig     `toml:"logging"`
	Network   NetworkConfig     `toml:"network"`
}

// Auth modes.
const (
	AuthNative            = "native"
	AuthClientCredentials = "client-credentials"
)

// AuthConfig identifies the Globus Auth app. A client secret is only needed
// for the client-credentials mode; native apps are public clients.
type AuthConfig struct {
	Mode         string   `toml:"mode"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
	TokenFile    string   `toml:"token_file"`
	AuthURL      string   `toml:"auth_url"`
}

// TransferConfig holds defaults for submitted tasks.
type TransferConfig struct {
	BaseURL      string `toml:"base_url"`
	Label        string `toml:"label"`
	SyncLevel    string `toml:"sync_level"`
	WaitTimeout  string `toml:"wait_timeout"`
	PollInterval string `toml:"poll_interval"`
	LedgerFile   string `toml:"ledger_file"`
}

// ShareConfig holds defaults for the share command.
type ShareConfig struct {
	SourceEndpoint  string `toml:"source_endpoint"`
	SharedEndpoint  string `toml:"shared_endpoint"`
	SourcePath      string `toml:"source_path"`
	DestinationPath string `toml:"destination_path"`
	Label           string `toml:"label"`
}

// SyncConfig holds the folder-sync pair.
type SyncConfig struct {
	SourceEndpoint      string `toml:"source_endpoint"`
	SourcePath          string `toml:"source_path"`
	DestinationEndpoint string `toml:"destination_endpoint"`
	DestinationPath     string `toml:"destination_path"`
	Label               string `toml:"label"`
	CreateDestination   bool   `toml:"create_destination"`
	SyncLevel           string `toml:"sync_level"`
}

// Index formats and modes.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	ModePerDir     = "per-dir"
	ModeFlat       = "flat"
)

// IndexConfig controls directory index generation.
type IndexConfig struct {
	SharedEndpoint   string   `toml:"shared_endpoint"`
	LocalEndpoint    string   `toml:"local_endpoint"`
	Directory        string   `toml:"directory"`
	OutputDir        string   `toml:"output_dir"`
	Format           string   `toml:"format"`
	Mode             string   `toml:"mode"`
	Include          []string `toml:"include"`
	Exclude          []string `toml:"exclude"`
	IgnoreCase       bool     `toml:"ignore_case"`
	ParallelListings int      `toml:"parallel_listings"`
	ListAttempts     int      `toml:"list_attempts"`
	Catalog          string   `toml:"catalog"`
	Footer           string   `toml:"footer"`
}

// CleanupConfig controls the shared-endpoint cleanup.
type CleanupConfig struct {
	SourceEndpoint string `toml:"source_endpoint"`
	Window         string `toml:"window"`
	Schedule       string `toml:"schedule"`
	PIDFile        string `toml:"pid_file"`
}

// LoggingConfig controls log output behavior: level and rotation.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string
	AuthMode   string
	TokenFile  string
}
