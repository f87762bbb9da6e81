package config

// Default values for configuration options. These are "layer 0" of the
// override chain. The endpoints are the public Globus tutorial endpoints.
const (
	defaultAuthMode         = AuthNative
	defaultTransferLabel    = "globus-go"
	defaultWaitTimeout      = "1h"
	defaultPollInterval     = "15s"
	defaultTutorialSource   = "ddb59aef-6d04-11e5-ba46-22000b92c6ec"
	defaultTutorialDest     = "ddb59af0-6d04-11e5-ba46-22000b92c6ec"
	defaultShareSourcePath  = "/share/godata"
	defaultShareDestPath    = "/"
	defaultShareLabel       = "Share Data Example"
	defaultSyncSourcePath   = "/share/godata/"
	defaultSyncDestPath     = "/~/sync-demo/"
	defaultSyncLabel        = "Folder Sync Example"
	defaultSyncLevel        = "checksum"
	defaultIndexDirectory   = "/"
	defaultIndexOutputDir   = "tmp"
	defaultIndexCatalog     = "index.json"
	defaultParallelListings = 4
	defaultListAttempts     = 5
	defaultCleanupWindow    = "24h"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			Mode: defaultAuthMode,
		},
		Endpoints: map[string]string{
			"tutorial1": defaultTutorialSource,
			"tutorial2": defaultTutorialDest,
		},
		Transfer: TransferConfig{
			Label:        defaultTransferLabel,
			WaitTimeout:  defaultWaitTimeout,
			PollInterval: defaultPollInterval,
		},
		Share: ShareConfig{
			SourceEndpoint:  defaultTutorialSource,
			SourcePath:      defaultShareSourcePath,
			DestinationPath: defaultShareDestPath,
			Label:           defaultShareLabel,
		},
		Sync: SyncConfig{
			SourceEndpoint:      defaultTutorialSource,
			SourcePath:          defaultSyncSourcePath,
			DestinationEndpoint: defaultTutorialDest,
			DestinationPath:     defaultSyncDestPath,
			Label:               defaultSyncLabel,
			CreateDestination:   true,
			SyncLevel:           defaultSyncLevel,
		},
		Index: IndexConfig{
			Directory:        defaultIndexDirectory,
			OutputDir:        defaultIndexOutputDir,
			Format:           FormatHTML,
			Mode:             ModePerDir,
			ParallelListings: defaultParallelListings,
			ListAttempts:     defaultListAttempts,
			Catalog:          defaultIndexCatalog,
		},
		Cleanup: CleanupConfig{
			Window: defaultCleanupWindow,
		},
		Logging: LoggingConfig{
			LogLevel:         defaultLogLevel,
			LogRetentionDays: defaultLogRetentionDays,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
