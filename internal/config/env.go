package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "GLOBUS_GO_CONFIG"
	EnvClientID     = "GLOBUS_GO_CLIENT_ID"
	EnvClientSecret = "GLOBUS_GO_CLIENT_SECRET"
	EnvTokenFile    = "GLOBUS_GO_TOKEN_FILE"
	EnvAuth         = "GLOBUS_GO_AUTH"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // GLOBUS_GO_CONFIG: override config file path
	ClientID     string // GLOBUS_GO_CLIENT_ID
	ClientSecret string // GLOBUS_GO_CLIENT_SECRET
	TokenFile    string // GLOBUS_GO_TOKEN_FILE
	AuthMode     string // GLOBUS_GO_AUTH: native or client-credentials
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies them.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		TokenFile:    os.Getenv(EnvTokenFile),
		AuthMode:     os.Getenv(EnvAuth),
	}
}
