package config

import (
	"time"
)

// CredentialMode selects how the API client authenticates requests.
type CredentialMode string

const (
	// CredentialBearer sends an access token in the Authorization header and
	// keeps the access/refresh pair in a token store.
	CredentialBearer CredentialMode = "bearer"
	// CredentialCookie relies on a server-managed session cookie and echoes the
	// CSRF cookie in a request header.
	CredentialCookie CredentialMode = "cookie"
)

type Config interface {
	APIConfig
	CredentialConfig
	LogConfig
}

type APIConfig interface {
	GetBaseURL() string
	GetTimeout() time.Duration
	GetUserAgent() string
	GetRateLimit() float64
}

type CredentialConfig interface {
	GetCredentialMode() CredentialMode
	GetTokenFile() string
	GetTokenPassphrase() string
	GetGoogleClientID() string
}

type LogConfig interface {
	GetLogLevel() string
	GetEnv() string
	GetAppName() string
}

type mainConfig struct {
	EnvVars
}

// New returns a Config backed by environment variables only.
func New() Config {
	return mainConfig{}
}

// Load reads an optional .env file and an optional TOML config file. Values
// from the process environment win over the TOML file, which wins over
// built-in defaults. Missing files are not an error.
func Load(opts LoadOptions) (Config, error) {
	if err := loadDotEnv(opts.DotEnvPath); err != nil {
		return nil, err
	}
	file, err := loadFile(opts.FilePath)
	if err != nil {
		return nil, err
	}
	return mainConfig{EnvVars{file: file}}, nil
}

// LoadOptions locates the optional configuration sources.
type LoadOptions struct {
	DotEnvPath string // defaults to ".env"
	FilePath   string // defaults to ~/.config/storefront/config.toml
}
