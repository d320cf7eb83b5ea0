package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	baseURLVar         = "STOREFRONT_API_URL"
	legacyBaseURLVar   = "VITE_API_URL"
	timeoutVar         = "STOREFRONT_TIMEOUT"
	userAgentVar       = "STOREFRONT_USER_AGENT"
	rateLimitVar       = "STOREFRONT_RATE_LIMIT"
	credentialsVar     = "STOREFRONT_CREDENTIALS"
	tokenFileVar       = "STOREFRONT_TOKEN_FILE"
	tokenPassphraseVar = "STOREFRONT_TOKEN_PASSPHRASE"
	googleClientIDVar  = "GOOGLE_CLIENT_ID"
	logLevelVar        = "LOG_LEVEL"
	appNameVar         = "APP_NAME"

	defaultBaseURL   = "http://localhost:8000/api"
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "go-storefront/0.1"
	defaultTokenFile = "~/.config/storefront/tokens.json"
)

type EnvVars struct {
	file fileValues
}

var _ APIConfig = EnvVars{}
var _ CredentialConfig = EnvVars{}
var _ LogConfig = EnvVars{}

// GetBaseURL returns the API root every request path is resolved against.
// The Vite variable name used by the browser storefront is accepted as a fallback.
func (e EnvVars) GetBaseURL() string {
	if v := os.Getenv(baseURLVar); v != "" {
		return strings.TrimRight(v, "/")
	}
	return strings.TrimRight(GetEnv(legacyBaseURLVar, orDefault(e.file.API.BaseURL, defaultBaseURL)), "/")
}

func (e EnvVars) GetTimeout() time.Duration {
	raw := GetEnv(timeoutVar, e.file.API.Timeout)
	if raw == "" {
		return defaultTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

func (e EnvVars) GetUserAgent() string {
	return GetEnv(userAgentVar, orDefault(e.file.API.UserAgent, defaultUserAgent))
}

// GetRateLimit returns the maximum requests per second, 0 meaning unlimited.
func (e EnvVars) GetRateLimit() float64 {
	raw := GetEnv(rateLimitVar, "")
	if raw == "" {
		return e.file.API.RateLimit
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func (e EnvVars) GetCredentialMode() CredentialMode {
	mode := strings.ToLower(GetEnv(credentialsVar, e.file.Credentials.Mode))
	if CredentialMode(mode) == CredentialCookie {
		return CredentialCookie
	}
	return CredentialBearer
}

func (e EnvVars) GetTokenFile() string {
	return GetEnv(tokenFileVar, orDefault(e.file.Credentials.TokenFile, defaultTokenFile))
}

func (e EnvVars) GetTokenPassphrase() string {
	return GetEnv(tokenPassphraseVar, e.file.Credentials.Passphrase)
}

func (e EnvVars) GetGoogleClientID() string {
	return GetEnv(googleClientIDVar, e.file.Credentials.GoogleClientID)
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, orDefault(e.file.Log.Level, "info"))
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Storefront")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
