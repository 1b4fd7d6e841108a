// Package config provides configuration management for the points server
// and the terminal admin client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultServerPort         = 8080
	DefaultLogLevel           = "info"
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMetricsEnabled     = true
	DefaultAuthMode           = "none"
	DefaultStoreDriver        = "memory"
	DefaultSQLiteDSN          = "points.db"
	DefaultAppName            = "pointAdmin"
	DefaultCORSAllowedOrigins = "*"

	DefaultAPIURL         = "http://localhost:8080"
	DefaultRequestTimeout = 10 * time.Second
	DefaultLiveUpdates    = true
	DefaultLogFile        = "pointadmin.log"
	DefaultPageSize       = 20
	MaxPageSize           = 2000
)

// Environment variable prefix. Every key below is read from APP_<KEY>.
const EnvPrefix = "APP"

// Configuration keys.
const (
	KeyConfigFile         = "config_file"
	KeyServerPort         = "server_port"
	KeyLogLevel           = "log_level"
	KeyShutdownTimeout    = "shutdown_timeout"
	KeyMetricsEnabled     = "metrics_enabled"
	KeyAuthMode           = "auth_mode"
	KeyBasicAuthUsers     = "basic_auth_users"
	KeyAPIKeys            = "api_keys"
	KeyStoreDriver        = "store_driver"
	KeyStoreDSN           = "store_dsn"
	KeyAppName            = "name"
	KeyCORSAllowedOrigins = "cors_allowed_origins"

	KeyAPIURL         = "api_url"
	KeyAPIKey         = "api_key"
	KeyAPIUsername    = "api_username"
	KeyAPIPassword    = "api_password"
	KeyRequestTimeout = "request_timeout"
	KeyLiveUpdates    = "live_updates"
	KeyLogFile        = "log_file"
	KeyPageSize       = "page_size"
)

// Environment variable names.
const (
	EnvConfigFile      = "APP_CONFIG_FILE"
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvAuthMode        = "APP_AUTH_MODE"
	EnvBasicAuthUsers  = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys         = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
	EnvStoreDriver     = "APP_STORE_DRIVER"
	EnvStoreDSN        = "APP_STORE_DSN"
	EnvAppName         = "APP_NAME"
	EnvCORSOrigins     = "APP_CORS_ALLOWED_ORIGINS"
	EnvAPIURL          = "APP_API_URL"
	EnvAPIKey          = "APP_API_KEY" //nolint:gosec // env var name, not a credential
	EnvAPIUsername     = "APP_API_USERNAME"
	EnvAPIPassword     = "APP_API_PASSWORD" //nolint:gosec // env var name, not a credential
	EnvRequestTimeout  = "APP_REQUEST_TIMEOUT"
	EnvLiveUpdates     = "APP_LIVE_UPDATES"
	EnvLogFile         = "APP_LOG_FILE"
	EnvPageSize        = "APP_PAGE_SIZE"
)

// Config holds the server configuration.
type Config struct {
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string

	// Basic auth settings (format: "user1:bcrypt_hash,user2:bcrypt_hash").
	BasicAuthUsers string

	// API key settings (format: "key1:name1,key2:name2").
	APIKeys string

	// Store settings. Driver is memory, sqlite or postgres.
	StoreDriver string
	StoreDSN    string

	// AppName prefixes the alert headers (X-<AppName>-alert).
	AppName            string
	CORSAllowedOrigins []string
}

// ClientConfig holds the terminal admin client configuration.
type ClientConfig struct {
	APIURL         string
	APIKey         string
	APIUsername    string
	APIPassword    string
	RequestTimeout time.Duration
	LiveUpdates    bool
	LogFile        string
	LogLevel       string
	PageSize       int
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig    = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig = errors.New(
		"at least one auth config must be provided when auth mode is multi",
	)
	ErrInvalidStoreDriver  = errors.New("store driver must be one of: memory, sqlite, postgres")
	ErrMissingStoreDSN     = errors.New("store DSN must be set when store driver is postgres")
	ErrInvalidAppName      = errors.New("app name must be a non-empty header token")
	ErrInvalidAPIURL       = errors.New("API URL must be an absolute http or https URL")
	ErrInvalidTimeout      = errors.New("request timeout must be positive")
	ErrInvalidPageSize     = errors.New("page size must be between 1 and 2000")
	ErrIncompleteBasicAuth = errors.New("API username and password must be set together")
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// newViper returns a viper instance reading APP_ environment variables and,
// when APP_CONFIG_FILE is set, that config file.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	return v, nil
}

// Load reads the server configuration.
// Priority (highest to lowest): environment variables, config file, defaults.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyMetricsEnabled, DefaultMetricsEnabled)
	v.SetDefault(KeyAuthMode, DefaultAuthMode)
	v.SetDefault(KeyStoreDriver, DefaultStoreDriver)
	v.SetDefault(KeyAppName, DefaultAppName)
	v.SetDefault(KeyCORSAllowedOrigins, DefaultCORSAllowedOrigins)

	cfg := &Config{
		ServerPort:         v.GetInt(KeyServerPort),
		LogLevel:           v.GetString(KeyLogLevel),
		ShutdownTimeout:    v.GetDuration(KeyShutdownTimeout),
		MetricsEnabled:     v.GetBool(KeyMetricsEnabled),
		AuthMode:           v.GetString(KeyAuthMode),
		BasicAuthUsers:     v.GetString(KeyBasicAuthUsers),
		APIKeys:            v.GetString(KeyAPIKeys),
		StoreDriver:        v.GetString(KeyStoreDriver),
		StoreDSN:           v.GetString(KeyStoreDSN),
		AppName:            v.GetString(KeyAppName),
		CORSAllowedOrigins: splitList(v.GetString(KeyCORSAllowedOrigins)),
	}

	if cfg.StoreDriver == "sqlite" && cfg.StoreDSN == "" {
		cfg.StoreDSN = DefaultSQLiteDSN
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	return c.validateStore()
}

func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.AppName == "" || strings.ContainsAny(c.AppName, " \t\r\n:") {
		return ErrInvalidAppName
	}

	return nil
}

func (c *Config) validateAuth() error {
	switch c.authModeOrDefault() {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.StoreDSN == "" {
			return ErrMissingStoreDSN
		}
	default:
		return ErrInvalidStoreDriver
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// LoadClient reads the terminal client configuration.
func LoadClient() (*ClientConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyRequestTimeout, DefaultRequestTimeout)
	v.SetDefault(KeyLiveUpdates, DefaultLiveUpdates)
	v.SetDefault(KeyLogFile, DefaultLogFile)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyPageSize, DefaultPageSize)

	cfg := &ClientConfig{
		APIURL:         strings.TrimRight(v.GetString(KeyAPIURL), "/"),
		APIKey:         v.GetString(KeyAPIKey),
		APIUsername:    v.GetString(KeyAPIUsername),
		APIPassword:    v.GetString(KeyAPIPassword),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		LiveUpdates:    v.GetBool(KeyLiveUpdates),
		LogFile:        v.GetString(KeyLogFile),
		LogLevel:       v.GetString(KeyLogLevel),
		PageSize:       v.GetInt(KeyPageSize),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the client configuration values are valid.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidAPIURL
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return ErrInvalidPageSize
	}

	if (c.APIUsername == "") != (c.APIPassword == "") {
		return ErrIncompleteBasicAuth
	}

	return nil
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
