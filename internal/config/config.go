// Package config provides configuration management for the token service.
// It supports environment variable-based configuration with validation and
// defaults for all components: server, Redis, Postgres, token lifetimes,
// security, and logging.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// MinPortNumber is the minimum valid port number.
	MinPortNumber = 1
	// MaxPortNumber is the maximum valid port number.
	MaxPortNumber = 65535
)

// Config aggregates all component configuration for the token service.
type Config struct {
	// Server contains HTTP server settings: address, timeouts, TLS.
	Server ServerConfig `envconfig:"SERVER"`
	// Redis contains Redis connection and pool settings.
	Redis RedisConfig `envconfig:"REDIS"`
	// Postgres contains the optional user database settings.
	Postgres PostgresConfig `envconfig:"POSTGRES"`
	// Token contains lifetimes for codes and tokens.
	Token TokenConfig `envconfig:"TOKEN"`
	// OAuth2 contains protocol-level settings.
	OAuth2 OAuth2Config `envconfig:"OAUTH2"`
	// Security contains CORS and rate limiting settings.
	Security SecurityConfig `envconfig:"SECURITY"`
	// Logging contains logging settings.
	Logging LoggingConfig `envconfig:"LOGGING"`
	// ClientSeed contains startup client registration settings.
	ClientSeed ClientSeedConfig `envconfig:"CLIENT_SEED"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP listening port.
	Port int `envconfig:"PORT"             default:"8080"`
	// Host is the network interface to bind to.
	Host string `envconfig:"HOST"             default:"0.0.0.0"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"     default:"15s"`
	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT"    default:"15s"`
	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"     default:"60s"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// TLSCert is the path to the TLS certificate file.
	TLSCert string `envconfig:"TLS_CERT"`
	// TLSKey is the path to the TLS private key file.
	TLSKey string `envconfig:"TLS_KEY"`
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL.
	URL string `envconfig:"URL"           default:"redis://localhost:6379"`
	// Password is the Redis authentication password.
	Password string `envconfig:"PASSWORD"`
	// DB is the Redis database number.
	DB int `envconfig:"DB"            default:"0"`
	// MaxRetries is the retry budget for failed operations.
	MaxRetries int `envconfig:"MAX_RETRIES"   default:"3"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `envconfig:"POOL_SIZE"     default:"10"`
	// MinIdleConn is the minimum number of idle connections.
	MinIdleConn int `envconfig:"MIN_IDLE_CONN" default:"5"`
	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT"  default:"5s"`
	// ReadTimeout is the socket read timeout.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"  default:"3s"`
	// WriteTimeout is the socket write timeout.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// PostgresConfig contains the optional PostgreSQL user database
// configuration used by the password grant.
type PostgresConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `envconfig:"HOST"               default:"localhost"`
	// Port is the PostgreSQL server port.
	Port int `envconfig:"PORT"               default:"5432"`
	// Database is the database name.
	Database string `envconfig:"DB"                 default:"taskforge"`
	// User is the database username.
	User string `envconfig:"USER"`
	// Password is the database password.
	Password string `envconfig:"PASSWORD"`
	// SSLMode is the SSL connection mode.
	SSLMode string `envconfig:"SSL_MODE"           default:"require"`
	// MaxConn is the maximum pool size.
	MaxConn int32 `envconfig:"MAX_CONN"           default:"25"`
	// MinConn is the minimum pool size.
	MinConn int32 `envconfig:"MIN_CONN"           default:"5"`
	// MaxConnLifetime is the maximum lifetime of a pooled connection.
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME"  default:"1h"`
	// MaxConnIdleTime is the maximum idle time of a pooled connection.
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT"    default:"10s"`
	// HealthCheckPeriod is the interval between connectivity checks.
	HealthCheckPeriod time.Duration `envconfig:"HEALTH_CHECK_PERIOD" default:"30s"`
}

// TokenConfig contains code and token lifetimes. Client records may
// override the access and refresh lifetimes per client.
type TokenConfig struct {
	// AuthorizationCodeTTL is the lifetime of authorization codes.
	AuthorizationCodeTTL time.Duration `envconfig:"AUTHORIZATION_CODE_TTL" default:"5m"`
	// AccessTokenTTL is the default lifetime of access tokens.
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL"       default:"1h"`
	// RefreshTokenTTL is the default lifetime of refresh tokens.
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL"      default:"720h"`
}

// OAuth2Config contains protocol-level settings.
type OAuth2Config struct {
	// SupportedGrantTypes are the grant types registered in the dispatcher.
	SupportedGrantTypes []string `envconfig:"SUPPORTED_GRANT_TYPES"    default:"authorization_code,refresh_token,client_credentials,password"`
	// SupportedResponseTypes are the authorization endpoint response types.
	SupportedResponseTypes []string `envconfig:"SUPPORTED_RESPONSE_TYPES" default:"code"`
	// SupportedScopes are all scopes this server recognizes.
	SupportedScopes []string
}

// SecurityConfig contains rate limiting and CORS settings.
type SecurityConfig struct {
	// RateLimitRPS is the maximum requests per second per client IP.
	RateLimitRPS int `envconfig:"RATE_LIMIT_RPS"    default:"100"`
	// RateLimitBurst is the burst allowance.
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST"  default:"200"`
	// AllowedOrigins are the CORS allowed origins.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"   default:"*"`
	// AllowedMethods are the CORS allowed HTTP methods.
	AllowedMethods []string `envconfig:"ALLOWED_METHODS"   default:"GET,POST,DELETE,OPTIONS"`
	// AllowedHeaders are the CORS allowed headers.
	AllowedHeaders []string `envconfig:"ALLOWED_HEADERS"   default:"*"`
	// ExposedHeaders are the CORS exposed response headers.
	ExposedHeaders []string `envconfig:"EXPOSED_HEADERS"`
	// TrustedProxies are client IPs exempt from rate limiting.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
	// AllowCredentials determines if CORS allows credentials.
	AllowCredentials bool `envconfig:"ALLOW_CREDENTIALS" default:"true"`
	// MaxAge is the CORS preflight cache duration in seconds.
	MaxAge int `envconfig:"MAX_AGE"           default:"86400"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `envconfig:"LEVEL"  default:"info"`
	// Format is the log output format (json, text).
	Format string `envconfig:"FORMAT" default:"json"`
	// Output is the log destination (stdout, stderr, file path).
	Output string `envconfig:"OUTPUT" default:"stdout"`
}

// ClientSeedConfig controls startup client registration.
type ClientSeedConfig struct {
	// Enabled turns on seed client registration at boot.
	Enabled bool `envconfig:"ENABLED"     default:"false"`
	// FilePath is the path to the YAML seed client file.
	FilePath string `envconfig:"FILE_PATH"   default:"configs/clients.yaml"`
}

// Load reads configuration from environment variables and returns a
// validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.OAuth2.SupportedScopes = []string{
		"read", "write", "admin",
		"tasks:read", "tasks:write", "projects:read", "projects:write",
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration values against operational requirements.
func (c *Config) Validate() error {
	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return errors.New("server port must be between 1 and 65535")
	}

	if c.Token.AuthorizationCodeTTL < time.Second {
		return errors.New("authorization code TTL must be at least 1 second")
	}

	if c.Token.AccessTokenTTL < time.Minute {
		return errors.New("access token TTL must be at least 1 minute")
	}

	if c.Token.RefreshTokenTTL < c.Token.AccessTokenTTL {
		return errors.New("refresh token TTL must not be shorter than access token TTL")
	}

	if len(c.OAuth2.SupportedGrantTypes) == 0 {
		return errors.New("at least one grant type must be supported")
	}

	return nil
}

// ServerAddr returns the listen address in host:port format.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsTLSEnabled reports whether both TLS certificate and key paths are set.
func (c *Config) IsTLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Database,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.SSLMode,
	)
}

// IsPostgresConfigured reports whether the user database credentials are
// set.
func (c *Config) IsPostgresConfigured() bool {
	return c.Postgres.User != "" && c.Postgres.Password != ""
}
