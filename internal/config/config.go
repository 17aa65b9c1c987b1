package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zhejian/shorty/internal/model"
)

// Remote drivers
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverLibSQL   = "libsql"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	LibSQL        LibSQLConfig        `mapstructure:"libsql"`
	Local         LocalConfig         `mapstructure:"local"`
	App           AppConfig           `mapstructure:"app"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// CacheConfig holds the Redis connection used by the redis remote driver
type CacheConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LibSQLConfig holds the Turso/libsql connection
type LibSQLConfig struct {
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LocalConfig configures the ephemeral namespace. An empty StorePath keeps
// the mapping in memory.
type LocalConfig struct {
	StorePath string `mapstructure:"store_path"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	BaseURL      string        `mapstructure:"base_url"` // Base URL for generating short links
	ShortCodeLen int           `mapstructure:"short_code_length"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	TrackTimeout time.Duration `mapstructure:"track_timeout"`
}

// RemoteConfig selects and guards the durable namespace
type RemoteConfig struct {
	Driver             string        `mapstructure:"driver"`
	AtomicIncrement    bool          `mapstructure:"atomic_increment"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

// ObservabilityConfig holds telemetry settings
type ObservabilityConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	LogLevel     string  `mapstructure:"log_level"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.environment":      "ENVIRONMENT",
	"server.allowed_origins":  "ALLOWED_ORIGINS",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",

	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.dbname":   "DB_NAME",
	"database.sslmode":  "DB_SSLMODE",

	"cache.host":     "RDB_HOST",
	"cache.port":     "RDB_PORT",
	"cache.user":     "RDB_USER",
	"cache.password": "RDB_PASSWORD",
	"cache.db":       "RDB_DB",

	"libsql.url":        "LIBSQL_URL",
	"libsql.auth_token": "LIBSQL_AUTH_TOKEN",

	"local.store_path": "LOCAL_STORE_PATH",

	"app.base_url":          "BASE_URL",
	"app.short_code_length": "SHORT_CODE_LENGTH",
	"app.max_attempts":      "SHORT_CODE_MAX_ATTEMPTS",
	"app.track_timeout":     "TRACK_TIMEOUT",

	"remote.driver":               "REMOTE_DRIVER",
	"remote.atomic_increment":     "REMOTE_ATOMIC_INCREMENT",
	"remote.breaker_max_failures": "REMOTE_BREAKER_MAX_FAILURES",
	"remote.breaker_timeout":      "REMOTE_BREAKER_TIMEOUT",

	"observability.service_name":  "OTEL_SERVICE_NAME",
	"observability.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"observability.log_level":     "LOG_LEVEL",
	"observability.sample_ratio":  "OTEL_TRACES_SAMPLER_RATIO",
}

// Load loads configuration from a .env file, if present, and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "shorty")
	v.SetDefault("database.dbname", "shorty")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("cache.port", "6379")
	v.SetDefault("cache.db", 0)

	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.short_code_length", model.CodeLength)
	v.SetDefault("app.max_attempts", 10)
	v.SetDefault("app.track_timeout", 5*time.Second)

	v.SetDefault("remote.driver", DriverPostgres)
	v.SetDefault("remote.atomic_increment", true)
	v.SetDefault("remote.breaker_max_failures", 5)
	v.SetDefault("remote.breaker_timeout", 30*time.Second)

	v.SetDefault("observability.service_name", "shorty")
	v.SetDefault("observability.sample_ratio", 1.0)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")
	cfg.Remote.Driver = strings.ToLower(strings.TrimSpace(cfg.Remote.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverPostgres, DriverRedis, DriverLibSQL:
	default:
		return fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}
	if c.App.ShortCodeLen != model.CodeLength {
		return fmt.Errorf("short code length is fixed at %d, got %d", model.CodeLength, c.App.ShortCodeLen)
	}
	if c.App.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.App.MaxAttempts)
	}
	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be within [0, 1], got %v", c.Observability.SampleRatio)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// RemoteConfigured reports whether the remote namespace is available: the selected
// driver needs both an endpoint and a credential.
func (c *Config) RemoteConfigured() bool {
	switch c.Remote.Driver {
	case DriverPostgres:
		return c.Database.Host != "" && c.Database.Password != ""
	case DriverRedis:
		return c.Cache.Host != "" && c.Cache.Password != ""
	case DriverLibSQL:
		return c.LibSQL.URL != "" && c.LibSQL.AuthToken != ""
	}
	return false
}

type ConnectionInterface interface {
	ConnectionString() string
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// ConnectionString returns the Redis connection string
func (c *CacheConfig) ConnectionString() string {
	u := url.URL{
		Scheme: "redis",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   fmt.Sprintf("/%d", c.DB),
	}
	return u.String()
}
