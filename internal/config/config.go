package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Tenant   TenantConfig   `yaml:"tenant"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents the shared metadata store configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// TenantConfig represents tenant routing configuration
type TenantConfig struct {
	// DirectoryTTL bounds how long a tenant metadata snapshot may be served
	// from cache before a fresh registry lookup is forced.
	DirectoryTTL time.Duration `yaml:"directory_ttl"`
	// ConnectionTTL bounds how long a schema-bound connection handle is reused.
	ConnectionTTL  time.Duration `yaml:"connection_ttl"`
	TrialDays      int           `yaml:"trial_days"`
	SchemaPrefix   string        `yaml:"schema_prefix"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	HealthTimeout  time.Duration `yaml:"health_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`

	// Pool limits applied to each per-tenant handle.
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from a file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	cfg.setDefaults()

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if port := os.Getenv("API_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.API.Port = p
		}
	}
}

// setDefaults fills in defaults for values the config file omits
func (c *Config) setDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.Tenant.DirectoryTTL == 0 {
		c.Tenant.DirectoryTTL = 5 * time.Minute
	}
	if c.Tenant.ConnectionTTL == 0 {
		c.Tenant.ConnectionTTL = 30 * time.Minute
	}
	if c.Tenant.TrialDays == 0 {
		c.Tenant.TrialDays = 30
	}
	if c.Tenant.SchemaPrefix == "" {
		c.Tenant.SchemaPrefix = "tenant_"
	}
	if c.Tenant.AcquireTimeout == 0 {
		c.Tenant.AcquireTimeout = 10 * time.Second
	}
	if c.Tenant.HealthTimeout == 0 {
		c.Tenant.HealthTimeout = 5 * time.Second
	}
	if c.Tenant.MaxOpenConns == 0 {
		c.Tenant.MaxOpenConns = 5
	}
	if c.Tenant.MaxIdleConns == 0 {
		c.Tenant.MaxIdleConns = 2
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
