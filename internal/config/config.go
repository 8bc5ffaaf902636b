package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Database     Database     `mapstructure:"database"`
	Logger       Logger       `mapstructure:"logger"`
	Provider     Provider     `mapstructure:"provider"`
	Materializer Materializer `mapstructure:"materializer"`
	Server       Server       `mapstructure:"server"`
	Redis        Redis        `mapstructure:"redis"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Provider holds the configuration for the external security price API.
// An empty BaseURL or APIKey disables provider lookups.
type Provider struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	PageLimit      int     `mapstructure:"page_limit"`
}

// Materializer holds the configuration for the holdings materialization job.
type Materializer struct {
	Workers             int      `mapstructure:"workers"`
	IntervalSeconds     int      `mapstructure:"interval_seconds"`
	DefaultTimezone     string   `mapstructure:"default_timezone"`
	SnapshotConnections []string `mapstructure:"snapshot_connections"`
	InsertBatchSize     int      `mapstructure:"insert_batch_size"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Redis holds the configuration for the distributed account lock.
// An empty Addr selects the in-process lock.
type Redis struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

// SnapshotAuthoritative reports whether custodian snapshots of the given
// connection type are trusted as the present-day truth.
func (m Materializer) SnapshotAuthoritative(connectionType string) bool {
	for _, c := range m.SnapshotConnections {
		if strings.EqualFold(c, connectionType) {
			return true
		}
	}
	return false
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "holdings.db")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("provider.rate_limit", 5) // requests per second
	v.SetDefault("provider.rate_limit_burst", 5)
	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("provider.max_retries", 1) // a failed fetch falls through to the next price tier
	v.SetDefault("provider.page_limit", 500)
	v.SetDefault("materializer.workers", 4)
	v.SetDefault("materializer.interval_seconds", 3600)
	v.SetDefault("materializer.default_timezone", "UTC")
	v.SetDefault("materializer.snapshot_connections", []string{"plaid", "brokerage"})
	v.SetDefault("materializer.insert_batch_size", 500)
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.lock_ttl_seconds", 300)
}
