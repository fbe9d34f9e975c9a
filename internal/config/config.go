// internal/config/config.go
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Realtime RealtimeConfig
	Forecast ForecastConfig
	Archive  ArchiveConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTLSeconds int
}

type RealtimeConfig struct {
	CoalesceWindow   time.Duration
	RefreshInterval  time.Duration
	RetryInterval    time.Duration
	MaxRetries       int
	SubscriberBuffer int
	RecentEvents     int
}

type ForecastConfig struct {
	WindowSize int
	// Multipliers widen the confidence band per requested tier. They are
	// tunables, not a contract; defaults follow the usual z-score family.
	Multipliers map[int]float64
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Load reads configuration from the environment (and an optional .env
// file) and returns a fresh Config. Callers inject the result into the
// services they construct; there is no process-wide instance.
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()

	// Set default values
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "merchant_ledger")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_SNAPSHOT_TTL_SECONDS", 300)
	v.SetDefault("REALTIME_COALESCE_WINDOW_MS", 250)
	v.SetDefault("REALTIME_REFRESH_INTERVAL_SECONDS", 30)
	v.SetDefault("REALTIME_RETRY_INTERVAL_SECONDS", 5)
	v.SetDefault("REALTIME_MAX_RETRIES", 5)
	v.SetDefault("REALTIME_SUBSCRIBER_BUFFER", 8)
	v.SetDefault("REALTIME_RECENT_EVENTS", 20)
	v.SetDefault("FORECAST_WINDOW_SIZE", 30)
	v.SetDefault("ARCHIVE_ENABLED", false)
	v.SetDefault("ARCHIVE_ENDPOINT", "")
	v.SetDefault("ARCHIVE_ACCESS_KEY", "")
	v.SetDefault("ARCHIVE_SECRET_KEY", "")
	v.SetDefault("ARCHIVE_BUCKET", "")
	v.SetDefault("ARCHIVE_REGION", "us-east-1")
	v.SetDefault("ARCHIVE_USE_SSL", true)

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			SnapshotTTLSeconds: v.GetInt("CACHE_SNAPSHOT_TTL_SECONDS"),
		},
		Realtime: RealtimeConfig{
			CoalesceWindow:   time.Duration(v.GetInt("REALTIME_COALESCE_WINDOW_MS")) * time.Millisecond,
			RefreshInterval:  time.Duration(v.GetInt("REALTIME_REFRESH_INTERVAL_SECONDS")) * time.Second,
			RetryInterval:    time.Duration(v.GetInt("REALTIME_RETRY_INTERVAL_SECONDS")) * time.Second,
			MaxRetries:       v.GetInt("REALTIME_MAX_RETRIES"),
			SubscriberBuffer: v.GetInt("REALTIME_SUBSCRIBER_BUFFER"),
			RecentEvents:     v.GetInt("REALTIME_RECENT_EVENTS"),
		},
		Forecast: ForecastConfig{
			WindowSize: v.GetInt("FORECAST_WINDOW_SIZE"),
			Multipliers: map[int]float64{
				80: 1.28,
				90: 1.64,
				95: 1.96,
				99: 2.58,
			},
		},
		Archive: ArchiveConfig{
			Enabled:   v.GetBool("ARCHIVE_ENABLED"),
			Endpoint:  v.GetString("ARCHIVE_ENDPOINT"),
			AccessKey: v.GetString("ARCHIVE_ACCESS_KEY"),
			SecretKey: v.GetString("ARCHIVE_SECRET_KEY"),
			Bucket:    v.GetString("ARCHIVE_BUCKET"),
			Region:    v.GetString("ARCHIVE_REGION"),
			UseSSL:    v.GetBool("ARCHIVE_USE_SSL"),
		},
	}
}
