package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database DatabaseConfig
	Redis    RedisConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Files    FilesConfig
	CORS     CORSConfig
	Log      LogConfig
}

// DatabaseConfig points at the embedded SQLite store holding the offline queue.
type DatabaseConfig struct {
	Path        string
	BusyTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// RemoteConfig identifies the site the agent reconciles against.
type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// SyncConfig tunes the background reconciliation loop.
type SyncConfig struct {
	Interval    time.Duration
	MinInterval time.Duration
	Workers     int
	LockTTL     time.Duration
	PageCache   time.Duration
}

// FilesConfig locates locally staged attachments awaiting upload.
type FilesConfig struct {
	StagingDir string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Path:        v.GetString("DB_PATH"),
		BusyTimeout: parseDuration(v.GetString("DB_BUSY_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Enabled:  v.GetBool("REDIS_ENABLED"),
	}

	cfg.Remote = RemoteConfig{
		BaseURL: v.GetString("REMOTE_BASE_URL"),
		Token:   v.GetString("REMOTE_TOKEN"),
		Timeout: parseDuration(v.GetString("REMOTE_TIMEOUT"), 30*time.Second),
	}

	cfg.Sync = SyncConfig{
		Interval:    parseDuration(v.GetString("SYNC_INTERVAL"), 10*time.Minute),
		MinInterval: parseDuration(v.GetString("SYNC_MIN_INTERVAL"), 5*time.Minute),
		Workers:     v.GetInt("SYNC_WORKERS"),
		LockTTL:     parseDuration(v.GetString("SYNC_LOCK_TTL"), 2*time.Minute),
		PageCache:   parseDuration(v.GetString("SYNC_PAGE_CACHE_TTL"), time.Minute),
	}

	cfg.Files = FilesConfig{
		StagingDir: v.GetString("FILES_STAGING_DIR"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8790)

	v.SetDefault("DB_PATH", "./collect-sync.db")
	v.SetDefault("DB_BUSY_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", false)

	v.SetDefault("REMOTE_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("REMOTE_TOKEN", "")
	v.SetDefault("REMOTE_TIMEOUT", "30s")

	v.SetDefault("SYNC_INTERVAL", "10m")
	v.SetDefault("SYNC_MIN_INTERVAL", "5m")
	v.SetDefault("SYNC_WORKERS", 2)
	v.SetDefault("SYNC_LOCK_TTL", "2m")
	v.SetDefault("SYNC_PAGE_CACHE_TTL", "1m")

	v.SetDefault("FILES_STAGING_DIR", "./staging")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
