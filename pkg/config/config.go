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
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Ranking  RankingConfig
	Chat     ChatConfig
	Storage  StorageConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RankingConfig governs caching of class exam boards.
type RankingConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ChatConfig tunes message paging and client polling.
type ChatConfig struct {
	PageSize     int
	MaxPageSize  int
	PollInterval time.Duration
}

// StorageConfig controls attachment storage, previews and signed view URLs.
type StorageConfig struct {
	BaseDir          string
	Bucket           string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	PreviewSize      int
	PreviewWorkers   int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ranking = RankingConfig{
		CacheEnabled: v.GetBool("ENABLE_RANKING_CACHE"),
		CacheTTL:     parseDuration(v.GetString("RANKING_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Chat = ChatConfig{
		PageSize:     positiveOr(v.GetInt("CHAT_PAGE_SIZE"), 100),
		MaxPageSize:  positiveOr(v.GetInt("CHAT_MAX_PAGE_SIZE"), 100),
		PollInterval: parseDuration(v.GetString("CHAT_POLL_INTERVAL"), 4*time.Second),
	}
	if cfg.Chat.PageSize > cfg.Chat.MaxPageSize {
		cfg.Chat.PageSize = cfg.Chat.MaxPageSize
	}

	maxFileSize := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		BaseDir:          v.GetString("STORAGE_DIR"),
		Bucket:           v.GetString("STORAGE_BUCKET"),
		SignedURLSecret:  v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxFileSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
		PreviewSize:      positiveOr(v.GetInt("STORAGE_PREVIEW_SIZE"), 320),
		PreviewWorkers:   positiveOr(v.GetInt("STORAGE_PREVIEW_WORKERS"), 1),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_classroom")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "sma-classroom-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_RANKING_CACHE", false)
	v.SetDefault("RANKING_CACHE_TTL", "2m")

	v.SetDefault("CHAT_PAGE_SIZE", 100)
	v.SetDefault("CHAT_MAX_PAGE_SIZE", 100)
	v.SetDefault("CHAT_POLL_INTERVAL", "4s")

	v.SetDefault("STORAGE_DIR", "./attachments")
	v.SetDefault("STORAGE_BUCKET", "chat-attachments")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "30m")
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/gif,application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/zip,text/plain")
	v.SetDefault("STORAGE_PREVIEW_SIZE", 320)
	v.SetDefault("STORAGE_PREVIEW_WORKERS", 1)
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

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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

// viper reports a missing explicit config file as a *fs.PathError rather than
// ConfigFileNotFoundError when SetConfigFile is used.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}
