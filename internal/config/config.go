package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 環境ごとのキャッシュTTLのデフォルト。
const (
	productionCacheTTL  = 60 * time.Second
	developmentCacheTTL = 5 * time.Minute
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string

	// Database（postgres:// または mongodb://）
	DatabaseURL string

	// Cache
	CacheTTL time.Duration

	// Files
	SnapshotPath   string
	LocalStorePath string

	// Remote timeouts
	RemoteTimeoutHomepage   time.Duration
	RemoteTimeoutCollection time.Duration
	RemoteTimeoutItem       time.Duration

	// Background refresh
	RefreshQueueSize int
	SyncInterval     time.Duration

	// Admin
	AdminToken     string
	RateLimitAdmin int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS 許可オリジン（カンマ区切りで複数可）
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = strings.ToLower(getEnvString("APP_ENV", "development"))
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", defaultCacheTTL(cfg.AppEnv))
	cfg.SnapshotPath = getEnvString("SNAPSHOT_PATH", "data/content-optimized.json")
	cfg.LocalStorePath = getEnvString("LOCAL_STORE_PATH", "data/content.json")
	cfg.RemoteTimeoutHomepage = getEnvDuration("REMOTE_TIMEOUT_HOMEPAGE", 10*time.Second)
	cfg.RemoteTimeoutCollection = getEnvDuration("REMOTE_TIMEOUT_COLLECTION", 6*time.Second)
	cfg.RemoteTimeoutItem = getEnvDuration("REMOTE_TIMEOUT_ITEM", 3*time.Second)
	cfg.RefreshQueueSize = getEnvInt("REFRESH_QUEUE_SIZE", 16)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 15*time.Minute)
	cfg.AdminToken = getEnvString("ADMIN_TOKEN", "")
	cfg.RateLimitAdmin = getEnvInt("RATE_LIMIT_ADMIN", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// IsProductionLike は本番相当の環境（production/staging）かどうかを返す。
func (c *Config) IsProductionLike() bool {
	return c.AppEnv == "production" || c.AppEnv == "staging"
}

// defaultCacheTTL は本番相当の環境では短く、それ以外では長いTTLを返す。
// 本番ではホスティング先の読み取りクォータに収まるよう短くしている。
func defaultCacheTTL(appEnv string) time.Duration {
	switch appEnv {
	case "production", "staging":
		return productionCacheTTL
	default:
		return developmentCacheTTL
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
