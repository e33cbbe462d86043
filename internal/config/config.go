package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreDriver の値。
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Scheduler
	CheckInterval      time.Duration
	MinSearchInterval  time.Duration
	SchedulerAutostart bool

	// Fetch
	FetchHeadless     bool
	FetchTimeout      time.Duration
	FetchPollInterval time.Duration
	FetchMinGap       time.Duration
	FetchHumanize     bool
	BackfillMaxPages  int
	RelevanceFilter   bool
	MarketplaceURL    string
	BrowserRemoteURL  string

	// Snapshots
	SnapshotDir           string
	SnapshotRetentionDays int

	// Notify
	TelegramBotToken string
	TelegramChatID   int64
	NotifyQueueSize  int

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreSQLite))
	switch cfg.StoreDriver {
	case StoreSQLite, StorePostgres:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreDriver == StorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "./listingwatch.db")

	cfg.CheckInterval = getEnvDuration("CHECK_INTERVAL", 30*time.Minute)
	if os.Getenv("CHECK_INTERVAL") == "" {
		if m := getEnvInt("CHECK_INTERVAL_MINUTES", 0); m > 0 {
			cfg.CheckInterval = time.Duration(m) * time.Minute
		}
	}
	cfg.MinSearchInterval = getEnvDuration("MIN_SEARCH_INTERVAL", cfg.CheckInterval)
	cfg.SchedulerAutostart = getEnvBool("SCHEDULER_AUTOSTART", true)

	cfg.FetchHeadless = getEnvBool("FETCH_HEADLESS", true)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchPollInterval = getEnvDuration("FETCH_POLL_INTERVAL", 2*time.Second)
	cfg.FetchMinGap = getEnvDuration("FETCH_MIN_GAP", 20*time.Second)
	cfg.FetchHumanize = getEnvBool("FETCH_HUMANIZE", true)
	cfg.BackfillMaxPages = getEnvInt("BACKFILL_MAX_PAGES", 1)
	if cfg.BackfillMaxPages < 1 {
		cfg.BackfillMaxPages = 1
	}
	cfg.RelevanceFilter = getEnvBool("RELEVANCE_FILTER", false)
	cfg.MarketplaceURL = getEnvString("MARKETPLACE_BASE_URL", "https://www.avito.ru")
	cfg.BrowserRemoteURL = getEnvString("BROWSER_REMOTE_URL", "")

	cfg.SnapshotDir = getEnvString("SNAPSHOT_DIR", "./snapshots")
	cfg.SnapshotRetentionDays = getEnvInt("SNAPSHOT_RETENTION_DAYS", 7)

	cfg.NotifyQueueSize = getEnvInt("NOTIFY_QUEUE_SIZE", 64)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort), "/")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// TelegramEnabled はTelegram通知が有効かどうかを返す。
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
