package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Storage backends
const (
	BackendFile       = "file"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Config holds the application configuration
type Config struct {
	BotToken string
	AdminIDs []int64 // Empty means every user is an operator

	// Secondary account credentials (both or neither)
	APIID   int
	APIHash string

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)

	Port string

	StorageBackend string
	ConfigFile     string

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	WorkerPoolSize   int
	HistoryBatchSize int
	LogLevel         string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		BotToken:           os.Getenv("BOT_TOKEN"),
		APIHash:            os.Getenv("API_HASH"),
		WebhookMode:        os.Getenv("WEBHOOK_MODE") == "true",
		WebhookURL:         os.Getenv("WEBHOOK_URL"),
		Port:               getEnv("PORT", "8000"),
		StorageBackend:     getEnv("STORAGE_BACKEND", BackendFile),
		ConfigFile:         getEnv("CONFIG_FILE", "config.json"),
		ClickHouseHost:     os.Getenv("CLICKHOUSE_HOST"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
		ClickHouseUseTLS:   os.Getenv("CLICKHOUSE_USE_TLS") == "true",
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	ids, err := ParseIDList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	config.AdminIDs = ids

	if config.APIID, err = getEnvInt("API_ID", 0); err != nil {
		return nil, err
	}
	if config.ClickHousePort, err = getEnvInt("CLICKHOUSE_PORT", 9000); err != nil {
		return nil, err
	}
	if config.WorkerPoolSize, err = getEnvInt("WORKER_POOL_SIZE", 16); err != nil {
		return nil, err
	}
	if config.HistoryBatchSize, err = getEnvInt("HISTORY_BATCH_SIZE", 100); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BotToken, validation.Required.Error("BOT_TOKEN is required")),
		validation.Field(&c.APIID, validation.Required.When(c.APIHash != "").Error("API_ID is required when API_HASH is set")),
		validation.Field(&c.APIHash, validation.Required.When(c.APIID != 0).Error("API_HASH is required when API_ID is set")),
		validation.Field(&c.WebhookURL, validation.Required.When(c.WebhookMode).Error("WEBHOOK_URL is required when WEBHOOK_MODE is true")),
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.StorageBackend, validation.In(BackendFile, BackendClickHouse, BackendMemory)),
		validation.Field(&c.ConfigFile, validation.Required.When(c.StorageBackend == BackendFile)),
		validation.Field(&c.ClickHouseHost, validation.Required.When(c.StorageBackend == BackendClickHouse).Error("CLICKHOUSE_HOST is required for the clickhouse backend")),
		validation.Field(&c.WorkerPoolSize, validation.Min(1)),
		validation.Field(&c.HistoryBatchSize, validation.Min(1), validation.Max(100)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

// UserClientEnabled reports whether secondary account credentials are configured
func (c *Config) UserClientEnabled() bool {
	return c.APIID != 0 && c.APIHash != ""
}

// ParseIDList parses a comma-separated list of user IDs, ignoring empty items
func ParseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q", idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
