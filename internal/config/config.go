package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL     string
	WorkerBaseURL   string
	WorkerAPIKey    string
	WorkerTimeout   time.Duration
	WebhookSecret   string
	Platform        string
	AutoStart       bool
	CronSpec        string
	Timezone        string
	BatchSize       int
	BatchDelay      time.Duration
	HTTPAddr        string
	ShutdownTimeout int // seconds
	LogLevel        string
	LogFormat       string
}

// SetDefaults registers the default value of every optional setting
func SetDefaults(v *viper.Viper) {
	v.SetDefault("WORKER_TIMEOUT", 30*time.Second)
	v.SetDefault("SCHEDULER_AUTO_START", false)
	v.SetDefault("SYNC_PLATFORM", "tripadvisor")
	v.SetDefault("SYNC_CRON", "0 6 * * *")
	v.SetDefault("SYNC_TIMEZONE", "UTC")
	v.SetDefault("SYNC_BATCH_SIZE", 5)
	v.SetDefault("SYNC_BATCH_DELAY", 30*time.Second)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v)

	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	workerBaseURL := v.GetString("WORKER_BASE_URL")
	workerAPIKey := v.GetString("WORKER_API_KEY")
	if workerBaseURL == "" || workerAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Warning: WORKER_BASE_URL or WORKER_API_KEY not set, sync dispatch will fail")
	}

	webhookSecret := v.GetString("WEBHOOK_SECRET")
	if webhookSecret == "" {
		fmt.Fprintln(os.Stderr, "Warning: WEBHOOK_SECRET not set, scheduler control endpoints will reject all requests")
	}

	batchSize := v.GetInt("SYNC_BATCH_SIZE")
	if batchSize <= 0 {
		return nil, fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", batchSize)
	}

	batchDelay := v.GetDuration("SYNC_BATCH_DELAY")
	if batchDelay < 0 {
		return nil, fmt.Errorf("SYNC_BATCH_DELAY must not be negative, got %s", batchDelay)
	}

	platform := strings.ToLower(strings.TrimSpace(v.GetString("SYNC_PLATFORM")))
	if platform == "" {
		return nil, fmt.Errorf("SYNC_PLATFORM must not be empty")
	}

	timezone := v.GetString("SYNC_TIMEZONE")
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("invalid SYNC_TIMEZONE %q: %w", timezone, err)
	}

	return &Config{
		DatabaseURL:     dbURL,
		WorkerBaseURL:   workerBaseURL,
		WorkerAPIKey:    workerAPIKey,
		WorkerTimeout:   v.GetDuration("WORKER_TIMEOUT"),
		WebhookSecret:   webhookSecret,
		Platform:        platform,
		AutoStart:       v.GetBool("SCHEDULER_AUTO_START"),
		CronSpec:        v.GetString("SYNC_CRON"),
		Timezone:        timezone,
		BatchSize:       batchSize,
		BatchDelay:      batchDelay,
		HTTPAddr:        v.GetString("HTTP_ADDR"),
		ShutdownTimeout: v.GetInt("SHUTDOWN_TIMEOUT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
	}, nil
}
