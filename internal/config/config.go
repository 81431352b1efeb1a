package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv   string
	HTTPAddr string

	RedisAddr     string
	RedisPassword string

	// ScheduleTimezone is the fixed location all job schedules are evaluated
	// in. Deployments in different host timezones must fire at the same wall
	// clock instant, so the host local zone is never used.
	ScheduleTimezone string

	RunDeadline       time.Duration
	HeartbeatInterval time.Duration
	CategoryChunkSize int
	TaskQueue         string

	// Store endpoints the scrape units run against.
	ShopifyStoreURL   string
	StorefrontBaseURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPUseTLS   bool
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ScheduleTimezone: getenv("SCHEDULE_TIMEZONE", "America/New_York"),

		RunDeadline:       getenvDuration("RUN_DEADLINE", 4*time.Hour),
		HeartbeatInterval: getenvDuration("HEARTBEAT_INTERVAL", 60*time.Second),
		CategoryChunkSize: getenvInt("CATEGORY_CHUNK_SIZE", 4),
		TaskQueue:         getenv("TASK_QUEUE", "default"),

		ShopifyStoreURL:   getenv("SHOPIFY_STORE_URL", "https://store.example.com"),
		StorefrontBaseURL: getenv("STOREFRONT_BASE_URL", "https://www.example.com"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Store Scraper"),
		SMTPUseTLS:   getenv("SMTP_USE_TLS", "true") == "true",
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	if cfg.CategoryChunkSize < 1 {
		cfg.CategoryChunkSize = 1
	}
	return cfg
}
