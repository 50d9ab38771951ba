// Package config loads riverflow settings from the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all service settings, populated from environment variables
type Config struct {
	// Upstream
	USGSBaseURL   string
	ParameterCode string
	FetchTimeout  time.Duration

	// Scheduling
	RefreshSchedule string

	// Storage
	DBPath string

	// Reference data; empty paths use the embedded datasets
	SitesFile      string
	ConditionsFile string

	// Presentation
	HTTPAddr string
	Location *time.Location

	// Telegram and assistant
	TelegramBotToken string
	OpenAIAPIKey     string

	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	schedule := envOrDefault("REFRESH_SCHEDULE", "@every 15m")
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", schedule, err)
	}

	tzName := envOrDefault("TZ_NAME", "Local")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME %q: %w", tzName, err)
	}

	cfg := &Config{
		USGSBaseURL:      envOrDefault("USGS_BASE_URL", "https://waterservices.usgs.gov/nwis/iv/"),
		ParameterCode:    envOrDefault("USGS_PARAMETER_CODE", "00060"),
		FetchTimeout:     fetchTimeout,
		RefreshSchedule:  schedule,
		DBPath:           envOrDefault("DB_PATH", "data/riverflow.db"),
		SitesFile:        os.Getenv("SITES_FILE"),
		ConditionsFile:   os.Getenv("CONDITIONS_FILE"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		Location:         loc,
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		ShutdownTimeout:  shutdownTimeout,
	}

	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
