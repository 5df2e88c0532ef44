package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	DBConn      string
	StoreDriver string
	LogLevel    string
	JWTSecret   string
	AuthEnabled bool
	Location    *time.Location

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	ReminderSweepEnabled  bool
	ReminderSweepSchedule string
	ReminderLeadDays      int
	ReminderMinInterval   time.Duration
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		DBConn:                getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=installments sslmode=disable"),
		StoreDriver:           getEnv("STORE_DRIVER", "postgres"),
		LogLevel:              getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:             getEnv("JWT_SECRET", "secret"),
		SMTPHost:              getEnv("SMTP_HOST", "localhost"),
		SMTPPort:              getEnv("SMTP_PORT", "1025"),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SenderEmail:           getEnv("SENDER_EMAIL", "billing@example.com"),
		ReminderSweepSchedule: getEnv("REMINDER_SWEEP_SCHEDULE", "0 9 * * *"),
	}

	var err error
	if cfg.AuthEnabled, err = getBool("AUTH_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.ReminderSweepEnabled, err = getBool("REMINDER_SWEEP_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.ReminderLeadDays, err = strconv.Atoi(getEnv("REMINDER_LEAD_DAYS", "3")); err != nil {
		return nil, fmt.Errorf("REMINDER_LEAD_DAYS: %w", err)
	}
	if cfg.ReminderMinInterval, err = time.ParseDuration(getEnv("REMINDER_MIN_INTERVAL", "24h")); err != nil {
		return nil, fmt.Errorf("REMINDER_MIN_INTERVAL: %w", err)
	}
	if cfg.Location, err = time.LoadLocation(getEnv("LOCATION", "UTC")); err != nil {
		return nil, fmt.Errorf("LOCATION: %w", err)
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DBConn == "" {
			return nil, fmt.Errorf("DB_CONN is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", cfg.StoreDriver)
	}
	if cfg.AuthEnabled && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ReminderLeadDays < 0 {
		return nil, fmt.Errorf("REMINDER_LEAD_DAYS must not be negative")
	}
	if cfg.ReminderSweepEnabled && cfg.SenderEmail == "" {
		return nil, fmt.Errorf("SENDER_EMAIL is required when the reminder sweep is enabled")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) (bool, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
