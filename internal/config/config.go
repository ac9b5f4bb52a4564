// Package config loads the process configuration from the environment once
// at startup. The resulting Config is immutable and passed explicitly to
// every component that needs it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the server reads from the environment.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// Debug switches gin into debug mode and lowers the log level.
	Debug bool

	// DBPath is the sqlite database file path.
	DBPath string

	// PrivateKeyPath and PublicKeyPath locate the PEM-encoded RSA pair used
	// to sign and verify tokens.
	PrivateKeyPath string
	PublicKeyPath  string

	// AccessTokenTTL and RefreshTokenTTL bound token lifetimes. Access is
	// configured in minutes, refresh in days.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ReminderInterval is how often the deadline scan runs; ReminderWindow
	// is how far ahead of a deadline a reminder fires.
	ReminderInterval time.Duration
	ReminderWindow   time.Duration

	// EmailBackend selects the email.Sender implementation.
	EmailBackend string

	// AdminEmail and AdminPassword, when both set, bootstrap an account at
	// startup.
	AdminEmail    string
	AdminPassword string
}

// Load reads an optional .env file and then the environment into a Config.
func Load() (Config, error) {
	// Missing .env is fine; explicit environment always wins anyway.
	_ = godotenv.Load()

	cfg := Config{
		Addr:           EnvOrDefault("TASKHUB_ADDR", ":8080"),
		Debug:          envBool("TASKHUB_DEBUG", false),
		DBPath:         EnvOrDefault("TASKHUB_DB_PATH", "data/taskhub.db"),
		PrivateKeyPath: EnvOrDefault("TASKHUB_PRIVATE_KEY", "keys/jwt_private.pem"),
		PublicKeyPath:  EnvOrDefault("TASKHUB_PUBLIC_KEY", "keys/jwt_public.pem"),
		EmailBackend:   EnvOrDefault("TASKHUB_EMAIL_BACKEND", "log"),
		AdminEmail:     os.Getenv("TASKHUB_ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("TASKHUB_ADMIN_PASSWORD"),
	}

	accessMinutes, err := envInt("TASKHUB_ACCESS_TOKEN_MINUTES", 15)
	if err != nil {
		return Config{}, err
	}
	refreshDays, err := envInt("TASKHUB_REFRESH_TOKEN_DAYS", 7)
	if err != nil {
		return Config{}, err
	}
	intervalMinutes, err := envInt("TASKHUB_REMINDER_INTERVAL_MINUTES", 60)
	if err != nil {
		return Config{}, err
	}
	windowHours, err := envInt("TASKHUB_REMINDER_WINDOW_HOURS", 24)
	if err != nil {
		return Config{}, err
	}

	cfg.AccessTokenTTL = time.Duration(accessMinutes) * time.Minute
	cfg.RefreshTokenTTL = time.Duration(refreshDays) * 24 * time.Hour
	cfg.ReminderInterval = time.Duration(intervalMinutes) * time.Minute
	cfg.ReminderWindow = time.Duration(windowHours) * time.Hour

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return Config{}, fmt.Errorf("token lifetimes must be positive")
	}
	if cfg.ReminderInterval <= 0 || cfg.ReminderWindow <= 0 {
		return Config{}, fmt.Errorf("reminder interval and window must be positive")
	}

	return cfg, nil
}

// EnvOrDefault returns the environment variable value or fallback when it is
// empty.
func EnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}
