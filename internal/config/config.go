package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/service"
)

type Config struct {
	Port          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string
	LogLevel      string

	StaleSessionAfter   time.Duration
	DefaultFocusMinutes int
	MaxSessionMinutes   int
}

// Load reads configuration from the environment. Values in a .env file in the working
// directory are applied first without overriding variables that are already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	return Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/studyplan.db"),
		JWTSecret:           getEnv("JWT_SECRET", "change-this-secret"),
		TokenTTL:            time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins:         getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "./migrations"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StaleSessionAfter:   time.Duration(getEnvInt("STALE_SESSION_MINUTES", 240)) * time.Minute,
		DefaultFocusMinutes: getEnvInt("DEFAULT_FOCUS_MINUTES", 25),
		MaxSessionMinutes:   getEnvInt("MAX_SESSION_MINUTES", 180),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Warn().Str("key", key).Str("value", value).Int("fallback", fallback).Msg("ignoring invalid integer setting")
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

// SessionPolicy converts the lifecycle settings into the controller's policy.
func (c Config) SessionPolicy() service.Policy {
	return service.Policy{
		StaleAfter:             c.StaleSessionAfter,
		DefaultDurationSeconds: c.DefaultFocusMinutes * 60,
		MaxDurationMinutes:     c.MaxSessionMinutes,
	}
}
