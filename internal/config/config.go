package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL string
	DataDir  string

	ModelProvider   string
	ModelName       string
	AnthropicAPIKey string
	OllamaURL       string
	InferTimeout    time.Duration

	TurnMaxTokens int
	TurnMaxNPCs   int
	Locale        string

	AllowUnknownActions  bool
	ActionStrictRegister bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		DataDir:  getEnv("DATA_DIR", "./data"),

		ModelProvider:   getEnv("MODEL_PROVIDER", "anthropic"),
		ModelName:       getEnv("MODEL_NAME", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),

		Locale: getEnv("OUTPUT_LOCALE", "en"),
	}

	var err error
	cfg.TurnMaxTokens, err = getEnvInt("TURN_MAX_TOKENS", 8000)
	if err != nil {
		return nil, err
	}
	cfg.TurnMaxNPCs, err = getEnvInt("TURN_MAX_NPCS", 4)
	if err != nil {
		return nil, err
	}

	timeoutSeconds, err := getEnvInt("INFER_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.InferTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.AllowUnknownActions = getEnvBool("ALLOW_UNKNOWN_ACTIONS", false)

	// Strict registration fails on duplicate action types. Defaults to
	// strict in production, lax in development so module packs can be
	// hot-reloaded while authoring.
	cfg.ActionStrictRegister = getEnvBool("ACTION_STRICT_REGISTER", cfg.Environment == "production")

	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

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
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
