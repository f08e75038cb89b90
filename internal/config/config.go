package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Conversational context window.
	HistoryLimit            int
	HistoryTTL              time.Duration
	RedisURL                string
	StorageOpTimeout        time.Duration
	StorageFailureThreshold int

	// Optional append-only PostgreSQL archive.
	DatabaseURL string

	// Model backend (Azure OpenAI chat completions).
	AzureOpenAIKey        string
	AzureOpenAIEndpoint   string
	AzureOpenAIDeployment string
	ModelMaxTokens        int
	ModelTemperature      float64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:        envOrDefault("APP_METRICS_NAMESPACE", "chatrelay"),
		HistoryLimit:            20,
		HistoryTTL:              24 * time.Hour,
		RedisURL:                envTrimmed("REDIS_URL"),
		StorageOpTimeout:        2 * time.Second,
		StorageFailureThreshold: 5,
		DatabaseURL:             envTrimmed("DATABASE_URL"),
		AzureOpenAIKey:          envTrimmed("AZURE_OPENAI_API_KEY"),
		AzureOpenAIEndpoint:     envTrimmed("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIDeployment:   envTrimmed("AZURE_OPENAI_DEPLOYMENT_NAME"),
		ModelMaxTokens:          512,
		ModelTemperature:        0.7,
		ShutdownTimeout:         15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("CHAT_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryTTL, err = durationFromEnv("CHAT_HISTORY_TTL", cfg.HistoryTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.StorageOpTimeout, err = durationFromEnv("CHAT_STORAGE_OP_TIMEOUT", cfg.StorageOpTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StorageFailureThreshold, err = intFromEnv("CHAT_STORAGE_FAILURE_THRESHOLD", cfg.StorageFailureThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelMaxTokens, err = intFromEnv("MODEL_MAX_TOKENS", cfg.ModelMaxTokens)
	if err != nil {
		return Config{}, err
	}

	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	if cfg.HistoryTTL < time.Minute {
		return Config{}, fmt.Errorf("CHAT_HISTORY_TTL must be at least 1m")
	}
	if cfg.StorageOpTimeout < 100*time.Millisecond || cfg.StorageOpTimeout > 10*time.Second {
		return Config{}, fmt.Errorf("CHAT_STORAGE_OP_TIMEOUT must be between 100ms and 10s")
	}
	if cfg.StorageFailureThreshold <= 0 {
		return Config{}, fmt.Errorf("CHAT_STORAGE_FAILURE_THRESHOLD must be positive")
	}
	if cfg.ModelMaxTokens <= 0 {
		return Config{}, fmt.Errorf("MODEL_MAX_TOKENS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
