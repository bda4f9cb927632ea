package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the process configuration, sourced from the environment.
type Config struct {
	Port        string
	NATSURL     string
	NATSSubject string
	RedisAddr   string
	Headless    bool
	DryRun      bool
	BatchSize   int
	ProfilePath string
	JobsPath    string
	OracleURL   string
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Port:        normalizePort(getEnv("PORT", "8000")),
		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "applier.events.run"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		Headless:    getEnvBool("HEADLESS", true),
		DryRun:      getEnvBool("DRY_RUN", true),
		BatchSize:   getEnvInt("BATCH_SIZE", 10),
		ProfilePath: getEnv("PROFILE_PATH", "profile.yaml"),
		JobsPath:    getEnv("JOBS_PATH", ""),
		OracleURL:   getEnv("ORACLE_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}
