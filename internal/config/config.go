package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Location   string
	RoutesFile string
	ContentDir string
	RootURL    string
	OutputPath string

	LogLevel    string
	LoadTimeout time.Duration
}

func Load() Config {
	return Config{
		Location:    getEnv("PAGESHELL_LOCATION", "about:blank#/"),
		RoutesFile:  strings.TrimSpace(os.Getenv("PAGESHELL_ROUTES_FILE")),
		ContentDir:  getEnv("PAGESHELL_CONTENT_DIR", "content"),
		RootURL:     getEnv("PAGESHELL_ROOT_URL", ""),
		OutputPath:  strings.TrimSpace(os.Getenv("PAGESHELL_OUTPUT")),
		LogLevel:    getEnv("PAGESHELL_LOG_LEVEL", "info"),
		LoadTimeout: getEnvDuration("PAGESHELL_LOAD_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
