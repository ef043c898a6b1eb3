package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port           string
	GinMode        string
	APIBaseURL     string
	TokenFile      string
	AllowedOrigins string
	FetchTimeout   time.Duration
}

// Load reads environment variables into a Config with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "release"),
		APIBaseURL:     strings.TrimSpace(os.Getenv("API_BASE_URL")),
		TokenFile:      getEnv("TOKEN_FILE", "tokens.json"),
		AllowedOrigins: strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")),
	}

	timeout, err := parseSecondsEnv("FETCH_TIMEOUT_SECONDS", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_TIMEOUT_SECONDS: %w", err)
	}
	cfg.FetchTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required (e.g. http://localhost:8000/api/)")
	}
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}
	if c.TokenFile == "" {
		return errors.New("TOKEN_FILE is required")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func parseSecondsEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if secs <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", secs)
	}
	return time.Duration(secs) * time.Second, nil
}
