// Package config collects the environment-driven settings of the API and
// migration binaries. Every knob has a default suitable for local
// development; production deployments override via CUSTODIA_* variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime settings for the custodia binaries.
type Config struct {
	HTTPAddr string
	PGDSN    string

	AuthSecret  string
	TokenIssuer string
	TokenTTL    time.Duration

	RolesPath string

	AdminFirstName string
	AdminLastName  string
	AdminEmail     string
	AdminPassword  string
	AdminPhone     string
	AdminAddress   string

	RateLimitRPS   float64
	RateLimitBurst int

	PrincipalCacheTTL time.Duration

	MaxBodyBytes int64
}

// FromEnv builds a Config from CUSTODIA_* environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       envString("CUSTODIA_HTTP_ADDR", ":8080"),
		PGDSN:          os.Getenv("CUSTODIA_PG_DSN"),
		AuthSecret:     os.Getenv("CUSTODIA_AUTH_SECRET"),
		TokenIssuer:    envString("CUSTODIA_TOKEN_ISSUER", "custodia"),
		RolesPath:      os.Getenv("CUSTODIA_ROLES_PATH"),
		AdminFirstName: envString("CUSTODIA_ADMIN_FIRST_NAME", "System"),
		AdminLastName:  envString("CUSTODIA_ADMIN_LAST_NAME", "Administrator"),
		AdminEmail:     os.Getenv("CUSTODIA_ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("CUSTODIA_ADMIN_PASSWORD"),
		AdminPhone:     os.Getenv("CUSTODIA_ADMIN_PHONE"),
		AdminAddress:   os.Getenv("CUSTODIA_ADMIN_ADDRESS"),
	}

	var err error
	if cfg.TokenTTL, err = envDuration("CUSTODIA_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PrincipalCacheTTL, err = envDuration("CUSTODIA_PRINCIPAL_CACHE_TTL", 0); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPS, err = envFloat("CUSTODIA_RATE_LIMIT_RPS", 50); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = envInt("CUSTODIA_RATE_LIMIT_BURST", 100); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = envInt64("CUSTODIA_MAX_BODY_BYTES", 1<<20); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("CUSTODIA_AUTH_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("CUSTODIA_TOKEN_TTL must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
