// Package config loads application configuration from the environment.
//
// Configuration comes from environment variables (optionally via a .env file
// in development). The parsed Config is constructed once in main and passed
// down explicitly; nothing in the application reads os.Getenv directly.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config holds all environment-based configuration for the server.
type Config struct {
	// Application
	AppName  string `env:"APP_NAME" envDefault:"GitHub Activity Tracker"`
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	DBPath   string `env:"DB_PATH" envDefault:"data/ghtracker.db"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// GitHub OAuth app credentials
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURI  string `env:"GITHUB_REDIRECT_URI"`

	// GitHub webhooks
	GitHubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`
	WebhookURL          string `env:"WEBHOOK_URL"` // public URL GitHub delivers events to

	// JWT session tokens
	JWTSecret               string `env:"JWT_SECRET"`
	AccessTokenExpireMinutes int   `env:"JWT_ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"15"`
	RefreshTokenExpireDays   int   `env:"JWT_REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"7"`

	// Rate limiting (requests per minute per identity)
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"100"`
	RateLimitBurst     int  `env:"RATE_LIMIT_BURST" envDefault:"20"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.GitHubClientID == "" || c.GitHubClientSecret == "" {
		return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required")
	}
	if c.GitHubRedirectURI == "" {
		return errors.New("GITHUB_REDIRECT_URI is required")
	}
	if c.GitHubWebhookSecret == "" {
		return errors.New("GITHUB_WEBHOOK_SECRET is required")
	}
	if c.WebhookURL == "" {
		return errors.New("WEBHOOK_URL is required")
	}
	// A short HMAC secret undermines every session token; refuse to start.
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if _, err := redis.ParseURL(c.RedisURL); err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if c.AccessTokenExpireMinutes < 1 {
		return errors.New("JWT_ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.RefreshTokenExpireDays < 1 {
		return errors.New("JWT_REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}
	return nil
}
