// Package config contains the configuration of the VTU engine.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the runtime parameters of the VTU engine.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	ProviderAddress string        `env:"PROVIDER_ADDRESS"`
	ProviderAPIKey  string        `env:"PROVIDER_API_KEY"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT"`
	AuthSecret      string        `env:"AUTH_SECRET"`
}

// Parse reads the configuration from a .env file, environment variables and
// command-line flags. Environment values win over flags.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envProviderAddress := cfg.ProviderAddress
	envProviderAPIKey := cfg.ProviderAPIKey
	envProviderTimeout := cfg.ProviderTimeout
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ProviderAddress, "p", "", "fulfillment provider base URL")
	flag.StringVar(&cfg.ProviderAPIKey, "k", "", "fulfillment provider API key")
	flag.DurationVar(&cfg.ProviderTimeout, "t", 15*time.Second, "fulfillment provider call timeout")
	flag.StringVar(&cfg.AuthSecret, "s", "", "shared secret for bearer tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envProviderAddress != "" {
		cfg.ProviderAddress = envProviderAddress
	}
	if envProviderAPIKey != "" {
		cfg.ProviderAPIKey = envProviderAPIKey
	}
	if envProviderTimeout != 0 {
		cfg.ProviderTimeout = envProviderTimeout
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}

	return cfg, nil
}
