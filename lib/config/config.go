// Package config reads the Lambda runtime environment. Secrets and database
// settings are not read here; they come from SSM Parameter Store.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the environment every Lambda in this repository reads at cold start
type Config struct {
	IsLocal        bool          `envconfig:"IS_LOCAL" default:"false"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"error"`
	Region         string        `envconfig:"AWS_REGION" default:"us-east-2"`
	LocalEndpoint  string        `envconfig:"LOCAL_ENDPOINT" default:"http://docker.for.mac.host.internal:4566"`
	DocumentBucket string        `envconfig:"DOCUMENT_BUCKET"`
	URLExpiry      time.Duration `envconfig:"URL_EXPIRY" default:"15m"`
}

// Load parses the process environment into a Config
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if cfg.URLExpiry <= 0 {
		return nil, fmt.Errorf("URL_EXPIRY must be positive, got %s", cfg.URLExpiry)
	}
	return &cfg, nil
}
