package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the file. They keep secrets out of
// the YAML config.
const (
	EnvAPIKey       = "EPDWEATHER_API_KEY"
	EnvLocation     = "EPDWEATHER_LOCATION"
	EnvAuthUser     = "EPDWEATHER_BASIC_AUTH_USERNAME"
	EnvAuthPassword = "EPDWEATHER_BASIC_AUTH_PASSWORD"
)

// LoadEnv reads KEY=value pairs from envFile into the process environment
// (variables already set win) and applies the overrides above. A missing
// envFile is not an error; an empty name skips the file.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: env file %s: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Weather.APIKey = v
	}
	if v := os.Getenv(EnvLocation); v != "" {
		c.Weather.Location = v
	}
	user, pass := os.Getenv(EnvAuthUser), os.Getenv(EnvAuthPassword)
	if user != "" || pass != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		if user != "" {
			c.BasicAuth.Username = user
		}
		if pass != "" {
			c.BasicAuth.Password = pass
		}
	}
	return nil
}
