package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/edps/internal/logger"
)

const (
	defaultAPIBaseURL   = "http://localhost:8000/api"
	defaultLoggingLevel = logger.LevelWarn
	defaultEnvironment  = logger.EnvProduction
	defaultTimeout      = 10 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment
	Environment string

	// Dashboard API base address, e.g. 'http://localhost:8000/api'
	APIBaseURL string

	// File the credential is kept in when user asks to be remembered
	// If empty per user config dir is used
	CredentialsFile string

	// Timeout of one API request
	Timeout time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		APIBaseURL:  defaultAPIBaseURL,
		Timeout:     defaultTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"EDPS_API_BASE_URL":     setString(&c.APIBaseURL),
		"EDPS_CREDENTIALS_FILE": setString(&c.CredentialsFile),
		"EDPS_TIMEOUT":          setDuration(&c.Timeout),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

// BindFlags registers config flags. Current values become flag defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.APIBaseURL, "api-url", "a", c.APIBaseURL, "Dashboard API base address")
	fs.StringVarP(&c.CredentialsFile, "credentials-file", "c", c.CredentialsFile, "File to keep remembered credential in")
	fs.DurationVarP(&c.Timeout, "timeout", "t", c.Timeout, "API request timeout")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
}
