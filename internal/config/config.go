package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Per-repository failure policies
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken       string
	GitHubAPIURL      string // empty means api.github.com
	RequestsPerSecond float64
	MaxServerRetries  int

	// Export
	Org        string
	Properties []string
	OutputFile string
	Debug      bool
	OnError    string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	StorageType string // "none", "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile loads the configuration from the given env file, then the environment.
// Variables already set in the environment take precedence over the file.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	rps, err := strconv.ParseFloat(getEnv("REQUESTS_PER_SECOND", "10"), 64)
	if err != nil || rps < 0 {
		return nil, &ConfigError{Field: "REQUESTS_PER_SECOND", Message: "must be a non-negative number"}
	}
	retries, err := strconv.Atoi(getEnv("MAX_SERVER_RETRIES", "3"))
	if err != nil || retries < 0 {
		return nil, &ConfigError{Field: "MAX_SERVER_RETRIES", Message: "must be a non-negative integer"}
	}

	return &Config{
		GitHubToken:       getEnv("GITHUB_TOKEN", ""),
		GitHubAPIURL:      getEnv("GITHUB_API_URL", ""),
		RequestsPerSecond: rps,
		MaxServerRetries:  retries,
		Org:               getEnv("ORG", ""),
		Properties:        ParseProperties(os.Getenv("PROPS")),
		OutputFile:        getEnv("OUTPUT_FILE", ""),
		Debug:             ParseBool(os.Getenv("DEBUG")),
		OnError:           getEnv("ON_ERROR", OnErrorAbort),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
		StorageType:       getEnv("STORAGE_TYPE", "none"),
		SQLitePath:        getEnv("SQLITE_PATH", "./exports.db"),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		APIPort:           getEnv("API_PORT", "8080"),
		APIHost:           getEnv("API_HOST", "localhost"),
		APIEndpoint:       getEnv("API_ENDPOINT", "http://localhost:8080"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ParseProperties splits a comma-separated property list.
// Order and duplicates are kept; blank entries are dropped.
func ParseProperties(raw string) []string {
	var props []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			props = append(props, p)
		}
	}
	return props
}

// ParseBool treats any non-empty value other than "0" or "false" as set
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// Validate validates the configuration needed for an export run
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
	}
	if c.Org == "" {
		return &ConfigError{Field: "ORG", Message: "organization is required"}
	}
	if len(c.Properties) == 0 {
		return &ConfigError{Field: "PROPS", Message: "at least one custom property name is required"}
	}
	if c.OutputFile == "" {
		return &ConfigError{Field: "OUTPUT_FILE", Message: "output file path is required"}
	}
	if c.OnError != OnErrorAbort && c.OnError != OnErrorSkip {
		return &ConfigError{Field: "ON_ERROR", Message: "must be 'abort' or 'skip'"}
	}
	return c.ValidateStorage()
}

// ValidateStorage validates only the run ledger settings
func (c *Config) ValidateStorage() error {
	switch c.StorageType {
	case "none", "sqlite":
	case "postgres":
		if c.PostgresURL == "" {
			return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
		}
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'none', 'sqlite' or 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
