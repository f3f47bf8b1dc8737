// Package config provides configuration management for the chatvault client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Provider selects the completion provider implementation.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// BackendKind selects the durable key-value backend.
type BackendKind string

const (
	BackendSQLite BackendKind = "sqlite"
	BackendFile   BackendKind = "file"
)

// Config holds the configuration for the client
type Config struct {
	Provider Provider
	Model    string
	// APIKey is the fallback credential used when the store holds none
	APIKey  string
	DataDir string
	Backend BackendKind

	// Telemetry config
	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Load loads configuration from environment variables
func Load() Config {
	config := Config{
		Provider:         ProviderOpenAI,
		Model:            "gpt-4",
		APIKey:           os.Getenv("CHATVAULT_API_KEY"),
		Backend:          BackendSQLite,
		TelemetryEnabled: os.Getenv("CHATVAULT_TELEMETRY") == "true",
		OTLPEndpoint:     os.Getenv("CHATVAULT_OTLP_ENDPOINT"),
	}

	if provider := os.Getenv("CHATVAULT_PROVIDER"); provider != "" {
		config.Provider = Provider(provider)
	}
	if model := os.Getenv("CHATVAULT_MODEL"); model != "" {
		config.Model = model
	}
	if backend := os.Getenv("CHATVAULT_BACKEND"); backend != "" {
		config.Backend = BackendKind(backend)
	}

	if dir := os.Getenv("CHATVAULT_DATA_DIR"); dir != "" {
		config.DataDir = dir
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		config.DataDir = filepath.Join(homeDir, ".chatvault")
	}

	if config.APIKey == "" {
		// Provider-specific variables work as well
		switch config.Provider {
		case ProviderOpenAI:
			config.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	return config
}

// Validate checks if the configuration is coherent
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q, expected %q or %q", c.Provider, ProviderOpenAI, ProviderAnthropic)
	}
	switch c.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q, expected %q or %q", c.Backend, BackendSQLite, BackendFile)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	return nil
}
