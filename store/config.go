package store

import (
	"log/slog"

	"github.com/google/uuid"
)

// Config holds configuration for a Store.
type Config struct {
	// Name identifies the store in logs and diagnostics.
	// Default: "tendril-" plus a random suffix.
	Name string

	// Logger receives orchestrator and pipeline diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger

	// Middleware is the store-wide chain, run ahead of any
	// atom-specific middleware for every atom registered in the store.
	// The chain is fixed at construction so that all atoms observe an
	// identical store-wide prefix.
	Middleware []*Middleware
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{}
}

// validate ensures config values are usable.
func (c *Config) validate() {
	if c.Name == "" {
		c.Name = "tendril-" + uuid.NewString()[:8]
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
