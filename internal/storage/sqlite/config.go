package sqlite

import (
	"fmt"

	"event-router/internal/storage"
)

// Config holds SQLite adapter configuration
type Config struct {
	Path string `json:"path"`
}

// Validate implements storage.StorageConfig
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// Factory creates SQLite storage adapters from a generic config
type Factory struct{}

// Create implements storage.StorageFactory
func (Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	generic, ok := config.(storage.GenericConfig)
	if !ok {
		if typed, ok := config.(*Config); ok {
			return NewAdapter(typed)
		}
		return nil, fmt.Errorf("invalid config type for SQLite storage")
	}

	return NewAdapter(&Config{Path: generic["path"]})
}

func init() {
	storage.Register("sqlite", Factory{})
}
