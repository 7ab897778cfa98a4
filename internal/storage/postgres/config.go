package postgres

import (
	"fmt"

	"event-router/internal/storage"
)

// Config holds PostgreSQL adapter configuration
type Config struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// Validate implements storage.StorageConfig
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	return nil
}

// GetConnectionString builds a pgx-compatible connection string
func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// Factory creates PostgreSQL storage adapters from a generic config
type Factory struct{}

// Create implements storage.StorageFactory
func (Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	generic, ok := config.(storage.GenericConfig)
	if !ok {
		if typed, ok := config.(*Config); ok {
			return NewAdapter(typed)
		}
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}

	return NewAdapter(&Config{
		Host:     generic["host"],
		Port:     generic["port"],
		Database: generic["database"],
		Username: generic["username"],
		Password: generic["password"],
		SSLMode:  generic["sslmode"],
	})
}

func init() {
	storage.Register("postgres", Factory{})
}
