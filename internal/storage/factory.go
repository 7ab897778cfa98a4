package storage

import (
	"fmt"

	"event-router/internal/common/errors"
	"event-router/internal/config"
)

// NewStorage creates a storage adapter based on configuration. The concrete
// adapters register themselves with the default registry; the caller must
// import the backend packages for their side effects.
func NewStorage(cfg *config.Config) (Storage, error) {
	var storageConfig StorageConfig
	storageType := cfg.DatabaseType

	switch storageType {
	case "sqlite":
		storageConfig = GenericConfig{
			"path": cfg.DatabasePath,
		}

	case "postgres", "postgresql":
		storageType = "postgres"
		storageConfig = GenericConfig{
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPort,
			"database": cfg.PostgresDB,
			"username": cfg.PostgresUser,
			"password": cfg.PostgresPassword,
			"sslmode":  cfg.PostgresSSLMode,
		}

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}

	return Create(storageType, storageConfig)
}
