// Package factory selects a storage backend from configuration.
package factory

import (
	"fmt"
	"io"

	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/storage/badger"
	"github.com/absmach/hyperfold/pkg/storage/postgres"
	"github.com/absmach/hyperfold/pkg/storage/sqlite"
)

type Config struct {
	Type string `env:"STORAGE_TYPE" envDefault:"memory"`

	BadgerPath string `env:"BADGER_PATH" envDefault:"./data/badger"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./hyperfold.db"`

	PostgresHost    string `env:"POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER"    envDefault:"hyperfold"`
	PostgresPass    string `env:"POSTGRES_PASS"    envDefault:"hyperfold"`
	PostgresDB      string `env:"POSTGRES_DB"      envDefault:"hyperfold"`
	PostgresSSLMode string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

// New opens the configured repository. The returned closer is nil for the
// in-memory backend.
func New(cfg Config) (storage.Repository, io.Closer, error) {
	switch cfg.Type {
	case "memory", "":
		return storage.NewInMemoryRepository(), nil, nil
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}

		return badger.NewRepository(db), db, nil
	case "sqlite":
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		return sqlite.NewRepository(db), db, nil
	case "postgres":
		db, err := postgres.NewDatabase(postgres.Config{
			Host:    cfg.PostgresHost,
			Port:    cfg.PostgresPort,
			User:    cfg.PostgresUser,
			Pass:    cfg.PostgresPass,
			Name:    cfg.PostgresDB,
			SSLMode: cfg.PostgresSSLMode,
		})
		if err != nil {
			return nil, nil, err
		}

		return postgres.NewRepository(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
