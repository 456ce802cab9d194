// Package postgres opens a server-backed storage.Repository.
package postgres

import (
	"fmt"
	"time"

	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/storage/sqldb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

type Config struct {
	Host    string
	Port    string
	User    string
	Pass    string
	Name    string
	SSLMode string
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Pass, c.Name, c.SSLMode)
}

type Database struct {
	*sqlx.DB
}

func NewDatabase(cfg Config) (*Database, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := sqldb.Migrate(db, "postgres"); err != nil {
		db.Close()

		return nil, err
	}

	return &Database{DB: db}, nil
}

func NewRepository(db *Database) storage.Repository {
	return sqldb.NewRepository(db.DB)
}
