// Package sqlite opens a file-backed storage.Repository.
package sqlite

import (
	"fmt"
	"time"

	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/storage/sqldb"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDBConnection, err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := sqldb.Migrate(db, "sqlite3"); err != nil {
		db.Close()

		return nil, err
	}

	return &Database{DB: db}, nil
}

func NewRepository(db *Database) storage.Repository {
	return sqldb.NewRepository(db.DB)
}
