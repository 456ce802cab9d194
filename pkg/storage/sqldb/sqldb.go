// Package sqldb implements storage.Repository on any sqlx database whose
// driver supports INSERT ... ON CONFLICT. The sqlite and postgres packages
// open the connection and run the migrations.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

// Migrations creates the snapshot and gradient tables. The column types are
// understood by both sqlite and postgres.
func Migrations() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS snapshots (
						epoch BIGINT PRIMARY KEY,
						layers TEXT NOT NULL,
						created_at TIMESTAMP NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS gradients (
						epoch BIGINT NOT NULL,
						layer_index INTEGER NOT NULL,
						weight_gradient TEXT NOT NULL,
						bias_gradient TEXT NOT NULL,
						batch_size INTEGER NOT NULL,
						completed_at TIMESTAMP NOT NULL,
						PRIMARY KEY (epoch, layer_index)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS gradients`,
					`DROP TABLE IF EXISTS snapshots`,
				},
			},
		},
	}
}

// Migrate applies pending migrations for the given sql-migrate dialect.
func Migrate(db *sqlx.DB, dialect string) error {
	if _, err := migrate.Exec(db.DB, dialect, Migrations(), migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrMigration, err)
	}

	return nil
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) storage.Repository {
	return &repository{db: db}
}

type dbSnapshot struct {
	Epoch     int64     `db:"epoch"`
	Layers    string    `db:"layers"`
	CreatedAt time.Time `db:"created_at"`
}

type dbGradient struct {
	Epoch          int64     `db:"epoch"`
	LayerIndex     int       `db:"layer_index"`
	WeightGradient string    `db:"weight_gradient"`
	BiasGradient   string    `db:"bias_gradient"`
	BatchSize      int       `db:"batch_size"`
	CompletedAt    time.Time `db:"completed_at"`
}

func (r *repository) SaveSnapshot(ctx context.Context, s storage.Snapshot) error {
	layers, err := json.Marshal(s.Layers)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	row := dbSnapshot{
		Epoch:     int64(s.Epoch),
		Layers:    string(layers),
		CreatedAt: s.CreatedAt.UTC(),
	}
	query := `INSERT INTO snapshots (epoch, layers, created_at)
		VALUES (:epoch, :layers, :created_at)
		ON CONFLICT (epoch) DO UPDATE SET layers = excluded.layers, created_at = excluded.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrCreate, err)
	}

	return nil
}

func (r *repository) GetSnapshot(ctx context.Context, epoch uint64) (storage.Snapshot, error) {
	query := r.db.Rebind(`SELECT epoch, layers, created_at FROM snapshots WHERE epoch = ?`)

	var row dbSnapshot
	if err := r.db.GetContext(ctx, &row, query, int64(epoch)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}

		return storage.Snapshot{}, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	return toSnapshot(row)
}

func (r *repository) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	query := `SELECT epoch, layers, created_at FROM snapshots ORDER BY epoch DESC LIMIT 1`

	var row dbSnapshot
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}

		return storage.Snapshot{}, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	return toSnapshot(row)
}

func (r *repository) ListSnapshots(ctx context.Context, offset, limit uint64) ([]storage.Snapshot, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM snapshots`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	query := r.db.Rebind(`SELECT epoch, layers, created_at FROM snapshots ORDER BY epoch ASC LIMIT ? OFFSET ?`)
	var rows []dbSnapshot
	if err := r.db.SelectContext(ctx, &rows, query, int64(limit), int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	snapshots := make([]storage.Snapshot, 0, len(rows))
	for _, row := range rows {
		s, err := toSnapshot(row)
		if err != nil {
			return nil, 0, err
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, total, nil
}

func (r *repository) SaveGradient(ctx context.Context, g storage.Gradient) error {
	weights, err := json.Marshal(g.WeightGradient)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	bias, err := json.Marshal(g.BiasGradient)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	row := dbGradient{
		Epoch:          int64(g.Epoch),
		LayerIndex:     g.LayerIndex,
		WeightGradient: string(weights),
		BiasGradient:   string(bias),
		BatchSize:      g.BatchSize,
		CompletedAt:    g.CompletedAt.UTC(),
	}
	query := `INSERT INTO gradients (epoch, layer_index, weight_gradient, bias_gradient, batch_size, completed_at)
		VALUES (:epoch, :layer_index, :weight_gradient, :bias_gradient, :batch_size, :completed_at)
		ON CONFLICT (epoch, layer_index) DO UPDATE SET
			weight_gradient = excluded.weight_gradient,
			bias_gradient = excluded.bias_gradient,
			batch_size = excluded.batch_size,
			completed_at = excluded.completed_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrCreate, err)
	}

	return nil
}

func (r *repository) ListGradients(ctx context.Context, epoch uint64) ([]storage.Gradient, error) {
	query := r.db.Rebind(`SELECT epoch, layer_index, weight_gradient, bias_gradient, batch_size, completed_at
		FROM gradients WHERE epoch = ? ORDER BY layer_index ASC`)

	var rows []dbGradient
	if err := r.db.SelectContext(ctx, &rows, query, int64(epoch)); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDBQuery, err)
	}

	gradients := make([]storage.Gradient, 0, len(rows))
	for _, row := range rows {
		g := storage.Gradient{
			Epoch:       uint64(row.Epoch),
			LayerIndex:  row.LayerIndex,
			BatchSize:   row.BatchSize,
			CompletedAt: row.CompletedAt,
		}
		if err := json.Unmarshal([]byte(row.WeightGradient), &g.WeightGradient); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		if err := json.Unmarshal([]byte(row.BiasGradient), &g.BiasGradient); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		gradients = append(gradients, g)
	}

	return gradients, nil
}

func toSnapshot(row dbSnapshot) (storage.Snapshot, error) {
	var layers []wire.LayerState
	if err := json.Unmarshal([]byte(row.Layers), &layers); err != nil {
		return storage.Snapshot{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return storage.Snapshot{
		Epoch:     uint64(row.Epoch),
		Layers:    layers,
		CreatedAt: row.CreatedAt,
	}, nil
}
