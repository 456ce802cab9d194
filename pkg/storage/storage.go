// Package storage persists parameter snapshots and completed gradients.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/absmach/hyperfold/pkg/wire"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
)

// Snapshot is a parameter broadcast as stored by a node.
type Snapshot struct {
	Epoch     uint64            `json:"epoch"`
	Layers    []wire.LayerState `json:"layers"`
	CreatedAt time.Time         `json:"created_at"`
}

// Gradient is a completed layer aggregation at the root.
type Gradient struct {
	Epoch          uint64    `json:"epoch"`
	LayerIndex     int       `json:"layer_index"`
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
	BatchSize      int       `json:"batch_size"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Repository stores at most one snapshot per epoch and one gradient per
// (epoch, layer). Saving again replaces the previous value.
type Repository interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	GetSnapshot(ctx context.Context, epoch uint64) (Snapshot, error)
	LatestSnapshot(ctx context.Context) (Snapshot, error)
	// ListSnapshots pages through snapshots in ascending epoch order and
	// returns the total count.
	ListSnapshots(ctx context.Context, offset, limit uint64) ([]Snapshot, uint64, error)
	SaveGradient(ctx context.Context, g Gradient) error
	// ListGradients returns the gradients of epoch ordered by layer index.
	ListGradients(ctx context.Context, epoch uint64) ([]Gradient, error)
}
