// Package testutil holds fixtures and a behavioural suite shared by every
// storage.Repository backend.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/hyperfold/pkg/algebra"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(epoch uint64) storage.Snapshot {
	return storage.Snapshot{
		Epoch: epoch,
		Layers: []wire.LayerState{
			{
				LayerIndex: 0,
				Weights:    algebra.Matrix{Rows: 2, Cols: 2, Data: []float64{1, 0.5, -0.25, float64(epoch)}},
				Bias:       algebra.Vector{0.1, 0.2},
			},
			{
				LayerIndex: 1,
				Weights:    algebra.Matrix{Rows: 1, Cols: 2, Data: []float64{3, 4}},
				Bias:       algebra.Vector{-1},
			},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestGradient(epoch uint64, layer int) storage.Gradient {
	return storage.Gradient{
		Epoch:          epoch,
		LayerIndex:     layer,
		WeightGradient: []float64{0.25, -0.5, float64(layer)},
		BiasGradient:   []float64{0.125},
		BatchSize:      32 * (layer + 1),
		CompletedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func assertSnapshot(t *testing.T, want, got storage.Snapshot) {
	t.Helper()
	assert.Equal(t, want.Epoch, got.Epoch)
	assert.Equal(t, want.Layers, got.Layers)
	assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Second)
}

// RunRepositoryTests exercises a backend. repo must be empty.
func RunRepositoryTests(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty repository", func(t *testing.T) {
		_, err := repo.LatestSnapshot(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.GetSnapshot(ctx, 1)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		snapshots, total, err := repo.ListSnapshots(ctx, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, snapshots)
		assert.Equal(t, uint64(0), total)

		gradients, err := repo.ListGradients(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, gradients)
	})

	t.Run("save and get snapshots", func(t *testing.T) {
		for _, epoch := range []uint64{3, 1, 12, 2} {
			require.NoError(t, repo.SaveSnapshot(ctx, TestSnapshot(epoch)))
		}

		got, err := repo.GetSnapshot(ctx, 12)
		require.NoError(t, err)
		assertSnapshot(t, TestSnapshot(12), got)

		latest, err := repo.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(12), latest.Epoch)
	})

	t.Run("save replaces snapshot", func(t *testing.T) {
		replacement := TestSnapshot(2)
		replacement.Layers = replacement.Layers[:1]
		require.NoError(t, repo.SaveSnapshot(ctx, replacement))

		got, err := repo.GetSnapshot(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, got.Layers, 1)
	})

	t.Run("list snapshots", func(t *testing.T) {
		cases := []struct {
			desc   string
			offset uint64
			limit  uint64
			epochs []uint64
		}{
			{desc: "all", offset: 0, limit: 10, epochs: []uint64{1, 2, 3, 12}},
			{desc: "first page", offset: 0, limit: 2, epochs: []uint64{1, 2}},
			{desc: "second page", offset: 2, limit: 2, epochs: []uint64{3, 12}},
			{desc: "past the end", offset: 10, limit: 2, epochs: []uint64{}},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				snapshots, total, err := repo.ListSnapshots(ctx, tc.offset, tc.limit)
				require.NoError(t, err)
				assert.Equal(t, uint64(4), total)
				epochs := []uint64{}
				for _, s := range snapshots {
					epochs = append(epochs, s.Epoch)
				}
				assert.Equal(t, tc.epochs, epochs)
			})
		}
	})

	t.Run("gradients", func(t *testing.T) {
		require.NoError(t, repo.SaveGradient(ctx, TestGradient(7, 2)))
		require.NoError(t, repo.SaveGradient(ctx, TestGradient(7, 0)))
		require.NoError(t, repo.SaveGradient(ctx, TestGradient(8, 1)))

		replaced := TestGradient(7, 2)
		replaced.BatchSize = 1
		require.NoError(t, repo.SaveGradient(ctx, replaced))

		gradients, err := repo.ListGradients(ctx, 7)
		require.NoError(t, err)
		require.Len(t, gradients, 2)
		assert.Equal(t, 0, gradients[0].LayerIndex)
		assert.Equal(t, 2, gradients[1].LayerIndex)
		assert.Equal(t, 1, gradients[1].BatchSize)
		assert.Equal(t, TestGradient(7, 0).WeightGradient, gradients[0].WeightGradient)
		assert.Equal(t, TestGradient(7, 0).BiasGradient, gradients[0].BiasGradient)
	})
}
