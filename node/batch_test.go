package node_test

import (
	"context"
	"testing"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/algebra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, err := node.FoldBatch(ctx, 2, []node.Sample{
		{WeightGradient: []float64{1, 2}, BiasGradient: []float64{0}},
		{WeightGradient: []float64{3, 4}, BiasGradient: []float64{3}},
		{WeightGradient: []float64{5, 0}, BiasGradient: []float64{0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.LayerIndex)
	assert.Equal(t, 3, c.BatchSize)
	assert.InDeltaSlice(t, []float64{3, 2}, c.WeightGradient, 1e-9)
	assert.InDeltaSlice(t, []float64{1}, c.BiasGradient, 1e-9)

	_, err = node.FoldBatch(ctx, 0, nil)
	assert.ErrorIs(t, err, node.ErrEmptyBatch)

	_, err = node.FoldBatch(ctx, 0, []node.Sample{
		{WeightGradient: []float64{1}},
		{WeightGradient: []float64{1, 2}},
	})
	assert.ErrorIs(t, err, algebra.ErrDimensionMismatch)
}

func TestSGD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sink, err := node.NewSGD(0.5, map[int]aggregator.LayerShape{
		0: {Weights: 4, Bias: 2},
		1: {Weights: 2, Bias: 1},
	})
	require.NoError(t, err)

	snap, err := sink.Apply(ctx, 0, aggregator.Contribution{
		LayerIndex:     1,
		WeightGradient: []float64{2, 2},
		BiasGradient:   []float64{2},
	})
	require.NoError(t, err)
	assert.Nil(t, snap)

	snap, err = sink.Apply(ctx, 0, aggregator.Contribution{
		LayerIndex:     0,
		WeightGradient: []float64{1, 2, 3, 4},
		BiasGradient:   []float64{1, 1},
	})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), snap.Epoch)
	require.Len(t, snap.Layers, 2)
	assert.Equal(t, 0, snap.Layers[0].LayerIndex)
	assert.Equal(t, 2, snap.Layers[0].Weights.Rows)
	assert.Equal(t, 2, snap.Layers[0].Weights.Cols)
	assert.InDeltaSlice(t, []float64{-0.5, -1, -1.5, -2}, snap.Layers[0].Weights.Data, 1e-9)
	assert.InDeltaSlice(t, []float64{-1, -1}, []float64(snap.Layers[1].Weights.Data), 1e-9)

	_, err = sink.Apply(ctx, 1, aggregator.Contribution{LayerIndex: 0, WeightGradient: []float64{1}})
	assert.ErrorIs(t, err, algebra.ErrDimensionMismatch)

	_, err = sink.Apply(ctx, 1, aggregator.Contribution{LayerIndex: 7})
	assert.ErrorIs(t, err, aggregator.ErrShapeMismatch)

	_, err = node.NewSGD(0.1, map[int]aggregator.LayerShape{0: {Weights: 3, Bias: 2}})
	assert.ErrorIs(t, err, aggregator.ErrShapeMismatch)
}
