package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/algebra"
	"github.com/absmach/hyperfold/pkg/fold"
)

var ErrEmptyBatch = errors.New("batch has no samples")

// Sample is the gradient of a single training example for one layer.
type Sample struct {
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
}

// FoldBatch averages per-sample gradients into one contribution whose batch
// size is the number of samples.
func FoldBatch(ctx context.Context, layer int, samples []Sample) (aggregator.Contribution, error) {
	if len(samples) == 0 {
		return aggregator.Contribution{}, ErrEmptyBatch
	}
	nw, nb := len(samples[0].WeightGradient), len(samples[0].BiasGradient)

	flat := make([]algebra.Vector, len(samples))
	for i, s := range samples {
		if len(s.WeightGradient) != nw || len(s.BiasGradient) != nb {
			return aggregator.Contribution{}, fmt.Errorf("%w: sample %d", algebra.ErrDimensionMismatch, i)
		}
		v := make(algebra.Vector, 0, nw+nb)
		v = append(v, s.WeightGradient...)
		flat[i] = append(v, s.BiasGradient...)
	}

	mean, _, err := fold.Branches(ctx, flat)
	if err != nil {
		return aggregator.Contribution{}, err
	}

	return aggregator.Contribution{
		LayerIndex:     layer,
		WeightGradient: mean[:nw],
		BiasGradient:   mean[nw:],
		BatchSize:      len(samples),
	}, nil
}
