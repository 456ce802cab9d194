package node

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/algebra"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
)

var _ ModelSink = (*sgd)(nil)

type sgd struct {
	mu      sync.Mutex
	lr      float64
	layers  map[int]wire.LayerState
	applied map[uint64]map[int]struct{}
}

// NewSGD returns a model sink that applies plain gradient descent with
// learning rate lr to a zero-initialised model. A layer with shape
// {Weights: w, Bias: b} is held as a b x w/b matrix and a bias of length b.
// Once every layer of an epoch has been updated the model is returned as the
// snapshot of the next epoch.
func NewSGD(lr float64, shapes map[int]aggregator.LayerShape) (ModelSink, error) {
	layers := make(map[int]wire.LayerState, len(shapes))
	for idx, shape := range shapes {
		rows, cols := shape.Bias, 1
		switch {
		case rows == 0:
			rows, cols = 1, shape.Weights
		case shape.Weights%rows != 0:
			return nil, fmt.Errorf("%w: layer %d has %d weights for %d outputs", aggregator.ErrShapeMismatch, idx, shape.Weights, rows)
		default:
			cols = shape.Weights / rows
		}
		w, err := algebra.NewMatrix(rows, cols, make([]float64, shape.Weights))
		if err != nil {
			return nil, err
		}
		layers[idx] = wire.LayerState{LayerIndex: idx, Weights: w, Bias: algebra.Zeros(shape.Bias)}
	}

	return &sgd{
		lr:      lr,
		layers:  layers,
		applied: make(map[uint64]map[int]struct{}),
	}, nil
}

func (o *sgd) Apply(_ context.Context, epoch uint64, c aggregator.Contribution) (*storage.Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	layer, ok := o.layers[c.LayerIndex]
	if !ok {
		return nil, fmt.Errorf("%w: unknown layer %d", aggregator.ErrShapeMismatch, c.LayerIndex)
	}
	grad, err := algebra.NewMatrix(layer.Weights.Rows, layer.Weights.Cols, c.WeightGradient)
	if err != nil {
		return nil, err
	}
	weights, err := layer.Weights.Add(grad.Scale(-o.lr))
	if err != nil {
		return nil, err
	}
	bias, err := layer.Bias.Add(algebra.Vector(c.BiasGradient).Scale(-o.lr))
	if err != nil {
		return nil, err
	}
	o.layers[c.LayerIndex] = wire.LayerState{LayerIndex: c.LayerIndex, Weights: weights, Bias: bias}

	done, ok := o.applied[epoch]
	if !ok {
		done = make(map[int]struct{})
		o.applied[epoch] = done
	}
	done[c.LayerIndex] = struct{}{}
	if len(done) < len(o.layers) {
		return nil, nil
	}
	delete(o.applied, epoch)

	snapshot := &storage.Snapshot{Epoch: epoch + 1, Layers: make([]wire.LayerState, 0, len(o.layers))}
	for _, l := range o.layers {
		snapshot.Layers = append(snapshot.Layers, l)
	}
	sort.Slice(snapshot.Layers, func(i, j int) bool {
		return snapshot.Layers[i].LayerIndex < snapshot.Layers[j].LayerIndex
	})

	return snapshot, nil
}
