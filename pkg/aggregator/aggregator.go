// Package aggregator reduces gradient contributions into one batch-weighted
// average per layer and epoch.
//
// A layer accumulator lives for one epoch. It is created by the first
// contribution, folds every distinct contributor once, and is evicted when
// the expected children and SELF have all contributed. Advancing the epoch
// discards every accumulator of the previous one.
package aggregator

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/absmach/hyperfold/pkg/algebra"
)

type accumulator struct {
	weight       algebra.Vector
	bias         algebra.Vector
	totalBatch   int
	contributors map[string]struct{}
}

// Aggregator is safe for concurrent use; one mutex serializes all calls.
type Aggregator struct {
	mu        sync.Mutex
	epoch     uint64
	shapes    map[int]LayerShape
	layers    map[int]*accumulator
	completed map[int]struct{}
}

type Option func(*Aggregator)

// WithLayerShapes rejects contributions whose gradient lengths differ from the
// configured shape of their layer. Layers without a shape accept the shape of
// their first contribution.
func WithLayerShapes(shapes map[int]LayerShape) Option {
	return func(a *Aggregator) {
		for idx, shape := range shapes {
			a.shapes[idx] = shape
		}
	}
}

// WithEpoch sets the starting epoch.
func WithEpoch(epoch uint64) Option {
	return func(a *Aggregator) {
		a.epoch = epoch
	}
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		shapes:    make(map[int]LayerShape),
		layers:    make(map[int]*accumulator),
		completed: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Aggregator) Epoch() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.epoch
}

// AdvanceEpoch adopts epoch when it is newer than the current one and drops
// all accumulator state. It reports whether the epoch changed.
func (a *Aggregator) AdvanceEpoch(epoch uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.advanceLocked(epoch)
}

func (a *Aggregator) advanceLocked(epoch uint64) bool {
	if epoch <= a.epoch {
		return false
	}
	a.epoch = epoch
	a.layers = make(map[int]*accumulator)
	a.completed = make(map[int]struct{})

	return true
}

// Aggregate folds c from contributorID into the accumulator of its layer.
//
// Contributions for an older epoch, or for a layer that already completed in
// this epoch, are Stale and leave the state untouched. A repeated contributor
// is ignored and reported as Pending. Both checks run before any shape
// validation. A newer epoch is adopted first. The layer completes once
// expectedChildren and SelfID have all contributed.
func (a *Aggregator) Aggregate(c Contribution, contributorID string, epoch uint64, expectedChildren []string) (Result, error) {
	if contributorID == "" {
		return Result{}, ErrEmptyContributor
	}
	if c.LayerIndex < 0 {
		return Result{}, ErrNegativeLayer
	}
	if c.BatchSize < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidBatch, c.BatchSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if epoch < a.epoch {
		return Result{Status: Stale}, nil
	}

	var (
		acc *accumulator
		ok  bool
	)
	if epoch == a.epoch {
		if _, done := a.completed[c.LayerIndex]; done {
			return Result{Status: Stale}, nil
		}
		if acc, ok = a.layers[c.LayerIndex]; ok {
			if _, dup := acc.contributors[contributorID]; dup {
				return Result{Status: Pending}, nil
			}
		}
	}

	if shape, configured := a.shapes[c.LayerIndex]; configured {
		if len(c.WeightGradient) != shape.Weights || len(c.BiasGradient) != shape.Bias {
			return Result{}, shapeError(c, shape.Weights, shape.Bias)
		}
	}
	if ok {
		if len(c.WeightGradient) != len(acc.weight) || len(c.BiasGradient) != len(acc.bias) {
			return Result{}, shapeError(c, len(acc.weight), len(acc.bias))
		}
		if acc.totalBatch > math.MaxInt-c.BatchSize {
			return Result{}, ErrOverflow
		}
	}
	a.advanceLocked(epoch)

	batch := float64(c.BatchSize)
	weighted := algebra.Vector(c.WeightGradient).Scale(batch)
	bias := algebra.Vector(c.BiasGradient).Scale(batch)
	if !ok {
		acc = &accumulator{
			weight:       weighted,
			bias:         bias,
			contributors: make(map[string]struct{}),
		}
		a.layers[c.LayerIndex] = acc
	} else {
		var err error
		if acc.weight, err = acc.weight.Add(weighted); err != nil {
			return Result{}, err
		}
		if acc.bias, err = acc.bias.Add(bias); err != nil {
			return Result{}, err
		}
	}
	acc.totalBatch += c.BatchSize
	acc.contributors[contributorID] = struct{}{}

	return a.finalizeLocked(c.LayerIndex, acc, expectedChildren), nil
}

// Recheck completes the in-flight layer when expectedChildren and SelfID have
// all contributed. It serves callers whose expected set shrank after the last
// contribution, such as a child timing out. A completed layer is Stale and a
// layer with no accumulator is Pending.
func (a *Aggregator) Recheck(layer int, expectedChildren []string) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, done := a.completed[layer]; done {
		return Result{Status: Stale}
	}
	acc, ok := a.layers[layer]
	if !ok {
		return Result{Status: Pending}
	}

	return a.finalizeLocked(layer, acc, expectedChildren)
}

func (a *Aggregator) finalizeLocked(layer int, acc *accumulator, expectedChildren []string) Result {
	if !covers(acc.contributors, expectedChildren) {
		return Result{Status: Pending}
	}

	scale := 1.0
	if acc.totalBatch > 0 {
		scale = 1 / float64(acc.totalBatch)
	}
	combined := Contribution{
		LayerIndex:     layer,
		WeightGradient: acc.weight.Scale(scale),
		BiasGradient:   acc.bias.Scale(scale),
		BatchSize:      acc.totalBatch,
	}
	delete(a.layers, layer)
	a.completed[layer] = struct{}{}

	return Result{Status: Complete, Contribution: &combined}
}

// Inspect returns a copy of the in-flight accumulator of layer.
func (a *Aggregator) Inspect(layer int) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.layers[layer]
	if !ok {
		return State{}, false
	}

	return State{
		WeightedSumWeight: append([]float64(nil), acc.weight...),
		WeightedSumBias:   append([]float64(nil), acc.bias...),
		TotalBatch:        acc.totalBatch,
		Contributors:      sortedIDs(acc.contributors),
	}, true
}

// Progress lists in-flight and completed layers of the current epoch ordered
// by layer index.
func (a *Aggregator) Progress() []LayerProgress {
	a.mu.Lock()
	defer a.mu.Unlock()

	progress := make([]LayerProgress, 0, len(a.layers)+len(a.completed))
	for idx, acc := range a.layers {
		progress = append(progress, LayerProgress{
			LayerIndex:   idx,
			Contributors: sortedIDs(acc.contributors),
			TotalBatch:   acc.totalBatch,
		})
	}
	for idx := range a.completed {
		progress = append(progress, LayerProgress{
			LayerIndex:   idx,
			Contributors: []string{},
			Completed:    true,
		})
	}
	sort.Slice(progress, func(i, j int) bool { return progress[i].LayerIndex < progress[j].LayerIndex })

	return progress
}

func covers(contributors map[string]struct{}, expected []string) bool {
	if _, ok := contributors[SelfID]; !ok {
		return false
	}
	for _, id := range expected {
		if _, ok := contributors[id]; !ok {
			return false
		}
	}

	return true
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func shapeError(c Contribution, weights, bias int) error {
	return fmt.Errorf("%w: layer %d expects %d weights and %d bias values, got %d and %d",
		ErrShapeMismatch, c.LayerIndex, weights, bias, len(c.WeightGradient), len(c.BiasGradient))
}
