package storage

import (
	"context"
	"sort"
	"sync"
)

type gradientKey struct {
	epoch uint64
	layer int
}

type inMemoryRepository struct {
	sync.Mutex

	snapshots map[uint64]Snapshot
	gradients map[gradientKey]Gradient
}

func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		snapshots: make(map[uint64]Snapshot),
		gradients: make(map[gradientKey]Gradient),
	}
}

func (r *inMemoryRepository) SaveSnapshot(_ context.Context, s Snapshot) error {
	r.Lock()
	defer r.Unlock()

	r.snapshots[s.Epoch] = s

	return nil
}

func (r *inMemoryRepository) GetSnapshot(_ context.Context, epoch uint64) (Snapshot, error) {
	r.Lock()
	defer r.Unlock()

	if s, ok := r.snapshots[epoch]; ok {
		return s, nil
	}

	return Snapshot{}, ErrNotFound
}

func (r *inMemoryRepository) LatestSnapshot(_ context.Context) (Snapshot, error) {
	r.Lock()
	defer r.Unlock()

	var (
		latest Snapshot
		found  bool
	)
	for epoch, s := range r.snapshots {
		if !found || epoch > latest.Epoch {
			latest, found = s, true
		}
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}

	return latest, nil
}

func (r *inMemoryRepository) ListSnapshots(_ context.Context, offset, limit uint64) ([]Snapshot, uint64, error) {
	r.Lock()
	defer r.Unlock()

	epochs := make([]uint64, 0, len(r.snapshots))
	for e := range r.snapshots {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	total := uint64(len(epochs))
	if offset >= total {
		return []Snapshot{}, total, nil
	}
	end := min(offset+limit, total)

	result := make([]Snapshot, 0, end-offset)
	for _, e := range epochs[offset:end] {
		result = append(result, r.snapshots[e])
	}

	return result, total, nil
}

func (r *inMemoryRepository) SaveGradient(_ context.Context, g Gradient) error {
	r.Lock()
	defer r.Unlock()

	r.gradients[gradientKey{epoch: g.Epoch, layer: g.LayerIndex}] = g

	return nil
}

func (r *inMemoryRepository) ListGradients(_ context.Context, epoch uint64) ([]Gradient, error) {
	r.Lock()
	defer r.Unlock()

	result := []Gradient{}
	for k, g := range r.gradients {
		if k.epoch == epoch {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LayerIndex < result[j].LayerIndex })

	return result, nil
}
