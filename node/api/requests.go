package api

import (
	"errors"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/api"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/wire"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var errMixedGradient = errors.New("provide either a gradient or samples, not both")

type emptyReq struct{}

func (e *emptyReq) validate() error {
	return nil
}

type registerPeerReq struct {
	ID      string     `json:"id"`
	Address string     `json:"address"`
	Role    peers.Role `json:"role"`
}

func (r *registerPeerReq) validate() error {
	if r.ID == "" {
		return apiutil.ErrMissingID
	}

	return peers.ValidateAddress(r.Address)
}

type advanceEpochReq struct {
	Epoch uint64 `json:"epoch"`
}

func (r *advanceEpochReq) validate() error {
	return nil
}

// submitGradientReq carries either one already averaged layer gradient or the
// per-sample gradients to average on the node.
type submitGradientReq struct {
	Epoch          uint64        `json:"epoch"`
	LayerIndex     int           `json:"layer_index"`
	WeightGradient []float64     `json:"weight_gradient,omitempty"`
	BiasGradient   []float64     `json:"bias_gradient,omitempty"`
	BatchSize      int           `json:"batch_size,omitempty"`
	Samples        []node.Sample `json:"samples,omitempty"`
}

func (r *submitGradientReq) validate() error {
	if r.LayerIndex < 0 {
		return aggregator.ErrNegativeLayer
	}
	if len(r.Samples) > 0 && (len(r.WeightGradient) > 0 || len(r.BiasGradient) > 0) {
		return errMixedGradient
	}
	if r.BatchSize < 0 {
		return aggregator.ErrInvalidBatch
	}

	return nil
}

type broadcastReq struct {
	Epoch  uint64            `json:"epoch"`
	Layers []wire.LayerState `json:"layers"`
}

func (r *broadcastReq) validate() error {
	return nil
}

type snapshotReq struct {
	epoch uint64
}

func (r *snapshotReq) validate() error {
	return nil
}

type listGradientsReq struct {
	epoch uint64
}

func (r *listGradientsReq) validate() error {
	return nil
}

type listSnapshotsReq struct {
	offset, limit uint64
}

func (r *listSnapshotsReq) validate() error {
	if r.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}
