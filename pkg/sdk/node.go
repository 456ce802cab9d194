package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	infoEndpoint        = "/info"
	peersEndpoint       = "/peers"
	topologyEndpoint    = "/topology"
	aggregationEndpoint = "/aggregation"
	epochsEndpoint      = "/epochs"
	gradientsEndpoint   = "/gradients"
)

type Info struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Role    string `json:"role"`
	Epoch   uint64 `json:"epoch"`
	Peers   int    `json:"peers"`
}

type Peer struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

type PeersPage struct {
	Total int    `json:"total"`
	Peers []Peer `json:"peers"`
}

type Topology struct {
	Parent   *Peer  `json:"parent,omitempty"`
	Children []Peer `json:"children"`
	IsRoot   bool   `json:"is_root"`
}

type LayerProgress struct {
	LayerIndex   int      `json:"layer_index"`
	Contributors []string `json:"contributors"`
	TotalBatch   int      `json:"total_batch"`
	Completed    bool     `json:"completed"`
}

type AggregationStatus struct {
	Epoch            uint64          `json:"epoch"`
	ExpectedChildren []string        `json:"expected_children"`
	Layers           []LayerProgress `json:"layers"`
}

type Sample struct {
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
}

// Gradient is either one averaged gradient with its batch size or a list of
// per-sample gradients the node averages itself.
type Gradient struct {
	Epoch          uint64    `json:"epoch"`
	LayerIndex     int       `json:"layer_index"`
	WeightGradient []float64 `json:"weight_gradient,omitempty"`
	BiasGradient   []float64 `json:"bias_gradient,omitempty"`
	BatchSize      int       `json:"batch_size,omitempty"`
	Samples        []Sample  `json:"samples,omitempty"`
}

type Aggregation struct {
	LayerIndex     int       `json:"layer_index"`
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
	BatchSize      int       `json:"batch_size"`
}

type GradientResult struct {
	Status      string       `json:"status"`
	Aggregation *Aggregation `json:"aggregation,omitempty"`
}

func (sdk *hyperSDK) Info() (Info, error) {
	var info Info
	if err := sdk.getJSON(infoEndpoint, &info); err != nil {
		return Info{}, err
	}

	return info, nil
}

func (sdk *hyperSDK) ListPeers() (PeersPage, error) {
	var page PeersPage
	if err := sdk.getJSON(peersEndpoint, &page); err != nil {
		return PeersPage{}, err
	}

	return page, nil
}

func (sdk *hyperSDK) AddPeer(peer Peer) error {
	data, err := json.Marshal(struct {
		ID      string `json:"id"`
		Address string `json:"address"`
		Role    string `json:"role"`
	}{peer.ID, peer.Address, peer.Role})
	if err != nil {
		return err
	}

	_, err = sdk.processRequest(http.MethodPost, sdk.nodeURL+peersEndpoint, data, http.StatusCreated)

	return err
}

func (sdk *hyperSDK) Topology() (Topology, error) {
	var topo Topology
	if err := sdk.getJSON(topologyEndpoint, &topo); err != nil {
		return Topology{}, err
	}

	return topo, nil
}

func (sdk *hyperSDK) AggregationStatus() (AggregationStatus, error) {
	var status AggregationStatus
	if err := sdk.getJSON(aggregationEndpoint, &status); err != nil {
		return AggregationStatus{}, err
	}

	return status, nil
}

func (sdk *hyperSDK) AdvanceEpoch(epoch uint64) (uint64, error) {
	data, err := json.Marshal(map[string]uint64{"epoch": epoch})
	if err != nil {
		return 0, err
	}

	body, err := sdk.processRequest(http.MethodPost, sdk.nodeURL+epochsEndpoint, data, http.StatusOK)
	if err != nil {
		return 0, err
	}

	var res struct {
		Epoch uint64 `json:"epoch"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, err
	}

	return res.Epoch, nil
}

func (sdk *hyperSDK) SubmitGradient(g Gradient) (GradientResult, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return GradientResult{}, err
	}

	// A pending aggregation answers 202, a completed one 200.
	body, err := sdk.processRequest(http.MethodPost, sdk.nodeURL+gradientsEndpoint, data, http.StatusOK, http.StatusAccepted)
	if err != nil {
		return GradientResult{}, err
	}

	var res GradientResult
	if err := json.Unmarshal(body, &res); err != nil {
		return GradientResult{}, err
	}

	return res, nil
}

// CompletedGradient is a layer aggregation finished at the root.
type CompletedGradient struct {
	Epoch          uint64    `json:"epoch"`
	LayerIndex     int       `json:"layer_index"`
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
	BatchSize      int       `json:"batch_size"`
	CompletedAt    time.Time `json:"completed_at"`
}

type GradientsPage struct {
	Epoch     uint64              `json:"epoch"`
	Total     int                 `json:"total"`
	Gradients []CompletedGradient `json:"gradients"`
}

func (sdk *hyperSDK) ListGradients(epoch uint64) (GradientsPage, error) {
	var page GradientsPage
	if err := sdk.getJSON(fmt.Sprintf("%s/%d", gradientsEndpoint, epoch), &page); err != nil {
		return GradientsPage{}, err
	}

	return page, nil
}
