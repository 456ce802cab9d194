package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	snapshotsEndpoint  = "/snapshots"
	broadcastsEndpoint = "/broadcasts"
)

type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type Layer struct {
	LayerIndex int       `json:"layer_index"`
	Weights    Matrix    `json:"weights"`
	Bias       []float64 `json:"bias"`
}

type Snapshot struct {
	Epoch     uint64    `json:"epoch"`
	Layers    []Layer   `json:"layers"`
	CreatedAt time.Time `json:"created_at"`
}

type SnapshotPage struct {
	Offset    uint64     `json:"offset"`
	Limit     uint64     `json:"limit"`
	Total     uint64     `json:"total"`
	Snapshots []Snapshot `json:"snapshots"`
}

func (sdk *hyperSDK) Broadcast(s Snapshot) (Snapshot, error) {
	data, err := json.Marshal(struct {
		Epoch  uint64  `json:"epoch"`
		Layers []Layer `json:"layers"`
	}{s.Epoch, s.Layers})
	if err != nil {
		return Snapshot{}, err
	}

	body, err := sdk.processRequest(http.MethodPost, sdk.nodeURL+broadcastsEndpoint, data, http.StatusCreated)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func (sdk *hyperSDK) GetSnapshot(epoch uint64) (Snapshot, error) {
	var snap Snapshot
	if err := sdk.getJSON(fmt.Sprintf("%s/%d", snapshotsEndpoint, epoch), &snap); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func (sdk *hyperSDK) LatestSnapshot() (Snapshot, error) {
	var snap Snapshot
	if err := sdk.getJSON(snapshotsEndpoint+"/latest", &snap); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func (sdk *hyperSDK) ListSnapshots(offset, limit uint64) (SnapshotPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}

	var page SnapshotPage
	if err := sdk.getJSON(snapshotsEndpoint+query, &page); err != nil {
		return SnapshotPage{}, err
	}

	return page, nil
}
