package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

const CTJSON string = "application/json"

var ErrUnexpectedResponse = errors.New("unexpected response code")

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// Info describes the node.
	//
	// example:
	//  info, _ := sdk.Info()
	//  fmt.Println(info.Role, info.Epoch)
	Info() (Info, error)

	// ListPeers lists the live peers known to the node.
	//
	// example:
	//  page, _ := sdk.ListPeers()
	//  fmt.Println(page.Total)
	ListPeers() (PeersPage, error)

	// AddPeer registers a peer with the node.
	//
	// example:
	//  peer := sdk.Peer{
	//    ID:      "ps-a",
	//    Address: "10.0.0.1:7000",
	//    Role:    "parameter_server",
	//  }
	//  _ = sdk.AddPeer(peer)
	AddPeer(peer Peer) error

	// Topology returns the parent and children of the node.
	//
	// example:
	//  topo, _ := sdk.Topology()
	//  fmt.Println(topo.Parent)
	Topology() (Topology, error)

	// AggregationStatus reports the partial aggregations of the current epoch.
	//
	// example:
	//  status, _ := sdk.AggregationStatus()
	//  fmt.Println(status.Layers)
	AggregationStatus() (AggregationStatus, error)

	// AdvanceEpoch moves the node to epoch and returns the resulting epoch.
	//
	// example:
	//  epoch, _ := sdk.AdvanceEpoch(5)
	//  fmt.Println(epoch)
	AdvanceEpoch(epoch uint64) (uint64, error)

	// SubmitGradient contributes a local gradient on a worker.
	//
	// example:
	//  res, _ := sdk.SubmitGradient(sdk.Gradient{
	//    Epoch:          0,
	//    LayerIndex:     0,
	//    WeightGradient: []float64{0.1, 0.2},
	//    BiasGradient:   []float64{0.3},
	//    BatchSize:      32,
	//  })
	//  fmt.Println(res.Status)
	SubmitGradient(g Gradient) (GradientResult, error)

	// ListGradients lists the layer gradients a parameter server completed
	// in epoch.
	//
	// example:
	//  page, _ := sdk.ListGradients(0)
	//  fmt.Println(page.Total)
	ListGradients(epoch uint64) (GradientsPage, error)

	// Broadcast pushes parameters from a parameter server to its workers.
	//
	// example:
	//  snap, _ := sdk.Broadcast(sdk.Snapshot{Epoch: 1, Layers: layers})
	//  fmt.Println(snap.CreatedAt)
	Broadcast(s Snapshot) (Snapshot, error)

	// GetSnapshot gets the parameters stored for epoch.
	//
	// example:
	//  snap, _ := sdk.GetSnapshot(3)
	//  fmt.Println(snap.Layers)
	GetSnapshot(epoch uint64) (Snapshot, error)

	// LatestSnapshot gets the parameters of the newest stored epoch.
	LatestSnapshot() (Snapshot, error)

	// ListSnapshots lists stored snapshots.
	//
	// example:
	//  page, _ := sdk.ListSnapshots(0, 10)
	//  fmt.Println(page.Total)
	ListSnapshots(offset, limit uint64) (SnapshotPage, error)
}

type hyperSDK struct {
	nodeURL string
	client  *http.Client
}

type Config struct {
	NodeURL         string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &hyperSDK{
		nodeURL: strings.TrimSuffix(cfg.NodeURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *hyperSDK) processRequest(method, reqURL string, data []byte, expectedRespCodes ...int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if !slices.Contains(expectedRespCodes, resp.StatusCode) {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return []byte{}, fmt.Errorf("%w %d: %s", ErrUnexpectedResponse, resp.StatusCode, e.Error)
		}

		return []byte{}, fmt.Errorf("%w: %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	return body, nil
}

func (sdk *hyperSDK) getJSON(path string, v any) error {
	body, err := sdk.processRequest(http.MethodGet, sdk.nodeURL+path, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}
