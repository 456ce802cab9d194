// Package wire defines the messages exchanged between nodes and their CBOR
// envelope.
package wire

import "github.com/absmach/hyperfold/pkg/algebra"

type Kind string

const (
	KindGossip    Kind = "gossip"
	KindGradient  Kind = "gradient"
	KindBroadcast Kind = "broadcast"
)

// Message is implemented by every payload an Envelope can carry.
type Message interface {
	Kind() Kind
}

// PeerBrief is a peer record without its local liveness timestamp. RoleCode
// is 0 for a worker and 1 for a parameter server.
type PeerBrief struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	RoleCode uint8  `json:"role_code"`
}

// Gossip carries the sender's full peer table.
type Gossip struct {
	SenderID string      `json:"sender_id"`
	Peers    []PeerBrief `json:"peers"`
}

func (Gossip) Kind() Kind { return KindGossip }

type GradientContribution struct {
	LayerIndex     int       `json:"layer_index"`
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
	BatchSize      int       `json:"batch_size"`
}

func (GradientContribution) Kind() Kind { return KindGradient }

type LayerState struct {
	LayerIndex int            `json:"layer_index"`
	Weights    algebra.Matrix `json:"weights"`
	Bias       algebra.Vector `json:"bias"`
}

// ParameterBroadcast is a model snapshot pushed from a parameter server to
// its workers.
type ParameterBroadcast struct {
	Epoch  uint64       `json:"epoch"`
	Layers []LayerState `json:"layers"`
}

func (ParameterBroadcast) Kind() Kind { return KindBroadcast }
