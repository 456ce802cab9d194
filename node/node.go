// Package node runs one participant of the aggregation tree: it keeps the
// peer directory alive by gossip, reduces gradients from its children and
// reports the result to its parent or, at the root, to the model sink.
package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
)

var (
	ErrOrphan            = errors.New("no parameter server known to report to")
	ErrNotWorker         = errors.New("operation allowed only on a worker")
	ErrUnexpectedMessage = errors.New("message not accepted by this role")
	ErrMalformedSeed     = errors.New("malformed seed, expected id@host:port[/role]")
	ErrSelfPeer          = errors.New("the local node cannot be registered as a peer")
)

type Service interface {
	// Info describes the local node.
	Info(ctx context.Context) (Info, error)

	RegisterPeer(ctx context.Context, id, address string, role peers.Role) error
	ListPeers(ctx context.Context) ([]peers.Record, error)
	Topology(ctx context.Context) (peers.Topology, error)

	// HandleEnvelope processes one message received from a peer.
	HandleEnvelope(ctx context.Context, env wire.Envelope) error

	// SubmitGradient contributes the local gradient of a worker for epoch.
	SubmitGradient(ctx context.Context, epoch uint64, c aggregator.Contribution) (aggregator.Result, error)
	AdvanceEpoch(ctx context.Context, epoch uint64) (uint64, error)
	AggregationStatus(ctx context.Context) (AggregationStatus, error)

	// Broadcast stores s and pushes it to the workers of this parameter
	// server.
	Broadcast(ctx context.Context, s storage.Snapshot) (storage.Snapshot, error)
	GetSnapshot(ctx context.Context, epoch uint64) (storage.Snapshot, error)
	LatestSnapshot(ctx context.Context) (storage.Snapshot, error)
	ListSnapshots(ctx context.Context, offset, limit uint64) (SnapshotPage, error)
	// ListGradients returns the layer gradients the root completed in epoch.
	ListGradients(ctx context.Context, epoch uint64) ([]storage.Gradient, error)

	// Tick purges dead peers, completes layers that only waited on purged
	// children, retries gradients the parent did not accept and gossips the
	// live set. A tick requested while another one runs is skipped.
	Tick(ctx context.Context) error
	// Start listens on the node inbox, registers the seeds and ticks every
	// gossip interval until ctx is done.
	Start(ctx context.Context) error
}

// Transport moves envelopes between node addresses. A failed Send of a
// completed gradient is kept by the service and retried on every tick until
// the epoch moves on.
type Transport interface {
	Send(ctx context.Context, address string, env wire.Envelope) error
	Listen(ctx context.Context, address string, handler Handler) error
}

type Handler func(ctx context.Context, env wire.Envelope) error

// ModelSink receives every aggregation completed at the root. A non-nil
// snapshot is broadcast to the workers.
type ModelSink interface {
	Apply(ctx context.Context, epoch uint64, c aggregator.Contribution) (*storage.Snapshot, error)
}

type Config struct {
	ID             string
	Address        string
	Role           peers.Role
	PeerTTL        time.Duration
	Fanout         int
	GossipInterval time.Duration
	Seeds          []Seed
}

type Seed struct {
	ID      string     `json:"id" toml:"id"`
	Address string     `json:"address" toml:"address"`
	Role    peers.Role `json:"role" toml:"role"`
}

// ParseSeed parses id@host:port with an optional /role suffix. The role
// defaults to parameter server, since seeds are usually the stable servers.
func ParseSeed(s string) (Seed, error) {
	id, rest, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || id == "" || rest == "" {
		return Seed{}, fmt.Errorf("%w: %q", ErrMalformedSeed, s)
	}
	seed := Seed{ID: id, Address: rest, Role: peers.ParameterServer}
	if addr, role, ok := strings.Cut(rest, "/"); ok {
		r, err := peers.ParseRole(role)
		if err != nil {
			return Seed{}, fmt.Errorf("%w: %w", ErrMalformedSeed, err)
		}
		seed.Address, seed.Role = addr, r
	}
	if err := peers.ValidateAddress(seed.Address); err != nil {
		return Seed{}, fmt.Errorf("%w: %w", ErrMalformedSeed, err)
	}

	return seed, nil
}

func ParseSeeds(list []string) ([]Seed, error) {
	seeds := make([]Seed, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		seed, err := ParseSeed(s)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}

	return seeds, nil
}

type Info struct {
	ID      string     `json:"id"`
	Address string     `json:"address"`
	Role    peers.Role `json:"role"`
	Epoch   uint64     `json:"epoch"`
	Peers   int        `json:"peers"`
}

type AggregationStatus struct {
	Epoch            uint64                     `json:"epoch"`
	ExpectedChildren []string                   `json:"expected_children"`
	Layers           []aggregator.LayerProgress `json:"layers"`
}

type SnapshotPage struct {
	Offset    uint64             `json:"offset"`
	Limit     uint64             `json:"limit"`
	Total     uint64             `json:"total"`
	Snapshots []storage.Snapshot `json:"snapshots"`
}
