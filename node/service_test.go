package node_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/node/mocks"
	"github.com/absmach/hyperfold/pkg/aggregator"
	pkgerrors "github.com/absmach/hyperfold/pkg/errors"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	psAddr = "10.0.0.1:7000"
	w1Addr = "10.0.0.2:7000"
	w2Addr = "10.0.0.3:7000"
)

var errUnreachable = errors.New("address unreachable")

// loopback delivers envelopes synchronously to the handler listening on the
// target address.
type loopback struct {
	mu       sync.Mutex
	handlers map[string]node.Handler
	sent     map[string][]wire.Envelope
}

func newLoopback() *loopback {
	return &loopback{
		handlers: make(map[string]node.Handler),
		sent:     make(map[string][]wire.Envelope),
	}
}

func (l *loopback) Send(ctx context.Context, address string, env wire.Envelope) error {
	l.mu.Lock()
	h, ok := l.handlers[address]
	l.sent[address] = append(l.sent[address], env)
	l.mu.Unlock()

	if !ok {
		return errUnreachable
	}

	return h(ctx, env)
}

func (l *loopback) Listen(_ context.Context, address string, handler node.Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[address] = handler

	return nil
}

func (l *loopback) sentTo(address string) []wire.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]wire.Envelope(nil), l.sent[address]...)
}

type testNode struct {
	svc  node.Service
	dir  *peers.Directory
	repo storage.Repository
}

func newTestNode(t *testing.T, net *loopback, id, addr string, role peers.Role, opts ...node.Option) testNode {
	t.Helper()

	dir := peers.NewDirectory()
	repo := storage.NewInMemoryRepository()
	cfg := node.Config{ID: id, Address: addr, Role: role}
	svc := node.NewService(cfg, dir, aggregator.New(), net, repo, slog.Default(), opts...)
	require.NoError(t, net.Listen(context.Background(), addr, svc.HandleEnvelope))

	return testNode{svc: svc, dir: dir, repo: repo}
}

func TestTreeAggregationAndBroadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newLoopback()

	shapes := map[int]aggregator.LayerShape{0: {Weights: 2, Bias: 1}}
	sink, err := node.NewSGD(0.1, shapes)
	require.NoError(t, err)

	ps := newTestNode(t, net, "ps-a", psAddr, peers.ParameterServer, node.WithModelSink(sink))
	w1 := newTestNode(t, net, "w1", w1Addr, peers.Worker)
	w2 := newTestNode(t, net, "w2", w2Addr, peers.Worker)

	for _, w := range []testNode{w1, w2} {
		require.NoError(t, w.svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))
	}
	require.NoError(t, ps.svc.RegisterPeer(ctx, "w1", w1Addr, peers.Worker))
	require.NoError(t, ps.svc.RegisterPeer(ctx, "w2", w2Addr, peers.Worker))

	res, err := w1.svc.SubmitGradient(ctx, 0, aggregator.Contribution{
		LayerIndex:     0,
		WeightGradient: []float64{1, 2},
		BiasGradient:   []float64{3},
		BatchSize:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, aggregator.Complete, res.Status)

	status, err := ps.svc.AggregationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, status.ExpectedChildren)
	require.Len(t, status.Layers, 1)
	assert.False(t, status.Layers[0].Completed)
	assert.Equal(t, []string{aggregator.SelfID, "w1"}, status.Layers[0].Contributors)

	_, err = w2.svc.SubmitGradient(ctx, 0, aggregator.Contribution{
		LayerIndex:     0,
		WeightGradient: []float64{3, 4},
		BiasGradient:   []float64{5},
		BatchSize:      3,
	})
	require.NoError(t, err)

	grads, err := ps.repo.ListGradients(ctx, 0)
	require.NoError(t, err)
	require.Len(t, grads, 1)
	assert.Equal(t, 4, grads[0].BatchSize)
	assert.InDeltaSlice(t, []float64{2.5, 3.5}, grads[0].WeightGradient, 1e-9)
	assert.InDeltaSlice(t, []float64{4.5}, grads[0].BiasGradient, 1e-9)

	for _, n := range []testNode{ps, w1, w2} {
		info, err := n.svc.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), info.Epoch, info.ID)

		snap, err := n.svc.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), snap.Epoch)
		require.Len(t, snap.Layers, 1)
		assert.InDeltaSlice(t, []float64{-0.25, -0.35}, snap.Layers[0].Weights.Data, 1e-9)
		assert.InDeltaSlice(t, []float64{-0.45}, []float64(snap.Layers[0].Bias), 1e-9)
	}

	// A late contribution for the finished epoch is stale everywhere.
	res, err = w1.svc.SubmitGradient(ctx, 0, aggregator.Contribution{
		LayerIndex:     0,
		WeightGradient: []float64{1, 1},
		BiasGradient:   []float64{1},
		BatchSize:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, aggregator.Stale, res.Status)
}

func TestSubmitGradientRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := aggregator.Contribution{WeightGradient: []float64{1}, BiasGradient: []float64{1}, BatchSize: 1}

	cases := []struct {
		name  string
		role  peers.Role
		peers []peers.Record
		err   error
	}{
		{
			name: "parameter server",
			role: peers.ParameterServer,
			err:  node.ErrNotWorker,
		},
		{
			name: "orphan worker",
			role: peers.Worker,
			err:  node.ErrOrphan,
		},
		{
			name:  "parent unreachable",
			role:  peers.Worker,
			peers: []peers.Record{{ID: "ps-x", Address: "10.9.9.9:7000", Role: peers.ParameterServer}},
			err:   errUnreachable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := newTestNode(t, newLoopback(), "n1", w1Addr, tc.role)
			for _, p := range tc.peers {
				require.NoError(t, n.svc.RegisterPeer(ctx, p.ID, p.Address, p.Role))
			}

			_, err := n.svc.SubmitGradient(ctx, 0, c)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestOrphanRejectedWithoutMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := newTestNode(t, newLoopback(), "w1", w1Addr, peers.Worker)

	_, err := n.svc.SubmitGradient(ctx, 0, aggregator.Contribution{WeightGradient: []float64{1}, BatchSize: 1})
	require.ErrorIs(t, err, node.ErrOrphan)

	status, err := n.svc.AggregationStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Layers)
}

func TestBroadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("worker is not root", func(t *testing.T) {
		t.Parallel()
		n := newTestNode(t, newLoopback(), "w1", w1Addr, peers.Worker)

		_, err := n.svc.Broadcast(ctx, storage.Snapshot{Epoch: 1})
		assert.ErrorIs(t, err, pkgerrors.ErrNotRoot)
	})

	t.Run("stale epoch", func(t *testing.T) {
		t.Parallel()
		n := newTestNode(t, newLoopback(), "ps-a", psAddr, peers.ParameterServer)
		_, err := n.svc.AdvanceEpoch(ctx, 3)
		require.NoError(t, err)

		_, err = n.svc.Broadcast(ctx, storage.Snapshot{Epoch: 2})
		assert.ErrorIs(t, err, pkgerrors.ErrStaleEpoch)
	})

	t.Run("reaches assigned workers only", func(t *testing.T) {
		t.Parallel()
		net := newLoopback()
		ps := newTestNode(t, net, "ps-a", psAddr, peers.ParameterServer)
		w1 := newTestNode(t, net, "w1", w1Addr, peers.Worker)
		require.NoError(t, ps.svc.RegisterPeer(ctx, "w1", w1Addr, peers.Worker))
		require.NoError(t, ps.svc.RegisterPeer(ctx, "ps-b", "10.0.0.9:7000", peers.ParameterServer))

		saved, err := ps.svc.Broadcast(ctx, storage.Snapshot{Epoch: 4})
		require.NoError(t, err)
		assert.False(t, saved.CreatedAt.IsZero())
		assert.Empty(t, net.sentTo("10.0.0.9:7000"))

		snap, err := w1.svc.GetSnapshot(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), snap.Epoch)

		info, err := w1.svc.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), info.Epoch)
	})
}

func TestHandleEnvelope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gradient := wire.GradientContribution{WeightGradient: []float64{1}, BiasGradient: []float64{}, BatchSize: 1}
	broadcast := wire.ParameterBroadcast{Epoch: 2}
	gossip := wire.Gossip{SenderID: "w9", Peers: []wire.PeerBrief{{ID: "w8", Address: "10.0.0.8:7000", RoleCode: 0}}}

	cases := []struct {
		name    string
		role    peers.Role
		sender  wire.Sender
		msg     wire.Message
		err     error
		known   []string
		unknown []string
	}{
		{
			name:   "own envelope ignored",
			role:   peers.Worker,
			sender: wire.Sender{ID: "self", Address: w1Addr},
			msg:    gossip,
			known:  []string{},
		},
		{
			name:   "gradient on a worker",
			role:   peers.Worker,
			sender: wire.Sender{ID: "w9", Address: "10.0.0.9:7000"},
			msg:    gradient,
			err:    node.ErrUnexpectedMessage,
			known:  []string{"w9"},
		},
		{
			name:   "broadcast on a parameter server",
			role:   peers.ParameterServer,
			sender: wire.Sender{ID: "ps-b", Address: "10.0.0.9:7000", RoleCode: 1},
			msg:    broadcast,
			err:    node.ErrUnexpectedMessage,
			known:  []string{"ps-b"},
		},
		{
			name:   "gossip merges peers",
			role:   peers.Worker,
			sender: wire.Sender{ID: "w9", Address: "10.0.0.9:7000"},
			msg:    gossip,
			known:  []string{"w8", "w9"},
		},
		{
			name:    "invalid sender address",
			role:    peers.Worker,
			sender:  wire.Sender{ID: "w9", Address: "nowhere"},
			msg:     gossip,
			err:     peers.ErrMalformedAddress,
			unknown: []string{"w9", "w8"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := newTestNode(t, newLoopback(), "self", w1Addr, tc.role)
			env, err := wire.Seal(tc.sender, 0, tc.msg)
			require.NoError(t, err)

			err = n.svc.HandleEnvelope(ctx, env)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
			for _, id := range tc.known {
				_, ok := n.dir.Get(id)
				assert.True(t, ok, id)
			}
			for _, id := range tc.unknown {
				_, ok := n.dir.Get(id)
				assert.False(t, ok, id)
			}
			if tc.known != nil && len(tc.known) == 0 {
				assert.Zero(t, n.dir.Len())
			}
		})
	}
}

func TestTickGossipsToPeers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newLoopback()

	ps := newTestNode(t, net, "ps-a", psAddr, peers.ParameterServer)
	w1 := newTestNode(t, net, "w1", w1Addr, peers.Worker)
	w2 := newTestNode(t, net, "w2", w2Addr, peers.Worker)
	require.NoError(t, w1.svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))
	require.NoError(t, w2.svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))

	require.NoError(t, w1.svc.Tick(ctx))
	require.NoError(t, w2.svc.Tick(ctx))

	list, err := ps.svc.ListPeers(ctx)
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"w1", "w2"}, ids)

	// The server now spreads w2 to w1.
	require.NoError(t, ps.svc.Tick(ctx))
	_, ok := w1.dir.Get("w2")
	assert.True(t, ok)

	topo, err := ps.svc.Topology(ctx)
	require.NoError(t, err)
	assert.True(t, topo.IsRoot)
	assert.Len(t, topo.Children, 2)
}

func TestTickPurgesDeadPeers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	net := newLoopback()
	dir := peers.NewDirectory(peers.WithClock(clock))
	cfg := node.Config{ID: "w1", Address: w1Addr, Role: peers.Worker, PeerTTL: time.Minute}
	svc := node.NewService(cfg, dir, aggregator.New(), net, storage.NewInMemoryRepository(), slog.Default(), node.WithClock(clock))
	require.NoError(t, svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))

	mu.Lock()
	now = start.Add(61 * time.Second)
	mu.Unlock()

	require.NoError(t, svc.Tick(ctx))
	assert.Zero(t, dir.Len())
	assert.Empty(t, net.sentTo(psAddr))
}

func TestTickCompletesLayerAfterChildTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	setNow := func(t time.Time) {
		mu.Lock()
		defer mu.Unlock()
		now = t
	}

	net := newLoopback()
	dir := peers.NewDirectory(peers.WithClock(clock))
	repo := storage.NewInMemoryRepository()
	cfg := node.Config{ID: "ps-a", Address: psAddr, Role: peers.ParameterServer, PeerTTL: time.Minute}
	ps := node.NewService(cfg, dir, aggregator.New(), net, repo, slog.Default(), node.WithClock(clock))
	require.NoError(t, net.Listen(ctx, psAddr, ps.HandleEnvelope))

	w1 := newTestNode(t, net, "w1", w1Addr, peers.Worker)
	require.NoError(t, w1.svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))
	require.NoError(t, ps.RegisterPeer(ctx, "w1", w1Addr, peers.Worker))
	require.NoError(t, ps.RegisterPeer(ctx, "w2", w2Addr, peers.Worker))

	setNow(start.Add(30 * time.Second))
	_, err := w1.svc.SubmitGradient(ctx, 0, aggregator.Contribution{
		LayerIndex:     0,
		WeightGradient: []float64{1, 2},
		BiasGradient:   []float64{3},
		BatchSize:      2,
	})
	require.NoError(t, err)

	grads, err := ps.ListGradients(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, grads, "w2 has not contributed yet")

	// w2 stops heartbeating; w1 was last heard 40s ago.
	setNow(start.Add(70 * time.Second))
	require.NoError(t, ps.Tick(ctx))

	_, ok := dir.Get("w2")
	assert.False(t, ok)
	grads, err = ps.ListGradients(ctx, 0)
	require.NoError(t, err)
	require.Len(t, grads, 1)
	assert.Equal(t, 2, grads[0].BatchSize)
	assert.InDeltaSlice(t, []float64{1, 2}, grads[0].WeightGradient, 1e-9)
	assert.InDeltaSlice(t, []float64{3}, grads[0].BiasGradient, 1e-9)

	status, err := ps.AggregationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Layers, 1)
	assert.True(t, status.Layers[0].Completed)
}

func TestTickResendsUnsentGradient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newLoopback()

	w1 := newTestNode(t, net, "w1", w1Addr, peers.Worker)
	require.NoError(t, w1.svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))

	res, err := w1.svc.SubmitGradient(ctx, 0, aggregator.Contribution{
		LayerIndex:     0,
		WeightGradient: []float64{4, 5},
		BiasGradient:   []float64{6},
		BatchSize:      1,
	})
	assert.ErrorIs(t, err, errUnreachable)
	assert.Equal(t, aggregator.Complete, res.Status)

	ps := newTestNode(t, net, "ps-a", psAddr, peers.ParameterServer)
	require.NoError(t, ps.svc.RegisterPeer(ctx, "w1", w1Addr, peers.Worker))

	require.NoError(t, w1.svc.Tick(ctx))
	grads, err := ps.svc.ListGradients(ctx, 0)
	require.NoError(t, err)
	require.Len(t, grads, 1)
	assert.InDeltaSlice(t, []float64{4, 5}, grads[0].WeightGradient, 1e-9)

	// The queue is empty after a successful resend.
	require.NoError(t, w1.svc.Tick(ctx))
	assert.Len(t, filterKind(net.sentTo(psAddr), wire.KindGradient), 2)
}

func TestTickDropsUnsentGradientOfPastEpoch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newLoopback()

	w1 := newTestNode(t, net, "w1", w1Addr, peers.Worker)
	require.NoError(t, w1.svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))
	_, err := w1.svc.SubmitGradient(ctx, 0, aggregator.Contribution{
		WeightGradient: []float64{1},
		BiasGradient:   []float64{1},
		BatchSize:      1,
	})
	require.ErrorIs(t, err, errUnreachable)

	_, err = w1.svc.AdvanceEpoch(ctx, 1)
	require.NoError(t, err)
	newTestNode(t, net, "ps-a", psAddr, peers.ParameterServer)

	require.NoError(t, w1.svc.Tick(ctx))
	assert.Len(t, filterKind(net.sentTo(psAddr), wire.KindGradient), 1, "only the failed first attempt")
}

func TestTickReportsGossipFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	transport := new(mocks.MockTransport)
	cfg := node.Config{ID: "w1", Address: w1Addr, Role: peers.Worker}
	svc := node.NewService(cfg, peers.NewDirectory(), aggregator.New(), transport, storage.NewInMemoryRepository(), slog.Default())
	require.NoError(t, svc.RegisterPeer(ctx, "ps-a", psAddr, peers.ParameterServer))

	transport.On("Send", mock.Anything, psAddr, mock.MatchedBy(func(env wire.Envelope) bool {
		return env.Kind == wire.KindGossip && env.SenderID == "w1"
	})).Return(errUnreachable).Once()

	err := svc.Tick(ctx)
	assert.ErrorIs(t, err, errUnreachable)
	transport.AssertExpectations(t)
}

func filterKind(envs []wire.Envelope, kind wire.Kind) []wire.Envelope {
	var out []wire.Envelope
	for _, env := range envs {
		if env.Kind == kind {
			out = append(out, env)
		}
	}

	return out
}

func TestRegisterPeer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := newTestNode(t, newLoopback(), "w1", w1Addr, peers.Worker)

	cases := []struct {
		name    string
		id      string
		address string
		err     error
	}{
		{name: "valid", id: "ps-a", address: psAddr},
		{name: "local node", id: "w1", address: w1Addr, err: node.ErrSelfPeer},
		{name: "empty id", id: "", address: psAddr, err: peers.ErrEmptyID},
		{name: "bad address", id: "ps-b", address: "ps-b", err: peers.ErrMalformedAddress},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := n.svc.RegisterPeer(ctx, tc.id, tc.address, peers.ParameterServer)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want node.Seed
		err  error
	}{
		{in: "ps-a@10.0.0.1:7000", want: node.Seed{ID: "ps-a", Address: psAddr, Role: peers.ParameterServer}},
		{in: "w1@10.0.0.2:7000/worker", want: node.Seed{ID: "w1", Address: w1Addr, Role: peers.Worker}},
		{in: " ps-b@host:1/ps ", want: node.Seed{ID: "ps-b", Address: "host:1", Role: peers.ParameterServer}},
		{in: "10.0.0.1:7000", err: node.ErrMalformedSeed},
		{in: "@10.0.0.1:7000", err: node.ErrMalformedSeed},
		{in: "ps-a@10.0.0.1", err: node.ErrMalformedSeed},
		{in: "ps-a@10.0.0.1:7000/leader", err: node.ErrMalformedSeed},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := node.ParseSeed(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	seeds, err := node.ParseSeeds([]string{"ps-a@10.0.0.1:7000", "", "w1@10.0.0.2:7000/w"})
	require.NoError(t, err)
	assert.Len(t, seeds, 2)
}
