package middleware

import (
	"context"
	"time"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/go-kit/kit/metrics"
)

var _ node.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     node.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc node.Service) node.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Info(ctx context.Context) (node.Info, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-info").Add(1)
		mm.latency.With("method", "get-info").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Info(ctx)
}

func (mm *metricsMiddleware) RegisterPeer(ctx context.Context, id, address string, role peers.Role) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "register-peer").Add(1)
		mm.latency.With("method", "register-peer").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.RegisterPeer(ctx, id, address, role)
}

func (mm *metricsMiddleware) ListPeers(ctx context.Context) ([]peers.Record, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-peers").Add(1)
		mm.latency.With("method", "list-peers").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListPeers(ctx)
}

func (mm *metricsMiddleware) Topology(ctx context.Context) (peers.Topology, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-topology").Add(1)
		mm.latency.With("method", "get-topology").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Topology(ctx)
}

func (mm *metricsMiddleware) HandleEnvelope(ctx context.Context, env wire.Envelope) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "handle-envelope").Add(1)
		mm.latency.With("method", "handle-envelope").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.HandleEnvelope(ctx, env)
}

func (mm *metricsMiddleware) SubmitGradient(ctx context.Context, epoch uint64, c aggregator.Contribution) (aggregator.Result, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-gradient").Add(1)
		mm.latency.With("method", "submit-gradient").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitGradient(ctx, epoch, c)
}

func (mm *metricsMiddleware) AdvanceEpoch(ctx context.Context, epoch uint64) (uint64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "advance-epoch").Add(1)
		mm.latency.With("method", "advance-epoch").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AdvanceEpoch(ctx, epoch)
}

func (mm *metricsMiddleware) AggregationStatus(ctx context.Context) (node.AggregationStatus, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregation-status").Add(1)
		mm.latency.With("method", "aggregation-status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AggregationStatus(ctx)
}

func (mm *metricsMiddleware) Broadcast(ctx context.Context, s storage.Snapshot) (storage.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "broadcast").Add(1)
		mm.latency.With("method", "broadcast").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Broadcast(ctx, s)
}

func (mm *metricsMiddleware) GetSnapshot(ctx context.Context, epoch uint64) (storage.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-snapshot").Add(1)
		mm.latency.With("method", "get-snapshot").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetSnapshot(ctx, epoch)
}

func (mm *metricsMiddleware) ListGradients(ctx context.Context, epoch uint64) ([]storage.Gradient, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-gradients").Add(1)
		mm.latency.With("method", "list-gradients").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListGradients(ctx, epoch)
}

func (mm *metricsMiddleware) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "latest-snapshot").Add(1)
		mm.latency.With("method", "latest-snapshot").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.LatestSnapshot(ctx)
}

func (mm *metricsMiddleware) ListSnapshots(ctx context.Context, offset, limit uint64) (node.SnapshotPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-snapshots").Add(1)
		mm.latency.With("method", "list-snapshots").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListSnapshots(ctx, offset, limit)
}

func (mm *metricsMiddleware) Tick(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "tick").Add(1)
		mm.latency.With("method", "tick").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Tick(ctx)
}

// Start runs for the lifetime of the node and is not measured.
func (mm *metricsMiddleware) Start(ctx context.Context) error {
	return mm.svc.Start(ctx)
}
