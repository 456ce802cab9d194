package middleware

import (
	"context"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ node.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    node.Service
}

func Tracing(tracer trace.Tracer, svc node.Service) node.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Info(ctx context.Context) (node.Info, error) {
	ctx, span := tm.tracer.Start(ctx, "get-info")
	defer span.End()

	return tm.svc.Info(ctx)
}

func (tm *tracing) RegisterPeer(ctx context.Context, id, address string, role peers.Role) error {
	ctx, span := tm.tracer.Start(ctx, "register-peer", trace.WithAttributes(
		attribute.String("id", id),
		attribute.String("address", address),
		attribute.String("role", role.String()),
	))
	defer span.End()

	return tm.svc.RegisterPeer(ctx, id, address, role)
}

func (tm *tracing) ListPeers(ctx context.Context) ([]peers.Record, error) {
	ctx, span := tm.tracer.Start(ctx, "list-peers")
	defer span.End()

	return tm.svc.ListPeers(ctx)
}

func (tm *tracing) Topology(ctx context.Context) (peers.Topology, error) {
	ctx, span := tm.tracer.Start(ctx, "get-topology")
	defer span.End()

	return tm.svc.Topology(ctx)
}

func (tm *tracing) HandleEnvelope(ctx context.Context, env wire.Envelope) error {
	ctx, span := tm.tracer.Start(ctx, "handle-envelope", trace.WithAttributes(
		attribute.String("kind", string(env.Kind)),
		attribute.String("sender_id", env.SenderID),
		attribute.Int64("epoch", int64(env.Epoch)),
	))
	defer span.End()

	return tm.svc.HandleEnvelope(ctx, env)
}

func (tm *tracing) SubmitGradient(ctx context.Context, epoch uint64, c aggregator.Contribution) (aggregator.Result, error) {
	ctx, span := tm.tracer.Start(ctx, "submit-gradient", trace.WithAttributes(
		attribute.Int64("epoch", int64(epoch)),
		attribute.Int("layer_index", c.LayerIndex),
		attribute.Int("batch_size", c.BatchSize),
	))
	defer span.End()

	return tm.svc.SubmitGradient(ctx, epoch, c)
}

func (tm *tracing) AdvanceEpoch(ctx context.Context, epoch uint64) (uint64, error) {
	ctx, span := tm.tracer.Start(ctx, "advance-epoch", trace.WithAttributes(
		attribute.Int64("epoch", int64(epoch)),
	))
	defer span.End()

	return tm.svc.AdvanceEpoch(ctx, epoch)
}

func (tm *tracing) AggregationStatus(ctx context.Context) (node.AggregationStatus, error) {
	ctx, span := tm.tracer.Start(ctx, "aggregation-status")
	defer span.End()

	return tm.svc.AggregationStatus(ctx)
}

func (tm *tracing) Broadcast(ctx context.Context, s storage.Snapshot) (storage.Snapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "broadcast", trace.WithAttributes(
		attribute.Int64("epoch", int64(s.Epoch)),
		attribute.Int("layers", len(s.Layers)),
	))
	defer span.End()

	return tm.svc.Broadcast(ctx, s)
}

func (tm *tracing) GetSnapshot(ctx context.Context, epoch uint64) (storage.Snapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "get-snapshot", trace.WithAttributes(
		attribute.Int64("epoch", int64(epoch)),
	))
	defer span.End()

	return tm.svc.GetSnapshot(ctx, epoch)
}

func (tm *tracing) ListGradients(ctx context.Context, epoch uint64) ([]storage.Gradient, error) {
	ctx, span := tm.tracer.Start(ctx, "list-gradients", trace.WithAttributes(
		attribute.Int64("epoch", int64(epoch)),
	))
	defer span.End()

	return tm.svc.ListGradients(ctx, epoch)
}

func (tm *tracing) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "latest-snapshot")
	defer span.End()

	return tm.svc.LatestSnapshot(ctx)
}

func (tm *tracing) ListSnapshots(ctx context.Context, offset, limit uint64) (node.SnapshotPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-snapshots", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListSnapshots(ctx, offset, limit)
}

func (tm *tracing) Tick(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "tick")
	defer span.End()

	return tm.svc.Tick(ctx)
}

func (tm *tracing) Start(ctx context.Context) error {
	return tm.svc.Start(ctx)
}
