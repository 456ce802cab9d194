package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
)

var _ node.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    node.Service
}

func Logging(logger *slog.Logger, svc node.Service) node.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Info(ctx context.Context) (info node.Info, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get node info failed", args...)

			return
		}
		lm.logger.Info("Get node info completed successfully", args...)
	}(time.Now())

	return lm.svc.Info(ctx)
}

func (lm *loggingMiddleware) RegisterPeer(ctx context.Context, id, address string, role peers.Role) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("peer",
				slog.String("id", id),
				slog.String("address", address),
				slog.String("role", role.String()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register peer failed", args...)

			return
		}
		lm.logger.Info("Register peer completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterPeer(ctx, id, address, role)
}

func (lm *loggingMiddleware) ListPeers(ctx context.Context) (resp []peers.Record, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("count", len(resp)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List peers failed", args...)

			return
		}
		lm.logger.Info("List peers completed successfully", args...)
	}(time.Now())

	return lm.svc.ListPeers(ctx)
}

func (lm *loggingMiddleware) Topology(ctx context.Context) (topo peers.Topology, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Bool("is_root", topo.IsRoot),
			slog.Int("children", len(topo.Children)),
		}
		if topo.Parent != nil {
			args = append(args, slog.String("parent_id", topo.Parent.ID))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get topology failed", args...)

			return
		}
		lm.logger.Info("Get topology completed successfully", args...)
	}(time.Now())

	return lm.svc.Topology(ctx)
}

func (lm *loggingMiddleware) HandleEnvelope(ctx context.Context, env wire.Envelope) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("envelope",
				slog.String("kind", string(env.Kind)),
				slog.String("sender_id", env.SenderID),
				slog.Uint64("epoch", env.Epoch),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Handle envelope failed", args...)

			return
		}
		lm.logger.Info("Handle envelope completed successfully", args...)
	}(time.Now())

	return lm.svc.HandleEnvelope(ctx, env)
}

func (lm *loggingMiddleware) SubmitGradient(ctx context.Context, epoch uint64, c aggregator.Contribution) (res aggregator.Result, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("gradient",
				slog.Uint64("epoch", epoch),
				slog.Int("layer_index", c.LayerIndex),
				slog.Int("batch_size", c.BatchSize),
			),
			slog.String("status", res.Status.String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit gradient failed", args...)

			return
		}
		lm.logger.Info("Submit gradient completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitGradient(ctx, epoch, c)
}

func (lm *loggingMiddleware) AdvanceEpoch(ctx context.Context, epoch uint64) (current uint64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("requested", epoch),
			slog.Uint64("current", current),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Advance epoch failed", args...)

			return
		}
		lm.logger.Info("Advance epoch completed successfully", args...)
	}(time.Now())

	return lm.svc.AdvanceEpoch(ctx, epoch)
}

func (lm *loggingMiddleware) AggregationStatus(ctx context.Context) (status node.AggregationStatus, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("epoch", status.Epoch),
			slog.Int("layers", len(status.Layers)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get aggregation status failed", args...)

			return
		}
		lm.logger.Info("Get aggregation status completed successfully", args...)
	}(time.Now())

	return lm.svc.AggregationStatus(ctx)
}

func (lm *loggingMiddleware) Broadcast(ctx context.Context, s storage.Snapshot) (resp storage.Snapshot, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("snapshot",
				slog.Uint64("epoch", s.Epoch),
				slog.Int("layers", len(s.Layers)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Broadcast snapshot failed", args...)

			return
		}
		lm.logger.Info("Broadcast snapshot completed successfully", args...)
	}(time.Now())

	return lm.svc.Broadcast(ctx, s)
}

func (lm *loggingMiddleware) GetSnapshot(ctx context.Context, epoch uint64) (resp storage.Snapshot, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("epoch", epoch),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get snapshot failed", args...)

			return
		}
		lm.logger.Info("Get snapshot completed successfully", args...)
	}(time.Now())

	return lm.svc.GetSnapshot(ctx, epoch)
}

func (lm *loggingMiddleware) ListGradients(ctx context.Context, epoch uint64) (resp []storage.Gradient, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("epoch", epoch),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List gradients failed", args...)

			return
		}
		args = append(args, slog.Int("count", len(resp)))
		lm.logger.Info("List gradients completed successfully", args...)
	}(time.Now())

	return lm.svc.ListGradients(ctx, epoch)
}

func (lm *loggingMiddleware) LatestSnapshot(ctx context.Context) (resp storage.Snapshot, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("epoch", resp.Epoch),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get latest snapshot failed", args...)

			return
		}
		lm.logger.Info("Get latest snapshot completed successfully", args...)
	}(time.Now())

	return lm.svc.LatestSnapshot(ctx)
}

func (lm *loggingMiddleware) ListSnapshots(ctx context.Context, offset, limit uint64) (resp node.SnapshotPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List snapshots failed", args...)

			return
		}
		lm.logger.Info("List snapshots completed successfully", args...)
	}(time.Now())

	return lm.svc.ListSnapshots(ctx, offset, limit)
}

func (lm *loggingMiddleware) Tick(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Gossip tick failed", args...)

			return
		}
		lm.logger.Debug("Gossip tick completed successfully", args...)
	}(time.Now())

	return lm.svc.Tick(ctx)
}

func (lm *loggingMiddleware) Start(ctx context.Context) (err error) {
	lm.logger.Info("Node started")
	defer func(begin time.Time) {
		args := []any{
			slog.String("uptime", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Error("Node stopped", args...)

			return
		}
		lm.logger.Info("Node stopped", args...)
	}(time.Now())

	return lm.svc.Start(ctx)
}
