package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/hyperfold/pkg/aggregator"
	pkgerrors "github.com/absmach/hyperfold/pkg/errors"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

type service struct {
	cfg        Config
	directory  *peers.Directory
	aggregator *aggregator.Aggregator
	transport  Transport
	repo       storage.Repository
	sink       ModelSink
	results    metrics.Counter
	now        func() time.Time
	logger     *slog.Logger
	ticking    atomic.Bool

	outboxMu sync.Mutex
	outbox   map[outboxKey]aggregator.Contribution
}

// outboxKey identifies a completed gradient the parent has not accepted yet.
type outboxKey struct {
	epoch uint64
	layer int
}

type Option func(*service)

func WithModelSink(sink ModelSink) Option {
	return func(s *service) {
		s.sink = sink
	}
}

// WithResultsCounter counts aggregation outcomes by their status label.
func WithResultsCounter(counter metrics.Counter) Option {
	return func(s *service) {
		s.results = counter
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func NewService(cfg Config, directory *peers.Directory, agg *aggregator.Aggregator, transport Transport, repo storage.Repository, logger *slog.Logger, opts ...Option) Service {
	if cfg.PeerTTL <= 0 {
		cfg.PeerTTL = peers.DefaultTTL
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = peers.DefaultFanout
	}
	if cfg.GossipInterval <= 0 {
		cfg.GossipInterval = peers.DefaultGossipInterval
	}

	svc := &service{
		cfg:        cfg,
		directory:  directory,
		aggregator: agg,
		transport:  transport,
		repo:       repo,
		results:    discard.NewCounter(),
		now:        time.Now,
		logger:     logger,
		outbox:     make(map[outboxKey]aggregator.Contribution),
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

func (svc *service) Info(_ context.Context) (Info, error) {
	return Info{
		ID:      svc.cfg.ID,
		Address: svc.cfg.Address,
		Role:    svc.cfg.Role,
		Epoch:   svc.aggregator.Epoch(),
		Peers:   svc.directory.Len(),
	}, nil
}

func (svc *service) RegisterPeer(_ context.Context, id, address string, role peers.Role) error {
	if id == svc.cfg.ID {
		return ErrSelfPeer
	}

	return svc.directory.Upsert(id, address, role)
}

func (svc *service) ListPeers(_ context.Context) ([]peers.Record, error) {
	return svc.directory.Snapshot(), nil
}

func (svc *service) Topology(_ context.Context) (peers.Topology, error) {
	topo := svc.directory.BuildTopology(svc.cfg.ID, svc.cfg.Role)
	if topo.IsRoot {
		topo.Children = svc.directory.AssignedWorkers(svc.cfg.ID)
	}

	return topo, nil
}

func (svc *service) HandleEnvelope(ctx context.Context, env wire.Envelope) error {
	if env.SenderID == svc.cfg.ID {
		return nil
	}
	role, err := peers.RoleFromCode(env.SenderRole)
	if err != nil {
		return err
	}
	if err := svc.directory.Upsert(env.SenderID, env.SenderAddress, role); err != nil {
		return err
	}

	msg, err := wire.Open(env)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case wire.Gossip:
		svc.handleGossip(m)

		return nil
	case wire.GradientContribution:
		return svc.handleChildGradient(ctx, env.SenderID, env.Epoch, m)
	case wire.ParameterBroadcast:
		return svc.handleBroadcast(ctx, m)
	default:
		return fmt.Errorf("%w: %s", wire.ErrUnknownKind, env.Kind)
	}
}

func (svc *service) handleGossip(g wire.Gossip) {
	records := make([]peers.Record, 0, len(g.Peers))
	for _, p := range g.Peers {
		role, err := peers.RoleFromCode(p.RoleCode)
		if err != nil {
			continue
		}
		records = append(records, peers.Record{ID: p.ID, Address: p.Address, Role: role})
	}
	for _, id := range svc.directory.HandleGossip(records, svc.cfg.ID) {
		svc.logger.Info("Discovered peer via gossip", slog.String("peer_id", id), slog.String("sender_id", g.SenderID))
	}
}

func (svc *service) handleChildGradient(ctx context.Context, childID string, epoch uint64, g wire.GradientContribution) error {
	if svc.cfg.Role != peers.ParameterServer {
		return fmt.Errorf("%w: gradient from %s on a %s", ErrUnexpectedMessage, childID, svc.cfg.Role)
	}

	c := aggregator.Contribution(g)
	expected := svc.expectedChildren(c.LayerIndex)
	res, err := svc.aggregate(c, childID, epoch, expected)
	if err != nil {
		return err
	}
	if res.Status == aggregator.Pending {
		// A parameter server does not train, so its own share is empty.
		self := aggregator.Contribution{
			LayerIndex:     c.LayerIndex,
			WeightGradient: make([]float64, len(c.WeightGradient)),
			BiasGradient:   make([]float64, len(c.BiasGradient)),
		}
		if res, err = svc.aggregate(self, aggregator.SelfID, epoch, expected); err != nil {
			return err
		}
	}

	return svc.complete(ctx, epoch, res)
}

func (svc *service) handleBroadcast(ctx context.Context, b wire.ParameterBroadcast) error {
	if svc.cfg.Role != peers.Worker {
		return fmt.Errorf("%w: broadcast on a %s", ErrUnexpectedMessage, svc.cfg.Role)
	}
	if b.Epoch < svc.aggregator.Epoch() {
		return fmt.Errorf("%w: broadcast for epoch %d", pkgerrors.ErrStaleEpoch, b.Epoch)
	}

	snapshot := storage.Snapshot{Epoch: b.Epoch, Layers: b.Layers, CreatedAt: svc.now()}
	if err := svc.repo.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}
	svc.aggregator.AdvanceEpoch(b.Epoch)

	return nil
}

func (svc *service) SubmitGradient(ctx context.Context, epoch uint64, c aggregator.Contribution) (aggregator.Result, error) {
	if svc.cfg.Role != peers.Worker {
		return aggregator.Result{}, ErrNotWorker
	}
	if svc.directory.BuildTopology(svc.cfg.ID, svc.cfg.Role).Orphan() {
		return aggregator.Result{}, ErrOrphan
	}

	res, err := svc.aggregate(c, aggregator.SelfID, epoch, nil)
	if err != nil {
		return aggregator.Result{}, err
	}

	return res, svc.complete(ctx, epoch, res)
}

func (svc *service) AdvanceEpoch(_ context.Context, epoch uint64) (uint64, error) {
	if svc.aggregator.AdvanceEpoch(epoch) {
		svc.logger.Info("Advanced epoch", slog.Uint64("epoch", epoch))
	}

	return svc.aggregator.Epoch(), nil
}

func (svc *service) AggregationStatus(_ context.Context) (AggregationStatus, error) {
	status := AggregationStatus{
		Epoch:            svc.aggregator.Epoch(),
		ExpectedChildren: []string{},
		Layers:           svc.aggregator.Progress(),
	}
	if svc.cfg.Role == peers.ParameterServer {
		for _, w := range svc.directory.AssignedWorkers(svc.cfg.ID) {
			status.ExpectedChildren = append(status.ExpectedChildren, w.ID)
		}
	}

	return status, nil
}

func (svc *service) Broadcast(ctx context.Context, s storage.Snapshot) (storage.Snapshot, error) {
	if svc.cfg.Role != peers.ParameterServer {
		return storage.Snapshot{}, pkgerrors.ErrNotRoot
	}
	if s.Epoch < svc.aggregator.Epoch() {
		return storage.Snapshot{}, fmt.Errorf("%w: broadcast for epoch %d", pkgerrors.ErrStaleEpoch, s.Epoch)
	}

	s.CreatedAt = svc.now()
	if err := svc.repo.SaveSnapshot(ctx, s); err != nil {
		return storage.Snapshot{}, err
	}
	svc.aggregator.AdvanceEpoch(s.Epoch)

	env, err := wire.Seal(svc.sender(), s.Epoch, wire.ParameterBroadcast{Epoch: s.Epoch, Layers: s.Layers})
	if err != nil {
		return storage.Snapshot{}, err
	}
	var errs []error
	for _, w := range svc.directory.AssignedWorkers(svc.cfg.ID) {
		if err := svc.transport.Send(ctx, w.Address, env); err != nil {
			errs = append(errs, fmt.Errorf("send broadcast to %s: %w", w.ID, err))
		}
	}

	return s, errors.Join(errs...)
}

func (svc *service) GetSnapshot(ctx context.Context, epoch uint64) (storage.Snapshot, error) {
	return svc.repo.GetSnapshot(ctx, epoch)
}

func (svc *service) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	return svc.repo.LatestSnapshot(ctx)
}

func (svc *service) ListSnapshots(ctx context.Context, offset, limit uint64) (SnapshotPage, error) {
	snapshots, total, err := svc.repo.ListSnapshots(ctx, offset, limit)
	if err != nil {
		return SnapshotPage{}, err
	}

	return SnapshotPage{
		Offset:    offset,
		Limit:     limit,
		Total:     total,
		Snapshots: snapshots,
	}, nil
}

func (svc *service) ListGradients(ctx context.Context, epoch uint64) ([]storage.Gradient, error) {
	return svc.repo.ListGradients(ctx, epoch)
}

func (svc *service) Tick(ctx context.Context) error {
	if !svc.ticking.CompareAndSwap(false, true) {
		return nil
	}
	defer svc.ticking.Store(false)

	var errs []error
	purged := svc.directory.PurgeDead(svc.now(), svc.cfg.PeerTTL)
	for _, id := range purged {
		svc.logger.Info("Peer timed out", slog.String("peer_id", id))
	}
	if len(purged) > 0 && svc.cfg.Role == peers.ParameterServer {
		if err := svc.recheckLayers(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if svc.directory.BuildTopology(svc.cfg.ID, svc.cfg.Role).Orphan() {
		svc.logger.Warn("No parameter server known, topology is broken", slog.String("node_id", svc.cfg.ID))
	}
	if err := svc.flushOutbox(ctx); err != nil {
		errs = append(errs, err)
	}

	targets, snapshot := svc.directory.GenerateGossip(svc.cfg.Fanout)
	if len(targets) == 0 {
		return errors.Join(errs...)
	}

	gossip := wire.Gossip{SenderID: svc.cfg.ID, Peers: make([]wire.PeerBrief, 0, len(snapshot)+1)}
	gossip.Peers = append(gossip.Peers, wire.PeerBrief{ID: svc.cfg.ID, Address: svc.cfg.Address, RoleCode: svc.cfg.Role.Code()})
	for _, rec := range snapshot {
		gossip.Peers = append(gossip.Peers, wire.PeerBrief{ID: rec.ID, Address: rec.Address, RoleCode: rec.Role.Code()})
	}
	env, err := wire.Seal(svc.sender(), svc.aggregator.Epoch(), gossip)
	if err != nil {
		return err
	}

	for _, addr := range targets {
		if err := svc.transport.Send(ctx, addr, env); err != nil {
			errs = append(errs, fmt.Errorf("gossip to %s: %w", addr, err))
		}
	}

	return errors.Join(errs...)
}

func (svc *service) Start(ctx context.Context) error {
	handler := func(ctx context.Context, env wire.Envelope) error {
		if err := svc.HandleEnvelope(ctx, env); err != nil {
			svc.logger.Warn("Dropped envelope",
				slog.String("sender_id", env.SenderID),
				slog.String("kind", string(env.Kind)),
				slog.Any("error", err),
			)
		}

		return nil
	}
	if err := svc.transport.Listen(ctx, svc.cfg.Address, handler); err != nil {
		return err
	}

	for _, seed := range svc.cfg.Seeds {
		if err := svc.directory.Upsert(seed.ID, seed.Address, seed.Role); err != nil {
			svc.logger.Warn("Invalid seed peer", slog.String("peer_id", seed.ID), slog.Any("error", err))
		}
	}

	ticker := time.NewTicker(svc.cfg.GossipInterval)
	defer ticker.Stop()

	for {
		if err := svc.Tick(ctx); err != nil {
			svc.logger.Warn("Gossip round failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (svc *service) aggregate(c aggregator.Contribution, contributorID string, epoch uint64, expected []string) (aggregator.Result, error) {
	res, err := svc.aggregator.Aggregate(c, contributorID, epoch, expected)
	if err != nil {
		svc.results.With("status", "error").Add(1)

		return aggregator.Result{}, err
	}
	svc.results.With("status", res.Status.String()).Add(1)

	return res, nil
}

// complete hands a finished layer to the model sink at the root or to the
// parent otherwise.
func (svc *service) complete(ctx context.Context, epoch uint64, res aggregator.Result) error {
	if res.Status != aggregator.Complete {
		return nil
	}
	c := *res.Contribution

	topo := svc.directory.BuildTopology(svc.cfg.ID, svc.cfg.Role)
	switch {
	case topo.IsRoot:
		return svc.commit(ctx, epoch, c)
	case topo.Parent != nil:
		if err := svc.forward(ctx, *topo.Parent, epoch, c); err != nil {
			svc.logger.Error("Failed to forward gradient, queued for retry",
				slog.String("parent_id", topo.Parent.ID),
				slog.Uint64("epoch", epoch),
				slog.Int("layer", c.LayerIndex),
				slog.Any("error", err),
			)
			svc.enqueue(epoch, c)

			return err
		}

		return nil
	default:
		svc.enqueue(epoch, c)

		return ErrOrphan
	}
}

func (svc *service) forward(ctx context.Context, parent peers.Record, epoch uint64, c aggregator.Contribution) error {
	env, err := wire.Seal(svc.sender(), epoch, wire.GradientContribution(c))
	if err != nil {
		return err
	}

	return svc.transport.Send(ctx, parent.Address, env)
}

func (svc *service) enqueue(epoch uint64, c aggregator.Contribution) {
	svc.outboxMu.Lock()
	defer svc.outboxMu.Unlock()

	svc.outbox[outboxKey{epoch: epoch, layer: c.LayerIndex}] = c
}

// flushOutbox resends queued gradients of the current epoch to the current
// parent. Gradients of older epochs are dropped.
func (svc *service) flushOutbox(ctx context.Context) error {
	svc.outboxMu.Lock()
	defer svc.outboxMu.Unlock()

	if len(svc.outbox) == 0 {
		return nil
	}
	epoch := svc.aggregator.Epoch()
	topo := svc.directory.BuildTopology(svc.cfg.ID, svc.cfg.Role)

	var errs []error
	for key, c := range svc.outbox {
		if key.epoch < epoch {
			svc.logger.Warn("Dropped unsent gradient of a past epoch", slog.Uint64("epoch", key.epoch), slog.Int("layer", key.layer))
			delete(svc.outbox, key)

			continue
		}
		if topo.Parent == nil {
			continue
		}
		if err := svc.forward(ctx, *topo.Parent, key.epoch, c); err != nil {
			errs = append(errs, fmt.Errorf("resend layer %d to %s: %w", key.layer, topo.Parent.ID, err))

			continue
		}
		svc.logger.Info("Forwarded queued gradient", slog.String("parent_id", topo.Parent.ID), slog.Uint64("epoch", key.epoch), slog.Int("layer", key.layer))
		delete(svc.outbox, key)
	}

	return errors.Join(errs...)
}

// recheckLayers completes in-flight layers whose missing children were
// purged, since no further child message would trigger them.
func (svc *service) recheckLayers(ctx context.Context) error {
	epoch := svc.aggregator.Epoch()

	var errs []error
	for _, p := range svc.aggregator.Progress() {
		if p.Completed {
			continue
		}
		res := svc.aggregator.Recheck(p.LayerIndex, svc.expectedChildren(p.LayerIndex))
		if res.Status != aggregator.Complete {
			continue
		}
		svc.results.With("status", res.Status.String()).Add(1)
		svc.logger.Info("Completed layer without timed out children", slog.Uint64("epoch", epoch), slog.Int("layer", p.LayerIndex))
		if err := svc.complete(ctx, epoch, res); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (svc *service) commit(ctx context.Context, epoch uint64, c aggregator.Contribution) error {
	g := storage.Gradient{
		Epoch:          epoch,
		LayerIndex:     c.LayerIndex,
		WeightGradient: c.WeightGradient,
		BiasGradient:   c.BiasGradient,
		BatchSize:      c.BatchSize,
		CompletedAt:    svc.now(),
	}
	if err := svc.repo.SaveGradient(ctx, g); err != nil {
		return err
	}
	if svc.sink == nil {
		return nil
	}

	next, err := svc.sink.Apply(ctx, epoch, c)
	if err != nil || next == nil {
		return err
	}
	_, err = svc.Broadcast(ctx, *next)

	return err
}

// expectedChildren are the workers assigned to this server plus any child
// that already contributed to layer in the current epoch.
func (svc *service) expectedChildren(layer int) []string {
	set := make(map[string]struct{})
	for _, w := range svc.directory.AssignedWorkers(svc.cfg.ID) {
		set[w.ID] = struct{}{}
	}
	if state, ok := svc.aggregator.Inspect(layer); ok {
		for _, id := range state.Contributors {
			if id != aggregator.SelfID {
				set[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (svc *service) sender() wire.Sender {
	return wire.Sender{ID: svc.cfg.ID, Address: svc.cfg.Address, RoleCode: svc.cfg.Role.Code()}
}
