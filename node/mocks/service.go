package mocks

import (
	"context"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/stretchr/testify/mock"
)

var _ node.Service = (*MockService)(nil)

// MockService is a mock implementation of the node.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Info(ctx context.Context) (node.Info, error) {
	args := m.Called(ctx)
	return args.Get(0).(node.Info), args.Error(1)
}

// RegisterPeer adds or refreshes a peer
func (m *MockService) RegisterPeer(ctx context.Context, id, address string, role peers.Role) error {
	args := m.Called(ctx, id, address, role)
	return args.Error(0)
}

func (m *MockService) ListPeers(ctx context.Context) ([]peers.Record, error) {
	args := m.Called(ctx)
	return args.Get(0).([]peers.Record), args.Error(1)
}

func (m *MockService) Topology(ctx context.Context) (peers.Topology, error) {
	args := m.Called(ctx)
	return args.Get(0).(peers.Topology), args.Error(1)
}

func (m *MockService) HandleEnvelope(ctx context.Context, env wire.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// SubmitGradient contributes a local gradient
func (m *MockService) SubmitGradient(ctx context.Context, epoch uint64, c aggregator.Contribution) (aggregator.Result, error) {
	args := m.Called(ctx, epoch, c)
	return args.Get(0).(aggregator.Result), args.Error(1)
}

func (m *MockService) AdvanceEpoch(ctx context.Context, epoch uint64) (uint64, error) {
	args := m.Called(ctx, epoch)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockService) AggregationStatus(ctx context.Context) (node.AggregationStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(node.AggregationStatus), args.Error(1)
}

// Broadcast stores and pushes a snapshot
func (m *MockService) Broadcast(ctx context.Context, s storage.Snapshot) (storage.Snapshot, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(storage.Snapshot), args.Error(1)
}

func (m *MockService) GetSnapshot(ctx context.Context, epoch uint64) (storage.Snapshot, error) {
	args := m.Called(ctx, epoch)
	return args.Get(0).(storage.Snapshot), args.Error(1)
}

func (m *MockService) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(storage.Snapshot), args.Error(1)
}

// ListSnapshots lists snapshots with pagination
func (m *MockService) ListSnapshots(ctx context.Context, offset, limit uint64) (node.SnapshotPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(node.SnapshotPage), args.Error(1)
}

func (m *MockService) ListGradients(ctx context.Context, epoch uint64) ([]storage.Gradient, error) {
	args := m.Called(ctx, epoch)
	return args.Get(0).([]storage.Gradient), args.Error(1)
}

func (m *MockService) Tick(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockService) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
