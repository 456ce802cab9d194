package mocks

import (
	"context"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/stretchr/testify/mock"
)

var _ node.Transport = (*MockTransport)(nil)

// MockTransport is a mock implementation of the node.Transport interface
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, address string, env wire.Envelope) error {
	args := m.Called(ctx, address, env)
	return args.Error(0)
}

func (m *MockTransport) Listen(ctx context.Context, address string, handler node.Handler) error {
	args := m.Called(ctx, address, handler)
	return args.Error(0)
}
