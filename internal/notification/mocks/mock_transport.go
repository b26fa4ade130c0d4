package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/notifier/internal/notification"
)

// MockTransport is a mock implementation of notification.Transport.
type MockTransport struct {
	mock.Mock
}

//nolint:revive
func (m *MockTransport) Name() string {
	return "mock"
}

//nolint:revive
func (m *MockTransport) Open(ctx context.Context) (notification.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(notification.Session), args.Error(1)
}

// MockSession is a mock implementation of notification.Session.
type MockSession struct {
	mock.Mock
}

//nolint:revive
func (m *MockSession) Send(ctx context.Context, msg notification.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

//nolint:revive
func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}
