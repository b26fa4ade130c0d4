package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/notifier/internal/contracts"
)

// MockNotificationService is a mock implementation of service.NotificationService.
type MockNotificationService struct {
	mock.Mock
}

//nolint:revive
func (m *MockNotificationService) Subscribe(ctx context.Context, req contracts.SubscribeRequest) (contracts.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(contracts.Response), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) Unsubscribe(ctx context.Context, req contracts.UnsubscribeRequest) (contracts.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(contracts.Response), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) Notify(ctx context.Context, req contracts.NotifyRequest) (contracts.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(contracts.Response), args.Error(1)
}
