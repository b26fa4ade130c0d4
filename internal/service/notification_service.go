package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/shaharia-lab/notifier/internal/contracts"
	"github.com/shaharia-lab/notifier/internal/notification"
	"github.com/shaharia-lab/notifier/internal/registry"
	"github.com/shaharia-lab/notifier/internal/storage"
)

// Registry is the part of the subscription registry the service mutates.
type Registry interface {
	Subscribe(ctx context.Context, s registry.Subscription) error
	Unsubscribe(ctx context.Context, address string) error
}

// SnapshotSource resolves subscribers for a Notify request that lists none.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]registry.Subscription, error)
}

// Notifier delivers one message per recipient.
type Notifier interface {
	Notify(ctx context.Context, recipients []notification.Recipient, content notification.Content) (notification.Report, error)
}

// NotificationService handles the Subscribe, Unsubscribe and Notify methods.
// Domain failures are reported as a Failure response, never as an error.
type NotificationService interface {
	// Subscribe adds or updates the subscription for req.Address.
	Subscribe(ctx context.Context, req contracts.SubscribeRequest) (contracts.Response, error)
	// Unsubscribe removes the subscription for req.Address, if present.
	Unsubscribe(ctx context.Context, req contracts.UnsubscribeRequest) (contracts.Response, error)
	// Notify fans req.Payload out to the listed subscribers, or to the
	// snapshot source when the list is empty.
	Notify(ctx context.Context, req contracts.NotifyRequest) (contracts.Response, error)
}

// Config holds the collaborators of a NotificationService.
type Config struct {
	Registry Registry
	// Snapshots is optional. Without it, Notify requires an explicit
	// subscriber list.
	Snapshots SnapshotSource
	Notifier  Notifier
	// Events is optional.
	Events EventPublisher
	Logger *slog.Logger
}

// notificationServiceImpl implements NotificationService.
type notificationServiceImpl struct {
	registry  Registry
	snapshots SnapshotSource
	notifier  Notifier
	events    EventPublisher
	logger    *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(cfg Config) NotificationService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationServiceImpl{
		registry:  cfg.Registry,
		snapshots: cfg.Snapshots,
		notifier:  cfg.Notifier,
		events:    cfg.Events,
		logger:    logger,
	}
}

func (s *notificationServiceImpl) Subscribe(ctx context.Context, req contracts.SubscribeRequest) (contracts.Response, error) {
	if verr := validateAddress("address", req.Address); verr != nil {
		return s.failure("subscribe", "Failed to create subscription", verr), nil
	}

	err := s.registry.Subscribe(ctx, registry.Subscription{Address: req.Address, DisplayName: req.DisplayName})
	if err != nil {
		return s.failure("subscribe", fmt.Sprintf("Failed to create subscription for email %s", req.Address), err), nil
	}
	return contracts.Succeeded("Successfully created subscription for user %s with email %s", req.DisplayName, req.Address), nil
}

func (s *notificationServiceImpl) Unsubscribe(ctx context.Context, req contracts.UnsubscribeRequest) (contracts.Response, error) {
	if verr := validateAddress("address", req.Address); verr != nil {
		return s.failure("unsubscribe", "Failed to remove subscription", verr), nil
	}

	if err := s.registry.Unsubscribe(ctx, req.Address); err != nil {
		return s.failure("unsubscribe", fmt.Sprintf("Failed to remove subscription for email %s", req.Address), err), nil
	}
	return contracts.Succeeded("Successfully removed subscription for email: %s", req.Address), nil
}

func (s *notificationServiceImpl) Notify(ctx context.Context, req contracts.NotifyRequest) (contracts.Response, error) {
	recipients, source, err := s.resolveRecipients(ctx, req.Subscribers)
	if err != nil {
		return s.failure("notify", "Failed to resolve subscribers", err), nil
	}

	content := notification.Content{Subject: req.Payload.Subject, Body: req.Payload.Body}
	report, err := s.notifier.Notify(ctx, recipients, content)
	if err != nil {
		msg := fmt.Sprintf("Notification failed after %d of %d subscribers (%d delivered)",
			report.Attempted, len(recipients), report.Delivered)
		return s.failure("notify", msg, err), nil
	}

	s.logger.Info("notification fan-out completed",
		"source", source,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
	)
	if s.events != nil {
		s.events.Publish(EventNotificationCompleted, map[string]string{
			"source":    source,
			"attempted": strconv.Itoa(report.Attempted),
			"delivered": strconv.Itoa(report.Delivered),
		})
	}
	return contracts.Succeeded("Notification attempted for %d subscribers (%d delivered)", report.Attempted, report.Delivered), nil
}

// validateAddress rejects empty addresses and addresses that are not valid
// UTF-8. The latter would not survive the JSON round trip unchanged.
func validateAddress(field, address string) *ValidationError {
	switch {
	case address == "":
		return &ValidationError{Field: field, Message: "address is required"}
	case !utf8.ValidString(address):
		return &ValidationError{Field: field, Message: "address must be valid UTF-8"}
	}
	return nil
}

// resolveRecipients returns the request's subscribers, or the snapshot when
// the request lists none. The second result names where they came from.
func (s *notificationServiceImpl) resolveRecipients(ctx context.Context, listed []contracts.Subscriber) ([]notification.Recipient, string, error) {
	if len(listed) > 0 {
		recipients := make([]notification.Recipient, 0, len(listed))
		for i, sub := range listed {
			if verr := validateAddress(fmt.Sprintf("subscribers[%d].address", i), sub.Address); verr != nil {
				return nil, "", verr
			}
			recipients = append(recipients, notification.Recipient{Address: sub.Address, Name: sub.DisplayName})
		}
		return recipients, "request", nil
	}

	if s.snapshots == nil {
		return nil, "", &ValidationError{Field: "subscribers", Message: "no subscribers given and no snapshot source configured"}
	}
	subs, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	recipients := make([]notification.Recipient, 0, len(subs))
	for _, sub := range subs {
		recipients = append(recipients, notification.Recipient{Address: sub.Address, Name: sub.DisplayName})
	}
	return recipients, "snapshot", nil
}

// failure classifies err and turns it into a Failure response.
func (s *notificationServiceImpl) failure(op, prefix string, err error) contracts.Response {
	if errors.Is(err, registry.ErrEmptyAddress) {
		err = &ValidationError{Field: "address", Message: "address is required"}
	}
	if errors.Is(err, storage.ErrUnavailable) {
		err = &StorageUnavailableError{Op: op, Err: err}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		s.logger.Warn("rejected request", "op", op, "error", err)
	} else {
		s.logger.Error("request failed", "op", op, "error", err)
	}
	return contracts.Failed("%s: %v", prefix, err)
}
