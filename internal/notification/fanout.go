package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaharia-lab/notifier/internal/storage"
)

// EventDeliveryFailed is published for every recipient that could not be reached.
const EventDeliveryFailed = "notification.delivery_failed"

// FailurePolicy decides what a fan-out does after a failed delivery.
type FailurePolicy string

const (
	// PolicyContinue keeps sending to the remaining recipients.
	PolicyContinue FailurePolicy = "continue"
	// PolicyAbort stops at the first failed delivery.
	PolicyAbort FailurePolicy = "abort"
)

// ParseFailurePolicy converts a configuration string to a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyContinue, "":
		return PolicyContinue, nil
	case PolicyAbort:
		return PolicyAbort, nil
	}
	return "", fmt.Errorf("unknown fan-out failure policy %q", s)
}

// Outcome is the result for one recipient.
type Outcome struct {
	Address string
	Err     error
}

// Report summarizes one fan-out.
type Report struct {
	// Attempted counts recipients a send was tried for.
	Attempted int
	// Delivered counts sends that succeeded.
	Delivered int
	// Outcomes lists every attempt in order.
	Outcomes []Outcome
	// CloseErr is set when the session failed to disconnect cleanly.
	CloseErr error
}

// EventPublisher receives fan-out events. Implementations must not block.
type EventPublisher interface {
	Publish(eventType string, payload map[string]string)
}

// DeliveryObserver is told about every delivery attempt.
type DeliveryObserver interface {
	ObserveDelivery(status string)
}

// FanoutConfig configures a Fanout.
type FanoutConfig struct {
	Transport Transport
	Policy    FailurePolicy
	// DeliveryLog is optional. When set, every attempt is recorded.
	DeliveryLog storage.DeliveryLog
	// EventPublisher is optional.
	EventPublisher EventPublisher
	// Observer is optional.
	Observer DeliveryObserver
	Logger   *slog.Logger
}

// Fanout sends one message per recipient over a single transport session.
type Fanout struct {
	cfg    FanoutConfig
	logger *slog.Logger
}

// NewFanout creates a Fanout.
func NewFanout(cfg FanoutConfig) *Fanout {
	if cfg.Policy == "" {
		cfg.Policy = PolicyContinue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{cfg: cfg, logger: logger}
}

// Policy returns the configured failure policy.
func (f *Fanout) Policy() FailurePolicy { return f.cfg.Policy }

// Notify delivers content to each recipient in order. It returns an error when
// the session cannot be opened, or under PolicyAbort when a delivery fails.
// Under PolicyContinue individual failures are reported in the Report only.
func (f *Fanout) Notify(ctx context.Context, recipients []Recipient, content Content) (report Report, err error) {
	if len(recipients) == 0 {
		return report, nil
	}

	session, err := f.cfg.Transport.Open(ctx)
	if err != nil {
		return report, fmt.Errorf("opening %s session: %w", f.cfg.Transport.Name(), err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			report.CloseErr = cerr
			f.logger.Warn("closing transport session", "error", cerr)
		}
	}()

	report.Outcomes = make([]Outcome, 0, len(recipients))
	for _, r := range recipients {
		report.Attempted++
		sendErr := session.Send(ctx, Message{To: r, Subject: content.Subject, Body: content.Body})
		f.record(ctx, r, content, sendErr)

		if sendErr != nil {
			sendErr = &TransportSendError{Address: r.Address, Err: sendErr}
			report.Outcomes = append(report.Outcomes, Outcome{Address: r.Address, Err: sendErr})
			if f.cfg.Policy == PolicyAbort {
				return report, sendErr
			}
			continue
		}
		report.Delivered++
		report.Outcomes = append(report.Outcomes, Outcome{Address: r.Address})
	}

	f.logger.Info("fan-out finished",
		slog.Int("attempted", report.Attempted),
		slog.Int("delivered", report.Delivered),
	)
	return report, nil
}

// record logs, persists and publishes one attempt.
func (f *Fanout) record(ctx context.Context, r Recipient, content Content, sendErr error) {
	entry := storage.DeliveryLogEntry{
		Address:   r.Address,
		Subject:   buildSubject(content.Subject),
		Status:    storage.DeliveryStatusSent,
		CreatedAt: time.Now().UTC(),
	}
	if sendErr != nil {
		entry.Status = storage.DeliveryStatusFailed
		entry.ErrorMsg = sendErr.Error()
		f.logger.Warn("delivery failed", slog.String("address", r.Address), "error", sendErr)
		if f.cfg.EventPublisher != nil {
			f.cfg.EventPublisher.Publish(EventDeliveryFailed, map[string]string{
				"address": r.Address,
				"error":   sendErr.Error(),
			})
		}
	}
	if f.cfg.Observer != nil {
		f.cfg.Observer.ObserveDelivery(entry.Status)
	}
	if f.cfg.DeliveryLog != nil {
		if err := f.cfg.DeliveryLog.LogDelivery(context.WithoutCancel(ctx), entry); err != nil {
			f.logger.Warn("failed to log delivery", slog.String("address", r.Address), "error", err)
		}
	}
}
