// Package scheduler sends recurring notifications through the dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/contracts"
	"github.com/shaharia-lab/notifier/internal/dispatch"
)

// EventPublisher allows the scheduler to emit events without depending on a
// concrete event bus implementation.
type EventPublisher interface {
	Publish(eventType string, payload map[string]string)
}

// Event types for scheduled runs.
const (
	EventRunFinished = "scheduler.notify.finished"
	EventRunFailed   = "scheduler.notify.failed"
)

// Dispatcher routes one envelope. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, env dispatch.Envelope) (dispatch.Envelope, error)
}

// Job is one recurring Notify call. Exactly one of Cron or Every is set.
type Job struct {
	Name    string
	Cron    string
	Every   time.Duration
	Payload contracts.Payload
}

// Config holds the scheduler configuration.
type Config struct {
	Dispatcher     Dispatcher
	Logger         *slog.Logger
	MaxConcurrency int
	// Timeout bounds one run. Defaults to 5m.
	Timeout time.Duration
	// EventPublisher is optional. When set, run outcomes are published.
	EventPublisher EventPublisher
}

// Scheduler runs Jobs using gocron.
type Scheduler struct {
	cron      gocron.Scheduler
	cfg       Config
	jobs      map[string]uuid.UUID // job name → gocron job UUID
	mu        sync.Mutex
	semaphore chan struct{}
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}

	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:      cron,
		cfg:       cfg,
		jobs:      make(map[string]uuid.UUID),
		semaphore: make(chan struct{}, maxConc),
		logger:    logger,
	}, nil
}

// Start schedules jobs and starts the gocron scheduler. A job that cannot be
// scheduled is logged and skipped.
func (s *Scheduler) Start(jobs []Job) error {
	for _, job := range jobs {
		if err := s.Schedule(job); err != nil {
			s.logger.Warn("failed to schedule job on startup", "job", job.Name, "error", err)
		}
	}

	s.cron.Start()
	s.logger.Info("notification scheduler started", "jobs", s.Len())
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Schedule adds or replaces a job.
func (s *Scheduler) Schedule(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID, ok := s.jobs[job.Name]; ok {
		if err := s.cron.RemoveJob(jobID); err != nil {
			s.logger.Warn("failed to remove existing job", "job", job.Name, "error", err)
		}
		delete(s.jobs, job.Name)
	}

	def, err := jobDefinition(job)
	if err != nil {
		return fmt.Errorf("building job definition for %q: %w", job.Name, err)
	}

	j, err := s.cron.NewJob(def, gocron.NewTask(func() { s.Run(job) }), gocron.WithName(job.Name))
	if err != nil {
		return fmt.Errorf("scheduling job %q: %w", job.Name, err)
	}

	s.jobs[job.Name] = j.ID()
	s.logger.Info("job scheduled", "job", job.Name, "cron", job.Cron, "every", job.Every)
	return nil
}

// Unschedule removes a job by name.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID, ok := s.jobs[name]; ok {
		if err := s.cron.RemoveJob(jobID); err != nil {
			s.logger.Warn("failed to remove job", "job", name, "error", err)
		}
		delete(s.jobs, name)
		s.logger.Info("job unscheduled", "job", name)
	}
}

func jobDefinition(job Job) (gocron.JobDefinition, error) {
	switch {
	case job.Cron != "" && job.Every > 0:
		return nil, fmt.Errorf("cron and every are mutually exclusive")
	case job.Cron != "":
		return gocron.CronJob(job.Cron, false), nil
	case job.Every > 0:
		return gocron.DurationJob(job.Every), nil
	default:
		return nil, fmt.Errorf("cron or every is required")
	}
}

// Run performs one Notify call for job with concurrency limiting. The
// response status decides which event is published.
func (s *Scheduler) Run(job Job) {
	s.semaphore <- struct{}{}
	defer func() { <-s.semaphore }()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	log := s.logger.With("job", job.Name)
	resp, err := s.notify(ctx, job)
	if err != nil {
		log.Error("scheduled notification failed", "error", err)
		s.publish(EventRunFailed, job.Name, err.Error())
		return
	}
	if resp.Status != contracts.StatusSuccessful {
		log.Warn("scheduled notification reported failure", "message", resp.Message)
		s.publish(EventRunFailed, job.Name, resp.Message)
		return
	}
	log.Info("scheduled notification sent", "message", resp.Message)
	s.publish(EventRunFinished, job.Name, resp.Message)
}

func (s *Scheduler) notify(ctx context.Context, job Job) (contracts.Response, error) {
	payload, err := codec.Encode(contracts.NotifyRequest{Payload: job.Payload})
	if err != nil {
		return contracts.Response{}, err
	}
	out, err := s.cfg.Dispatcher.Dispatch(ctx, dispatch.Envelope{Method: contracts.MethodNotify, Payload: payload})
	if err != nil {
		return contracts.Response{}, err
	}
	return codec.Decode[contracts.Response](out.Payload)
}

func (s *Scheduler) publish(eventType, name, message string) {
	if s.cfg.EventPublisher == nil {
		return
	}
	s.cfg.EventPublisher.Publish(eventType, map[string]string{
		"job":     name,
		"message": message,
	})
}
