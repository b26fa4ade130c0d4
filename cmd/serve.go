package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaharia-lab/notifier/internal/api"
	"github.com/shaharia-lab/notifier/internal/build"
	"github.com/shaharia-lab/notifier/internal/config"
	"github.com/shaharia-lab/notifier/internal/contracts"
	"github.com/shaharia-lab/notifier/internal/dispatch"
	"github.com/shaharia-lab/notifier/internal/eventbus"
	"github.com/shaharia-lab/notifier/internal/logger"
	"github.com/shaharia-lab/notifier/internal/metrics"
	"github.com/shaharia-lab/notifier/internal/notification"
	"github.com/shaharia-lab/notifier/internal/registry"
	"github.com/shaharia-lab/notifier/internal/scheduler"
	"github.com/shaharia-lab/notifier/internal/server"
	"github.com/shaharia-lab/notifier/internal/service"
	"github.com/shaharia-lab/notifier/internal/storage"
	"github.com/shaharia-lab/notifier/internal/telemetry"
	grpctransport "github.com/shaharia-lab/notifier/internal/transport/grpc"
	natstransport "github.com/shaharia-lab/notifier/internal/transport/nats"
)

// NewServeCmd returns the "serve" subcommand that runs the service.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var grpcPort, httpPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification service",
		Long: `Run the gRPC callback server, the HTTP invoke API and, when NATS_URL is
set, the NATS responder. All structured logs go to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// CLI flags override env config.
			if cmd.Flags().Changed("grpc-port") {
				cfg.GRPCPort = grpcPort
			}
			if cmd.Flags().Changed("http-port") {
				cfg.HTTPPort = httpPort
			}

			logFile := filepath.Join(cfg.LogDir(), "system.log")
			printBanner(cfg, logFile)

			if err := runServe(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "An error occurred. Please check the logs at: %s\n", logFile)
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&grpcPort, "grpc-port", cfg.GRPCPort, "gRPC server port (overrides GRPC_PORT env var)")
	cmd.Flags().IntVar(&httpPort, "http-port", cfg.HTTPPort, "HTTP server port (overrides HTTP_PORT env var)")
	return cmd
}

func runServe(cfg *config.AppConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}

	sysLogger, logCloser, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel(), logger.Rotation{
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	sysLogger.Info("notifier starting",
		build.LogAttrs(),
		slog.Int("grpc_port", cfg.GRPCPort),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("data_dir", cfg.DataDir),
		slog.String("state_store", cfg.StateStore),
	)

	if err := serve(ctx, cfg, sysLogger); err != nil {
		sysLogger.Error("notifier stopped with error", "error", err)
		return err
	}
	sysLogger.Info("notifier stopped")
	return nil
}

func serve(ctx context.Context, cfg *config.AppConfig, sysLogger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "notifier", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			sysLogger.Warn("flushing traces", "error", err)
		}
	}()

	m := metrics.New()

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = natstransport.Connect(natstransport.Config{
			URL:           cfg.NATSURL,
			Name:          "notifier",
			ConnTimeout:   5 * time.Second,
			MaxReconnects: -1,
		})
		if err != nil {
			return err
		}
		defer func() {
			if !nc.IsClosed() {
				_ = nc.Drain() //nolint:errcheck // best-effort shutdown
			}
		}()
	}

	// Listeners must be registered before the first event is published.
	bus := eventbus.New(2, sysLogger)
	defer bus.Close()
	bus.Subscribe(eventbus.LogListener(sysLogger))
	if nc != nil && cfg.NATSEventSubjectPrefix != "" {
		bus.Subscribe(natstransport.EventListener(nc, cfg.NATSEventSubjectPrefix, sysLogger))
	}

	db, fresh, err := storage.NewSQLiteDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()
	if fresh {
		sysLogger.Info("initialized new database", slog.String("path", cfg.DatabasePath()))
	}
	deliveries := storage.NewSQLiteDeliveryLog(db)

	store, err := openStateStore(ctx, cfg, db, nc)
	if err != nil {
		return err
	}

	host := registry.NewHost(registry.HostConfig{
		Store:        store,
		Logger:       sysLogger,
		IdleTimeout:  cfg.RegistryIdleTimeout,
		ScanInterval: cfg.RegistryScanInterval,
		Options: []registry.Option{
			registry.WithEventPublisher(bus),
			registry.WithWriteObserver(m),
		},
	})
	if err := host.Start(); err != nil {
		return err
	}
	defer func() {
		if err := host.Close(); err != nil {
			sysLogger.Warn("closing registry host", "error", err)
		}
	}()
	subscriptions := host.Registry(registry.DefaultID)

	snapshots, err := snapshotSource(cfg, subscriptions)
	if err != nil {
		return err
	}

	policy, err := notification.ParseFailurePolicy(cfg.FanoutFailurePolicy)
	if err != nil {
		return err
	}
	fanout := notification.NewFanout(notification.FanoutConfig{
		Transport: notification.NewSMTPTransport(notification.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			FromAddr:   cfg.SMTPFrom,
			Encryption: cfg.SMTPEncryption,
			Timeout:    cfg.SMTPTimeout,
		}),
		Policy:         policy,
		DeliveryLog:    deliveries,
		EventPublisher: bus,
		Observer:       m,
		Logger:         sysLogger,
	})

	svc := service.NewNotificationService(service.Config{
		Registry:  subscriptions,
		Snapshots: snapshots,
		Notifier:  fanout,
		Events:    bus,
		Logger:    sysLogger,
	})
	d := dispatch.New(service.Routes(svc), dispatch.WithLogger(sysLogger), dispatch.WithObserver(m))

	if cfg.SchedulesFile != "" {
		sched, err := startScheduler(cfg, d, bus, sysLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				sysLogger.Warn("stopping scheduler", "error", err)
			}
		}()
	}

	httpSrv := server.New(api.New(d, deliveries, sysLogger), m.Handler(), cfg.HTTPPort, sysLogger)
	grpcSrv := grpctransport.NewServer(grpctransport.NewAppCallbackServer(d, sysLogger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Run(gctx) })
	g.Go(func() error {
		lc := &net.ListenConfig{}
		ln, err := lc.Listen(gctx, "tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("listening on :%d: %w", cfg.GRPCPort, err)
		}
		go func() {
			<-gctx.Done()
			sysLogger.Info("shutting down grpc server")
			grpcSrv.GracefulStop()
		}()
		sysLogger.Info("grpc server listening", slog.String("addr", ln.Addr().String()))
		return grpcSrv.Serve(ln)
	})
	if nc != nil {
		responder := natstransport.NewResponder(d, nc, cfg.NATSSubjectPrefix, sysLogger)
		g.Go(func() error { return responder.Serve(gctx, nc) })
	}

	sysLogger.Info("server ready", slog.Any("methods", d.Methods()))
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStateStore(ctx context.Context, cfg *config.AppConfig, db *sql.DB, nc *nats.Conn) (storage.StateStore, error) {
	switch cfg.StateStore {
	case config.StateStoreMemory:
		return storage.NewMemoryStateStore(), nil
	case config.StateStoreNATS:
		if nc == nil {
			return nil, fmt.Errorf("state store %q requires NATS_URL", cfg.StateStore)
		}
		return storage.OpenNATSKVStore(ctx, nc, cfg.StateStoreName)
	default:
		return storage.NewSQLiteStateStore(db, cfg.StateStoreName), nil
	}
}

func snapshotSource(cfg *config.AppConfig, reg service.SnapshotSource) (service.SnapshotSource, error) {
	if cfg.NotifySnapshotSource != config.SnapshotSourceFile {
		return reg, nil
	}
	entries, err := config.LoadSubscribers(cfg.SubscribersFile)
	if err != nil {
		return nil, err
	}
	subs := make(service.StaticSubscribers, 0, len(entries))
	for _, e := range entries {
		subs = append(subs, registry.Subscription{Address: e.Address, DisplayName: e.Name})
	}
	return subs, nil
}

func startScheduler(cfg *config.AppConfig, d scheduler.Dispatcher, bus eventbus.EventBus, sysLogger *slog.Logger) (*scheduler.Scheduler, error) {
	entries, err := config.LoadSchedules(cfg.SchedulesFile)
	if err != nil {
		return nil, err
	}
	jobs := make([]scheduler.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, scheduler.Job{
			Name:    e.Name,
			Cron:    e.Cron,
			Every:   e.Every,
			Payload: contracts.Payload{Subject: e.Subject, Body: e.Body},
		})
	}

	sched, err := scheduler.New(scheduler.Config{
		Dispatcher:     d,
		Logger:         sysLogger,
		MaxConcurrency: cfg.SchedulerMaxConcurrent,
		EventPublisher: bus,
	})
	if err != nil {
		return nil, err
	}
	if err := sched.Start(jobs); err != nil {
		return nil, err
	}
	return sched, nil
}

// printBanner writes the startup banner to stdout. It is the only output
// visible in the terminal during normal operation; all structured logs go
// to the log file instead.
func printBanner(cfg *config.AppConfig, logFile string) {
	fmt.Printf("%s running.\n", build.String())
	fmt.Printf("  gRPC  :%d  %s\n", cfg.GRPCPort, grpctransport.ServiceName)
	fmt.Printf("  HTTP  http://localhost:%d%s/invoke/{method}\n", cfg.HTTPPort, server.APIPrefix)
	if cfg.NATSURL != "" {
		fmt.Printf("  NATS  %s.{method}\n", cfg.NATSSubjectPrefix)
	}
	fmt.Printf("Logs: %s\n\n", logFile)
}
