package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/helmcode/crew-bus/internal/api"
	"github.com/helmcode/crew-bus/internal/config"
	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/events"
	"github.com/helmcode/crew-bus/internal/logger"
	"github.com/helmcode/crew-bus/internal/models"
	natsclient "github.com/helmcode/crew-bus/internal/nats"
	"github.com/helmcode/crew-bus/internal/protocol"
	"github.com/helmcode/crew-bus/internal/scheduler"
)

func main() {
	configPath := flag.String("config", os.Getenv("CREWBUS_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "crewbusd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	slog.Info("starting crew-bus")

	// Database.
	db, err := models.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	// Engine.
	bus := events.New(log)
	defer bus.Close()

	svc := crew.New(db,
		crew.WithEvents(bus),
		crew.WithLogger(log),
		crew.WithSessionDefaults(cfg.Sessions.DefaultChannel, cfg.Sessions.DefaultTimeoutMinutes),
		crew.WithMailboxLimit(cfg.Mailbox.RateLimit, cfg.Mailbox.Window),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS.
	var (
		nc  *natsclient.Client
		pub *natsclient.Publisher
	)
	if cfg.NATS.Enabled {
		nc, pub, err = startNATS(ctx, cfg.NATS, svc, bus, log)
		if err != nil {
			return err
		}
		defer nc.Close()
	}

	// Periodic jobs.
	sched := scheduler.New(log)
	sched.RegisterAction(scheduler.ActionSessionSweep, scheduler.SweepSessions(svc, log))
	sched.RegisterAction(scheduler.ActionDeliverySync, scheduler.DeliverQueued(svc, log))
	if err := sched.AddTask(scheduler.Task{
		Name: "cleanup_expired_sessions", Schedule: cfg.Sessions.SweepSchedule, Action: scheduler.ActionSessionSweep,
	}); err != nil {
		return err
	}
	if cfg.Delivery.Schedule != "" {
		if err := sched.AddTask(scheduler.Task{
			Name: "deliver_pending", Schedule: cfg.Delivery.Schedule, Action: scheduler.ActionDeliverySync,
		}); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	// HTTP server.
	srv := api.NewServer(svc, bus, cfg.Server, log)
	if nc != nil {
		srv.AddHealthCheck("nats", func() error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
		srv.AddHealthCheck("nats_events", pub.Healthy)
	}

	// Start server in background.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Server.ListenAddr)
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "error", err)
		}
	}

	slog.Info("shutting down crew-bus")
	if err := srv.Shutdown(); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// startNATS connects, ensures the event stream, forwards bus events and
// serves the send/private request subjects.
func startNATS(ctx context.Context, cfg config.NATSConfig, svc *crew.Service, bus *events.Bus, log *slog.Logger) (*natsclient.Client, *natsclient.Publisher, error) {
	ncfg := natsclient.DefaultConfig(cfg.URL, "crewbusd")
	ncfg.Token = cfg.Token
	ncfg.JetStreamEnabled = cfg.Stream != ""

	nc, err := natsclient.Connect(ncfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Stream != "" {
		subject, err := protocol.EventWildcard(cfg.SubjectPrefix)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		if err := nc.EnsureStream(ctx, cfg.Stream, subject, cfg.StreamMaxAge); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("ensuring event stream: %w", err)
		}
	}

	pub := natsclient.NewPublisher(nc, natsclient.PublisherConfig{Prefix: cfg.SubjectPrefix}, log)
	pub.Attach(bus)

	bridge := natsclient.NewBridge(natsclient.BridgeConfig{Prefix: cfg.SubjectPrefix}, nc, svc, log)
	if err := bridge.Start(); err != nil {
		nc.Close()
		return nil, nil, err
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("flushing nats subscriptions: %w", err)
	}
	return nc, pub, nil
}
