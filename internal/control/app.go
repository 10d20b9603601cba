package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vietddude/pkgwatch/internal/core/config"
	"github.com/vietddude/pkgwatch/internal/infra/httpfetch"
	redisclient "github.com/vietddude/pkgwatch/internal/infra/redis"
	"github.com/vietddude/pkgwatch/internal/monitoring/events"
	"github.com/vietddude/pkgwatch/internal/monitoring/health"
	"github.com/vietddude/pkgwatch/internal/monitoring/metrics"
	"github.com/vietddude/pkgwatch/internal/monitoring/probe"
)

// App is the main application struct that manages the monitor lifecycle.
type App struct {
	cfg          *config.AppConfig
	monitor      *probe.Monitor
	scheduler    *probe.Scheduler
	healthServer *health.Server
	redisClient  *redisclient.Client
	log          *slog.Logger
	cancel       context.CancelFunc
}

// Options overrides process wide collaborators, mainly for tests.
type Options struct {
	Registry *prometheus.Registry // defaults to a new registry
	Logger   *slog.Logger
}

// NewApp builds every component from cfg. Invalid targets are fatal here,
// before anything is scheduled.
func NewApp(cfg *config.AppConfig, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	targets, err := cfg.BuildTargets()
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	sink := metrics.NewSink(reg)
	for _, t := range targets {
		sink.Init(t.Name)
	}

	publishers := []events.Publisher{events.LogPublisher{Log: log}}

	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, transitions will only be logged", "error", err)
		} else {
			publishers = append(publishers, redisClient)
			log.Info("Publishing transitions to Redis", "channel", redisClient.Channel())
		}
	}

	fetcher := httpfetch.New(httpfetch.Config{
		Timeout:      cfg.Monitoring.Timeout,
		UserAgent:    cfg.Monitoring.UserAgent,
		MaxBodyBytes: cfg.Monitoring.MaxBodyBytes,
	})

	monitor, err := probe.NewMonitor(targets, fetcher, sink, probe.Options{
		WindowSize: cfg.Monitoring.WindowSize,
		Threshold:  cfg.Monitoring.SLAThreshold,
		Publisher:  events.Multi{Publishers: publishers, Log: log},
		Logger:     log,
	})
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("failed to init monitor: %w", err)
	}

	for _, t := range targets {
		log.Info("Monitoring target", "target", t.Name, "url", t.URL)
	}

	return &App{
		cfg:          cfg,
		monitor:      monitor,
		scheduler:    probe.NewScheduler(monitor, cfg.Monitoring.Interval, cfg.Monitoring.JitterEnabled(), log),
		healthServer: health.NewServer(monitor, reg, cfg.Server.Port),
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Monitor exposes the monitor for one-shot commands.
func (a *App) Monitor() *probe.Monitor {
	return a.monitor
}

// Start starts the health server and the scheduler.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	a.log.Info("Serving metrics", "port", a.cfg.Server.Port)

	ctx, a.cancel = context.WithCancel(ctx)
	a.scheduler.Start(ctx)
	return nil
}

// Stop cancels in-flight cycles, waits for the scheduler and shuts the server down.
// External connections are closed only once every cycle has returned.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping pkgwatch...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Close()
	case <-ctx.Done():
		// Cycles still running may publish transitions; leave Redis open
		// for them and let process exit release the connection.
		a.log.Warn("Timed out waiting for cycles to finish, leaving Redis open")
	}

	return a.healthServer.Stop(ctx)
}

// Close releases external connections. Safe to call for apps that were never started.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
		a.redisClient = nil
	}
}
