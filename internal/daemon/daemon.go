package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/agentbridge/internal/config"
	"github.com/harun/agentbridge/internal/logger"
	"github.com/harun/agentbridge/internal/observability"
	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/commandqueue"
	"github.com/harun/agentbridge/pkg/imagecatalog"
	"github.com/harun/agentbridge/pkg/server"
)

// Daemon hosts the agent server process started by `agentbridge serve`.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	catalog *imagecatalog.Catalog
	watcher *imagecatalog.Watcher
	queue   *commandqueue.CommandQueue
	runner  *agent.Runner
	server  *server.Server

	lifecycle *LifecycleManager
	serveErr  chan error

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
	auditEnabled   bool
}

var newProvider = agent.NewProvider

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	observability.EnsureRegistered()

	for _, warning := range config.NewValidator().ValidateConfig(cfg) {
		log.Warn().Err(warning).Msg("Configuration warning")
	}

	d := &Daemon{
		config:   cfg,
		logger:   log,
		serveErr: make(chan error, 1),
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("Failed to open audit log, using stderr")
		} else {
			d.auditEnabled = true
		}
	}

	if err := d.initialize(); err != nil {
		d.release()
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initialize() error {
	cfg := d.config

	provider, err := newProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	d.catalog = imagecatalog.Default()
	if cfg.Agent.ImageDir != "" {
		watcherLogger := d.logger.Component("imagecatalog")
		d.watcher, err = imagecatalog.NewWatcher(imagecatalog.WatcherConfig{
			Dir:     cfg.Agent.ImageDir,
			Catalog: d.catalog,
			OnReload: func(names []string) {
				watcherLogger.Info().Int("images", len(names)).Msg("Image catalog reloaded")
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create image watcher: %w", err)
		}
	}

	routerCfg := agent.RouterConfigFrom(cfg)
	routerCfg.Provider = provider
	routerCfg.Catalog = d.catalog
	routerCfg.Logger = d.logger.Component("router")
	router, err := agent.NewRouter(routerCfg)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	d.runner, err = agent.NewRunner(agent.Config{
		Router:   router,
		MaxTurns: cfg.Agent.MaxTurns,
		Logger:   d.logger.Component("runner"),
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	d.queue = commandqueue.New(commandqueue.Options{
		LaneConcurrency: cfg.Server.LaneConcurrency,
		DedupTTL:        cfg.Server.DedupTTL,
	})

	d.server, err = server.NewServer(server.Config{
		Options: server.Options{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			Metrics:           cfg.Metrics.Enabled,
		},
		Runner: d.runner,
		Queue:  d.queue,
		Logger: d.logger.Component("server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return nil
}

// release undoes process-wide setup done by New.
func (d *Daemon) release() {
	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
	if d.auditEnabled {
		_ = observability.CloseAuditLogger()
		d.auditEnabled = false
	}
}

// Start writes the PID file, starts the image watcher and begins serving.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().
		Str("provider", d.config.Provider.Type).
		Str("model", d.config.Provider.Model).
		Msg("Starting agentbridge daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Str("path", d.config.Agent.ImageDir).Msg("Failed to start image watcher, using default catalog")
		}
	}

	go func() {
		if err := d.server.Start(); err != nil {
			logger.Error().Err(err).Msg("Agent server exited")
			d.serveErr <- err
		}
	}()

	logger.Info().Str("addr", d.config.Server.Addr()).Msg("Agentbridge daemon started")
	return nil
}

// Stop drains in-flight runs and releases everything Start acquired.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping agentbridge daemon")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.server.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop agent server")
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop image watcher")
		}
		d.watcher = nil
	}

	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}

	if d.tracingEnabled {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancelShutdown()
		d.tracingEnabled = false
	}

	if d.auditEnabled {
		if err := observability.CloseAuditLogger(); err != nil {
			logger.Error().Err(err).Msg("Failed to close audit log")
		}
		d.auditEnabled = false
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	logger.Info().Msg("Agentbridge daemon stopped")
	return nil
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT, SIGTERM or a server failure, then stops the
// daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case err := <-d.serveErr:
		d.logger.Error().Err(err).Msg("Agent server failed")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// Runner returns the agent runner behind the server.
func (d *Daemon) Runner() *agent.Runner {
	return d.runner
}

// Catalog returns the live image catalog.
func (d *Daemon) Catalog() *imagecatalog.Catalog {
	return d.catalog
}

// Handler exposes the server routes without binding a listener.
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler()
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}
