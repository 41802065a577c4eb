package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lumostime/lumos-relay/internal/config"
	"github.com/lumostime/lumos-relay/internal/logger"
	"github.com/lumostime/lumos-relay/internal/observability"
	"github.com/lumostime/lumos-relay/internal/tracing"
	"github.com/lumostime/lumos-relay/pkg/gateway"
	"github.com/lumostime/lumos-relay/pkg/insight"
	"github.com/rs/zerolog"
)

// Daemon runs the bridge server with the insight handler registered
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	gatewayServer *gateway.Server
	generator     *liveGenerator
	lifecycle     *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes a running daemon
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
	Clients   int
}

var newProvider = insight.NewProvider

// liveGenerator serves insight requests from a generator that Reload can swap.
type liveGenerator struct {
	current atomic.Pointer[insight.Generator]
}

func (g *liveGenerator) Generate(ctx context.Context, records []any) string {
	return g.current.Load().Generate(ctx, records)
}

// NewGenerator builds the insight generator described by cfg.
func NewGenerator(cfg *config.Config, log zerolog.Logger) (*insight.Generator, error) {
	apiKey, missing := insight.ResolveAPIKey(cfg.Insight.APIKey)

	provider, err := newProvider(insight.ProviderConfig{
		Name:    cfg.Insight.Provider,
		APIKey:  apiKey,
		BaseURL: cfg.Insight.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create insight provider: %w", err)
	}

	if missing {
		log.Warn().
			Str("env", insight.APIKeyEnv).
			Msg("No API key configured, insight generation will fall back")
	}

	return insight.NewGenerator(insight.Config{
		Provider:          provider,
		Model:             cfg.Insight.Model,
		CredentialMissing: missing,
		Logger:            log,
	})
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.ValidateServe(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	observability.EnsureRegistered()

	generator, err := NewGenerator(cfg, log.Component("insight"))
	if err != nil {
		return nil, err
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:              cfg.Gateway.Host,
		Port:              cfg.Gateway.Port,
		SharedSecret:      cfg.Gateway.SharedSecret,
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		MaxConcurrent:     cfg.Gateway.MaxConcurrent,
		ShutdownTimeout:   time.Duration(cfg.Gateway.ShutdownTimeout) * time.Second,
		Logger:            log.Component("gateway"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway server: %w", err)
	}

	live := &liveGenerator{}
	live.current.Store(generator)

	if err := insight.RegisterHandler(server, live); err != nil {
		return nil, fmt.Errorf("failed to register insight handler: %w", err)
	}

	d := &Daemon{
		config:        cfg,
		logger:        log,
		gatewayServer: server,
		generator:     live,
	}
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	logger.Info().Msg("Starting relay daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.gatewayServer.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.setStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	logger.Info().
		Str("addr", d.gatewayServer.Addr()).
		Str("provider", d.GetConfig().Insight.Provider).
		Str("model", d.GetConfig().Insight.Model).
		Msg("Daemon started")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	logger.Info().Msg("Stopping relay daemon")

	if err := d.gatewayServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Reload applies the insight settings and log level of cfg without restarting
// the gateway. Gateway settings only take effect on the next start.
func (d *Daemon) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	generator, err := NewGenerator(cfg, d.logger.Component("insight"))
	if err != nil {
		return err
	}

	if err := d.logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	d.generator.current.Store(generator)

	d.mu.Lock()
	if cfg.Gateway != d.config.Gateway {
		d.logger.Warn().Msg("Gateway settings changed, restart the relay to apply them")
	}
	updated := *d.config
	updated.Insight = cfg.Insight
	updated.Logging.Level = cfg.Logging.Level
	d.config = &updated
	d.mu.Unlock()

	d.logger.Info().
		Str("provider", cfg.Insight.Provider).
		Str("model", cfg.Insight.Model).
		Str("level", cfg.Logging.Level).
		Msg("Configuration reloaded")
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.gatewayServer.Addr()
		status.Clients = len(d.gatewayServer.GetConnectedClients())
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetGatewayServer returns the bridge server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}

// GetGenerator returns the insight generator currently in use
func (d *Daemon) GetGenerator() *insight.Generator {
	return d.generator.current.Load()
}
