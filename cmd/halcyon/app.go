package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/halcyon-ai/halcyon/internal/audit"
	"github.com/halcyon-ai/halcyon/internal/auth"
	"github.com/halcyon-ai/halcyon/internal/config"
	"github.com/halcyon-ai/halcyon/internal/observability"
	"github.com/halcyon-ai/halcyon/internal/orchestrator"
	"github.com/halcyon-ai/halcyon/internal/planner"
	"github.com/halcyon-ai/halcyon/internal/sessions"
	"github.com/halcyon-ai/halcyon/internal/tools"
	"github.com/halcyon-ai/halcyon/internal/tools/inventory"
)

// localUser is the identity CLI invocations run as. The static
// resolver grants it the full inventory permission set so every
// registered tool is reachable from the terminal.
const (
	localUser = "local"
	localOrg  = "local"
)

// app holds every wired component for the lifetime of one CLI command.
type app struct {
	cfg          *config.Config
	logger       *observability.Logger
	metrics      *observability.Metrics
	auditLog     *audit.Logger
	sessions     *sessions.Manager
	registry     *tools.Registry
	executor     *tools.Executor
	planner      *planner.Planner
	orchestrator *orchestrator.Orchestrator

	traceShutdown func(context.Context) error
	sweeperCancel context.CancelFunc
}

// buildApp loads configuration and wires the full component graph:
// observability, audit, the tool pipeline, sessions, the planner, and
// the orchestrator with its provider chain.
func buildApp(configPath string, debug bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput(cfg.Logging.Output),
	})
	slogger := logger.Slog()

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	tracer, traceShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
	})

	auditLog := audit.NewLogger(audit.Config{
		Enabled:        cfg.Audit.Enabled,
		BufferSize:     cfg.Audit.BufferSize,
		IncludeDetails: cfg.Audit.IncludeDetails,
	}, slogger)

	registry := tools.NewRegistry()
	handlers := tools.NewHandlerRegistry()
	store := inventory.NewStore()
	store.Seed()
	if err := inventory.RegisterAll(registry, handlers, store); err != nil {
		return nil, fmt.Errorf("register inventory tools: %w", err)
	}

	resolver := auth.NewStaticResolver(map[string][]string{
		localUser: {inventory.PermRead, inventory.PermWrite, inventory.PermAdmin},
	})

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:    registry,
		Handlers:    handlers,
		Permissions: resolver,
		Audit:       auditLog,
		Metrics:     metrics,
		Tracer:      tracer,
		Logger:      slogger,
	})

	sessionMgr := sessions.NewManager(auditLog, metrics, slogger)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	sessionMgr.StartSweeper(sweeperCtx, cfg.Sessions.SweepInterval, cfg.Sessions.TTL)

	plan := planner.New(planner.Config{
		Catalog:  registry,
		Executor: executor,
		Metrics:  metrics,
		Logger:   slogger,
	})

	chain := orchestrator.NewChain(slogger, buildProviders(cfg)...)

	orch := orchestrator.New(orchestrator.Config{
		Sessions:        sessionMgr,
		Registry:        registry,
		Executor:        executor,
		Chain:           chain,
		Events:          orchestrator.NewEmitter(),
		Audit:           auditLog,
		Metrics:         metrics,
		Tracer:          tracer,
		Logger:          slogger,
		DefaultTimeout:  cfg.Orchestrator.RequestTimeout,
		MaxHistoryTurns: cfg.Orchestrator.MaxHistoryTurns,
	})

	return &app{
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics,
		auditLog:      auditLog,
		sessions:      sessionMgr,
		registry:      registry,
		executor:      executor,
		planner:       plan,
		orchestrator:  orch,
		traceShutdown: traceShutdown,
		sweeperCancel: sweeperCancel,
	}, nil
}

// buildProviders turns provider configuration into a fallback chain.
// With no providers configured, a scripted local provider keeps the
// CLI usable without remote credentials.
func buildProviders(cfg *config.Config) []orchestrator.Provider {
	if len(cfg.Providers) == 0 {
		return []orchestrator.Provider{newScriptedProvider("local", "scripted-v1")}
	}
	providers := make([]orchestrator.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		providers = append(providers, newScriptedProvider(pc.Name, pc.Model))
	}
	return providers
}

// close tears the app down in dependency order: stop accepting
// requests, stop the sweeper, drain audit, flush traces.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.orchestrator.Close(ctx)
	a.sweeperCancel()
	a.auditLog.Close()
	if err := a.traceShutdown(ctx); err != nil {
		a.logger.Warn(ctx, "trace shutdown failed", "error", err)
	}
}

func logOutput(name string) io.Writer {
	if name == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}
