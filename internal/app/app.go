// Package app wires the registry daemon together and runs its MCP surface.
package app

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/catalog"
	"github.com/tsoernes/mcp-registry/internal/infra/clients"
	"github.com/tsoernes/mcp-registry/internal/infra/config"
	"github.com/tsoernes/mcp-registry/internal/infra/launcher"
	"github.com/tsoernes/mcp-registry/internal/infra/mounts"
	"github.com/tsoernes/mcp-registry/internal/infra/refresh"
	"github.com/tsoernes/mcp-registry/internal/infra/session"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
	"github.com/tsoernes/mcp-registry/internal/infra/toolreg"
)

// App is the composition root.
type App struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger.With(zap.String(telemetry.FieldLogSource, telemetry.LogSourceCore)),
	}
}

// ServeConfig parameterizes Serve.
type ServeConfig struct {
	ConfigPath string
}

// Serve runs the registry daemon over stdio until the context is canceled.
func (a *App) Serve(ctx context.Context, serveCfg ServeConfig) error {
	cfg, err := config.Load(serveCfg.ConfigPath)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg)

	cat := catalog.New(cfg.EntriesFile, a.logger)
	if err := cat.Load(); err != nil {
		a.logger.Warn("catalog cache load failed", zap.Error(err))
	}

	store := mounts.New(cfg.MountsFile, a.logger)
	clientMgr := clients.NewManager(a.logger)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    domain.ClientName,
		Version: domain.ClientVersion,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	registry := toolreg.NewRegistry(toolreg.NewServerAggregator(server, a.logger), a.logger)
	launch := launcher.New(launcher.Options{
		Logger: a.logger,
		Engine: cfg.Engine,
	})

	orchestrator := NewOrchestrator(OrchestratorOptions{
		Catalog:  cat,
		Store:    store,
		Clients:  clientMgr,
		Registry: registry,
		Launcher: launch,
		Timeouts: session.Timeouts{
			Init: cfg.InitTimeout,
			List: cfg.ListTimeout,
			Call: cfg.CallTimeout,
		},
		Logger:  a.logger,
		Metrics: metrics,
	})

	scheduler := refresh.NewScheduler(cat, a.sources(cfg), refresh.Options{
		WakeInterval: cfg.RefreshWakeInterval,
		MinInterval:  cfg.RefreshMinInterval,
		Logger:       a.logger,
		Metrics:      metrics,
	})

	surface := &managementSurface{
		catalog:      cat,
		orchestrator: orchestrator,
		scheduler:    scheduler,
	}
	surface.register(server)

	if err := orchestrator.Replay(runCtx); err != nil {
		a.logger.Warn("mount replay failed", zap.Error(err))
	}

	go scheduler.Run(runCtx)
	go func() {
		if err := telemetry.StartHTTPServer(runCtx, cfg.ObservabilityListenAddress, promReg, a.logger); err != nil {
			a.logger.Warn("observability server failed", zap.Error(err))
		}
	}()

	a.logger.Info("registry daemon starting (stdio transport)")
	runErr := server.Run(runCtx, &mcp.StdioTransport{})
	cancel()

	a.teardownAll(orchestrator, clientMgr)
	return runErr
}

// teardownAll reaps every child on shutdown without touching the persisted
// set, so the mounts replay on the next start.
func (a *App) teardownAll(orchestrator *Orchestrator, clientMgr *clients.Manager) {
	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownBudget)
	defer cancel()
	for _, mount := range orchestrator.ActiveMounts() {
		clientMgr.Remove(teardownCtx, mount.Handle)
	}
}

func (a *App) sources(cfg config.Config) []catalog.Source {
	var sources []catalog.Source
	if cfg.DockerCatalogPath != "" {
		sources = append(sources, catalog.NewDockerSource(cfg.DockerCatalogPath, a.logger))
	}
	if cfg.CustomEntriesPath != "" {
		sources = append(sources, catalog.NewCustomSource(cfg.CustomEntriesPath, a.logger))
	}
	return sources
}

// ValidateConfig loads and checks the configuration without running.
func (a *App) ValidateConfig(_ context.Context, path string) error {
	_, err := config.Load(path)
	return err
}
