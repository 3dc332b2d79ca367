package app

import (
	"context"
	"fmt"

	"github.com/yungbote/figuregen-backend/internal/db"
	httpapi "github.com/yungbote/figuregen-backend/internal/http"
	"github.com/yungbote/figuregen-backend/internal/modules/generation"
	"github.com/yungbote/figuregen-backend/internal/observability"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *httpapi.Server

	shutdownOTel func(context.Context) error
	started      bool
}

func NewLogger(cfg Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDatabase connects and migrates.
func OpenDatabase(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.NewService(log, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	return svc, nil
}

// New wires every component. Background workers do not run until Start.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	if err := cfg.RequireAssistant(); err != nil {
		return nil, err
	}

	tracing := cfg.Tracing
	tracing.ServiceName = serviceName
	tracing.Environment = cfg.Environment
	shutdownOTel := observability.InitTracing(ctx, log, tracing)
	metrics := observability.Init(log, cfg.MetricsEnabled)

	database, err := OpenDatabase(log, cfg)
	if err != nil {
		return nil, err
	}

	reposet := wireRepos(database.DB(), log)
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	serviceset := wireServices(log, cfg, reposet, clients)
	handlerset := wireHandlers(log, serviceset, clients, database.Ping)
	server := wireServer(log, cfg, handlerset, metrics, clients.Store.Mode())

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           database,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Start launches the background worker pool.
func (a *App) Start() {
	if a == nil || a.started {
		return
	}
	a.started = true
	a.Services.Pool.Start()
}

// Run serves HTTP until Shutdown.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Listening", "address", a.Cfg.Address())
	return a.Server.Run(a.Cfg.Address())
}

// SettlingBatches returns a coordinator whose waves wait for background
// stage runs to finish before counting them.
func (a *App) SettlingBatches() *generation.BatchCoordinator {
	return generation.NewBatchCoordinator(a.Log, a.Services.Orchestrator, a.Repos.Figures, a.Cfg.batchConfig(true))
}

// Shutdown stops the HTTP server, drains queued stage runs and releases
// clients.
func (a *App) Shutdown(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown failed", "error", err)
		}
	}
	if a.Services.Pool != nil {
		if err := a.Services.Pool.Shutdown(ctx); err != nil {
			a.Log.Warn("Worker pool did not drain", "error", err)
		}
	}
	a.Clients.Close()
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.shutdownOTel != nil {
		_ = a.shutdownOTel(ctx)
	}
	a.Log.Sync()
}
