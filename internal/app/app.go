package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/assistflow-backend/internal/data/db"
	httpapi "github.com/yungbote/assistflow-backend/internal/http"
	"github.com/yungbote/assistflow-backend/internal/observability"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *httpapi.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(component string) (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With("component", component)
	log.Info("Loaded environment", "env", cfg.Environment, "http_addr", cfg.HTTPAddr)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Component:   component,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     observability.ParseHeaders(cfg.OtelHeaders),
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})

	dbs, err := openDatabase(log, &cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbs.DB()

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(theDB, log, cfg, reposet, clientset)
	if err != nil {
		clientset.Close()
		log.Sync()
		return nil, err
	}

	handlerset, err := wireHandlers(log, theDB, reposet, serviceset)
	if err != nil {
		clientset.Close()
		log.Sync()
		return nil, err
	}
	middleware := wireMiddleware(log, cfg)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		Server:       wireServer(log, cfg, handlerset, middleware),
		otelShutdown: otelShutdown,
	}, nil
}

// openDatabase prefers Postgres. SQLite ignores row locks, so it runs a
// single worker.
func openDatabase(log *logger.Logger, cfg *Config) (*db.Service, error) {
	switch {
	case cfg.PostgresDSN != "":
		pg, err := db.NewPostgresService(log, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg, nil
	case cfg.SQLitePath != "":
		if cfg.WorkerConcurrency > 1 {
			log.Warn("SQLite in use; limiting worker concurrency to 1", "requested", cfg.WorkerConcurrency)
			cfg.WorkerConcurrency = 1
		}
		lite, err := db.NewSQLiteService(log, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("missing POSTGRES_DSN (or SQLITE_PATH for local runs)")
	}
}

// Start launches the job worker and the sweeper.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	if a.Services.Sweeper != nil {
		a.Services.Sweeper.Start(ctx)
	}
}

// Run serves HTTP until Close.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run()
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown failed", "error", err)
		}
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
