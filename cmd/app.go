package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"foresight/internal/api"
	"foresight/internal/appstate"
	"foresight/internal/auth"
	"foresight/internal/config"
	"foresight/internal/dashboard"
	"foresight/internal/objectstore"
	"foresight/internal/redis"
	"foresight/internal/service/account"
	"foresight/internal/service/analysis"
	"foresight/internal/service/sessions"
	"foresight/internal/storage"
	"foresight/internal/worker"
)

// app is the fully wired service.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	rdb       *redis.Client
	objects   objectstore.Store
	dashboard *dashboard.Client
	hub       *sessions.Hub
	queue     *worker.Dispatcher
	handler   *api.Handler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	secret, err := cfg.Identity.Secret()
	if err != nil {
		return nil, err
	}

	dbType := storage.Normalize(cfg.BasicConfig.Database)
	log.Info().Str("database", dbType).Msg("opening database")
	db, err := storage.Open(cfg.BasicConfig.Database, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, db: db}

	if err := storage.Migrate(db, dbType); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a.rdb, err = redis.NewRedisClient(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	if a.rdb == nil {
		log.Info().Msg("redis not configured, session updates and token revocation stay in-process")
	}

	a.objects, err = objectstore.New(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create object store: %w", err)
	}

	a.dashboard = dashboard.NewClient(cfg.Dashboard.BaseURL, cfg.Dashboard.Timeout())
	authService := auth.NewService(secret, a.rdb, cfg.Identity.TokenTTL())
	accounts := account.NewService(db, dbType)

	sessionStore := sessions.NewStore(db, dbType)
	a.hub = sessions.NewHub(sessionStore, a.rdb)
	sessionStore.OnChange(a.hub.Notify)
	states := appstate.NewRegistry(a.hub)

	a.queue = worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	analysisService := analysis.NewService(sessionStore, a.objects, a.dashboard, states, cfg.ObjectStore.SignedURLTTL())
	analysisService.UseQueue(a.queue)

	a.handler = api.NewHandler(api.Deps{
		Accounts:       accounts,
		Auth:           authService,
		Analysis:       analysisService,
		Dashboard:      a.dashboard,
		Sessions:       sessionStore,
		Feed:           a.hub,
		States:         states,
		Objects:        a.objects,
		MaxUploadBytes: int64(cfg.BasicConfig.MaxUploadMB) << 20,
	})
	return a, nil
}

func (a *app) close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}
