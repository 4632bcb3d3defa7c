package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/config"
	"github.com/archoctopus/archoctopus-go/internal/db"
	"github.com/archoctopus/archoctopus-go/internal/jobs"
	"github.com/archoctopus/archoctopus-go/internal/registry"
	"github.com/archoctopus/archoctopus-go/internal/sqlstore"
	"github.com/archoctopus/archoctopus-go/internal/store"
	"github.com/archoctopus/archoctopus-go/internal/tasks"
	"github.com/archoctopus/archoctopus-go/internal/util"
	"github.com/archoctopus/archoctopus-go/internal/websocket"
	"github.com/archoctopus/archoctopus-go/migrations"
)

// Version is reported by the API and the CLI.
var Version = "dev"

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	Version string

	config   *config.Config
	logger   *zap.Logger
	db       *sql.DB
	sql      *sqlstore.Store
	store    *store.Store
	registry *registry.Registry
	wsHub    *websocket.Hub
	tasks    *tasks.Manager
	jobs     *jobs.JobManager
}

// New checks the download folder, opens the database named in cfg,
// applies migrations and assembles the application.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := util.EnsureWritableDir(cfg.Download.Dir); err != nil {
		return nil, fmt.Errorf("download folder: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app, err := Assemble(cfg, database, logger)
	if err != nil {
		database.Close()
		return nil, err
	}
	logger.Info("Core application setup complete.", zap.String("database", cfg.Database.Path))
	return app, nil
}

// Assemble builds the application around an already migrated database.
func Assemble(cfg *config.Config, database *sql.DB, logger *zap.Logger) (*App, error) {
	reg, err := registry.New(cfg.Plugins.Path, cfg.Plugins.CacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin registry: %w", err)
	}

	hub := websocket.NewHub()
	hub.SetLogger(logger)
	go hub.Run()

	ss := sqlstore.New(database, logger)
	st := store.New(ss)
	manager := tasks.NewManager(st, reg, cfg, hub, logger)

	jm := jobs.NewManager(hub, logger)
	jobs.RegisterDefaults(jm, manager, reg)

	return &App{
		Version:  Version,
		config:   cfg,
		logger:   logger,
		db:       database,
		sql:      ss,
		store:    st,
		registry: reg,
		wsHub:    hub,
		tasks:    manager,
		jobs:     jm,
	}, nil
}

func (a *App) Config() *config.Config       { return a.config }
func (a *App) Logger() *zap.Logger          { return a.logger }
func (a *App) DB() *sql.DB                  { return a.db }
func (a *App) Store() *store.Store          { return a.store }
func (a *App) Registry() *registry.Registry { return a.registry }
func (a *App) WsHub() *websocket.Hub        { return a.wsHub }
func (a *App) Tasks() *tasks.Manager        { return a.tasks }
func (a *App) JobManager() *jobs.JobManager { return a.jobs }

// Close stops running tasks and jobs, then drains pending writes and
// closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.tasks.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop tasks: %w", err))
	}
	a.jobs.Shutdown()
	// The store owns the connection and closes it after the last write.
	a.sql.Close()
	return errors.Join(errs...)
}
