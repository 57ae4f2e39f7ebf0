// Package app wires configuration into a store backend and the services built
// on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"taskscope/internal/config"
	"taskscope/internal/db"
	"taskscope/internal/inspect"
	"taskscope/internal/migrate"
	"taskscope/internal/query"
	"taskscope/internal/recovery"
	"taskscope/internal/store"
	"taskscope/internal/store/rest"
	"taskscope/internal/store/sqlstore"
)

// Env holds the services for one process.
type Env struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     store.Client
	Query     *query.Layer
	Assembler *inspect.Assembler

	conn *sql.DB
}

// Open connects the configured backend. For sqlite the snapshot database is
// created and migrated on first use.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env := &Env{Config: cfg, Logger: logger}
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		conn, s, err := OpenSnapshot(ctx, cfg.Snapshot.Workspace)
		if err != nil {
			return nil, err
		}
		env.conn = conn
		env.Store = s
		logger.Debug("using snapshot store", "path", db.Path(cfg.Snapshot.Workspace))
	default:
		c := rest.New(cfg.Store.URL, cfg.Store.Key)
		c.Timeout = cfg.Store.Timeout
		c.HTTPClient = &http.Client{Timeout: cfg.Store.Timeout}
		c.Schema = cfg.Store.Schema
		env.Store = c
		logger.Debug("using rest store", "url", cfg.Store.URL)
	}
	env.Query = NewQuery(env.Store, cfg, logger)
	env.Assembler = inspect.New(env.Query, logger)
	return env, nil
}

// NewQuery builds a query layer with the configured scan and paging limits.
func NewQuery(c store.Client, cfg *config.Config, logger *slog.Logger) *query.Layer {
	q := query.New(c, logger)
	q.ScanLimit = cfg.Query.ScanLimit
	q.Pager.PageSize = cfg.Query.PageSize
	q.Pager.MaxPages = cfg.Query.MaxPages
	return q
}

// OpenSnapshot opens and migrates the snapshot database of a workspace.
func OpenSnapshot(ctx context.Context, workspace string) (*sql.DB, sqlstore.Store, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, sqlstore.Store{}, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, sqlstore.Store{}, fmt.Errorf("migrate snapshot: %w", err)
	}
	return conn, sqlstore.Store{DB: conn}, nil
}

// Recovery returns a recovery engine over the env's store.
func (e *Env) Recovery(dryRun bool) *recovery.Engine {
	return &recovery.Engine{Store: e.Store, Logger: e.Logger, DryRun: dryRun}
}

func (e *Env) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}
