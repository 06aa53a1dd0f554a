// Package app wires the store, merge manager and reconciler from config for
// the server, the worker and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/pkg/leaselock"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/merge"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"
	"github.com/kinfolk-ai/kinfolk/pkg/similarity"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
	"github.com/kinfolk-ai/kinfolk/pkg/store/base"
	pgxstore "github.com/kinfolk-ai/kinfolk/pkg/store/pgx"
	"github.com/kinfolk-ai/kinfolk/pkg/store/sqlite"
)

// App holds the long-lived services shared by the CLI, server and workers.
type App struct {
	Config     *config.Config
	Runner     db.Runner
	Store      *base.EntityDBStorage
	Merger     *merge.Manager
	Finder     *reconcile.Finder
	Reconciler *reconcile.Reconciler
	Locks      *leaselock.Client
}

// OpenRunner connects to the configured database and brings its schema up
// to date.
func OpenRunner(ctx context.Context, cfg *config.Config) (db.Runner, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if err := db.MigratePostgres(cfg.Database.URL); err != nil {
			return nil, err
		}
		r, err := pgxstore.Connect(ctx, cfg.Database.URL,
			pgxstore.WithMaxRetries(cfg.Database.TxMaxRetries),
			pgxstore.WithTxTimeout(cfg.Database.TxTimeout),
		)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.DriverSQLite:
		r, err := sqlite.Open(ctx, cfg.Database.SQLitePath,
			sqlite.WithMaxRetries(cfg.Database.TxMaxRetries),
			sqlite.WithTxTimeout(cfg.Database.TxTimeout),
		)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// New builds the application graph. notifier may be nil.
func New(ctx context.Context, cfg *config.Config, notifier store.Notifier) (*App, error) {
	runner, err := OpenRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := Assemble(cfg, runner, notifier)
	if err != nil {
		runner.Close()
		return nil, err
	}
	logger.Info("[App] Store ready", "driver", runner.Dialect())
	return a, nil
}

// Assemble builds the application graph on an open runner.
func Assemble(cfg *config.Config, runner db.Runner, notifier store.Notifier) (*App, error) {
	if notifier == nil {
		notifier = store.NopNotifier{}
	}

	collapse, err := merge.ParseLinkCollapse(cfg.Merge.LinkCollapse)
	if err != nil {
		return nil, err
	}
	scorer, err := similarity.NewScorer(cfg.ScorerConfig())
	if err != nil {
		return nil, err
	}

	st := base.NewEntityDBStorage(runner, base.WithNotifier(notifier))
	merger := merge.NewManager(runner, merge.WithNotifier(notifier), merge.WithLinkCollapse(collapse))
	finder, err := reconcile.NewFinder(st, scorer, cfg.FinderConfig())
	if err != nil {
		return nil, err
	}
	locks := leaselock.New(runner.DB())

	return &App{
		Config:     cfg,
		Runner:     runner,
		Store:      st,
		Merger:     merger,
		Finder:     finder,
		Reconciler: reconcile.NewReconciler(finder, merger, reconcile.WithLocker(locks, leaselock.Options{})),
		Locks:      locks,
	}, nil
}

// Close closes the database runner.
func (a *App) Close() {
	a.Runner.Close()
}
