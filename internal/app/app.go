// Package app initializes and holds the long-lived services shared by the
// fetcher and viewer binaries, acting as a small dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/config"
	"github.com/JakeFAU/youtube-etl/internal/pipeline"
	pubsubpublisher "github.com/JakeFAU/youtube-etl/internal/publisher/pubsub"
	"github.com/JakeFAU/youtube-etl/internal/storage/gcs"
	"github.com/JakeFAU/youtube-etl/internal/storage/local"
	"github.com/JakeFAU/youtube-etl/internal/storage/memory"
	"github.com/JakeFAU/youtube-etl/internal/storage/postgres"
	"github.com/JakeFAU/youtube-etl/internal/storage/sqlite"
)

// Database is a backend that serves both the fetcher's writes and the viewer's reads.
type Database interface {
	catalog.Store
	catalog.Reader
}

// Options carries client overrides, mainly for tests and emulators.
type Options struct {
	GCS    []option.ClientOption
	PubSub []option.ClientOption
}

// App holds the shared services. Archive and Publisher are nil when disabled.
type App struct {
	logger    *zap.Logger
	database  Database
	archive   catalog.BlobStore
	publisher catalog.Publisher
	closers   []func() error
}

// Database returns the configured store.
func (a *App) Database() Database {
	return a.database
}

// Archive returns the snapshot archive, or nil.
func (a *App) Archive() catalog.BlobStore {
	return a.archive
}

// Publisher returns the sync event publisher, or nil.
func (a *App) Publisher() catalog.Publisher {
	return a.publisher
}

// New builds every service selected by cfg. It fails fast; anything opened
// before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	db, err := openDatabase(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	a.database = db
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	if err := a.openArchive(ctx, cfg.Archive, opts.GCS); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openPublisher(ctx, cfg.Events, opts.PubSub); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("archive", backendName(cfg.Archive.Backend)),
		zap.String("events", backendName(cfg.Events.Backend)),
	)
	return a, nil
}

func openDatabase(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (Database, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to postgres", zap.String("dsn", cfg.Redacted()))
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN(), MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		logger.Info("opening sqlite database", zap.String("path", cfg.Path))
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory database; rows are discarded on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

func (a *App) openArchive(ctx context.Context, cfg config.ArchiveConfig, opts []option.ClientOption) error {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil
	case config.BackendLocal:
		store, err := local.New(local.Config{Dir: cfg.Dir})
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		a.archive = store
	case config.BackendGCS:
		a.logger.Info("using gcs archive", zap.String("bucket", cfg.Bucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket}, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		a.archive = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context, cfg config.EventsConfig, opts []option.ClientOption) error {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil
	case config.BackendPubSub:
		a.logger.Info("connecting to pub/sub", zap.String("project_id", cfg.ProjectID), zap.String("topic", cfg.Topic))
		pub, err := pubsubpublisher.Open(ctx, cfg.ProjectID, pipeline.EventType, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	default:
		return fmt.Errorf("unknown events backend: %s", cfg.Backend)
	}
	return nil
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func backendName(b string) string {
	if b == "" {
		return config.BackendNone
	}
	return b
}
