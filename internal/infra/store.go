package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zhejian/shorty/internal/config"
	"github.com/zhejian/shorty/internal/repository"
)

// NewStore resolves the namespace once at startup. A configured remote driver
// gets the durable store behind a circuit breaker; anything else falls back
// to the local namespace. There is no failover between the two.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if !cfg.RemoteConfigured() {
		logger.Info("remote store not configured, using local namespace",
			slog.String("driver", cfg.Remote.Driver),
			slog.String("store_path", cfg.Local.StorePath))
		return NewLocalStore(ctx, cfg.Local.StorePath)
	}

	remote, err := NewRemoteStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s store: %w", cfg.Remote.Driver, err)
	}

	guarded := repository.NewBreakerStore(remote, repository.BreakerSettings{
		Name:        cfg.Remote.Driver,
		MaxFailures: cfg.Remote.BreakerMaxFailures,
		Timeout:     cfg.Remote.BreakerTimeout,
	}, logger)

	logger.Info("using remote namespace",
		slog.String("driver", cfg.Remote.Driver),
		slog.Bool("atomic_increment", cfg.Remote.AtomicIncrement))

	if !cfg.Remote.AtomicIncrement {
		return repository.WithoutAtomicIncrement(guarded), nil
	}
	return guarded, nil
}

// NewRemoteStore connects the driver selected in cfg
func NewRemoteStore(ctx context.Context, cfg *config.Config) (repository.RemoteStore, error) {
	switch cfg.Remote.Driver {
	case config.DriverPostgres:
		connString := cfg.Database.ConnectionString()
		if err := Migrate(connString); err != nil {
			return nil, err
		}
		pool, err := NewPostgresPool(ctx, connString)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresStore(pool), nil

	case config.DriverRedis:
		client, err := NewCacheClient(ctx, cfg.Cache.ConnectionString())
		if err != nil {
			return nil, err
		}
		return repository.NewRedisStore(client), nil

	case config.DriverLibSQL:
		db, err := NewSQLDB(ctx, cfg.LibSQL.URL, cfg.LibSQL.AuthToken)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewSQLStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
}

// NewLocalStore keeps the local namespace in memory, or in a sqlite file when
// path is set.
func NewLocalStore(ctx context.Context, path string) (*repository.LocalStore, error) {
	if path == "" {
		return repository.NewLocalStore(repository.NewMemoryBlobStorage()), nil
	}

	db, err := NewSQLDB(ctx, path, "")
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	blobs, err := repository.NewSQLiteBlobStorage(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewLocalStore(blobs), nil
}
