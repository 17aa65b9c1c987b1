package testutil

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zhejian/shorty/internal/infra"
	"github.com/zhejian/shorty/internal/repository"
)

// TestDB holds test database resources
type TestDB struct {
	Pool       *pgxpool.Pool
	ConnString string
	container  *postgres.PostgresContainer
}

// SetupTestDB starts a PostgreSQL container and applies the embedded migrations
func SetupTestDB(ctx context.Context) (*TestDB, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shorty_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, abort(ctx, container, err)
	}

	if err := infra.Migrate(connString); err != nil {
		return nil, abort(ctx, container, err)
	}

	pool, err := infra.NewPostgresPool(ctx, connString)
	if err != nil {
		return nil, abort(ctx, container, err)
	}

	return &TestDB{Pool: pool, ConnString: connString, container: container}, nil
}

// Store returns a postgres remote store over the shared pool. Closing it
// closes the pool for every other test in the package.
func (t *TestDB) Store() *repository.PostgresStore {
	return repository.NewPostgresStore(t.Pool)
}

// Cleanup empties the urls table
func (t *TestDB) Cleanup(ctx context.Context) {
	if t == nil || t.Pool == nil {
		return
	}
	_, _ = t.Pool.Exec(ctx, "TRUNCATE TABLE urls")
}

// Teardown closes connections and terminates container
func (t *TestDB) Teardown(ctx context.Context) {
	if t.Pool != nil {
		t.Pool.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
