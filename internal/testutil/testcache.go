package testutil

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zhejian/shorty/internal/infra"
	"github.com/zhejian/shorty/internal/repository"
)

// TestCache holds the Redis instance backing the redis remote driver in tests
type TestCache struct {
	Client     *redis.Client
	ConnString string
	container  *redisTC.RedisContainer
}

// SetupTestCache starts a Redis container and connects a client to it
func SetupTestCache(ctx context.Context) (*TestCache, error) {
	container, err := redisTC.Run(ctx,
		"redis:8-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connString, err := container.ConnectionString(ctx)
	if err != nil {
		return nil, abort(ctx, container, err)
	}

	client, err := infra.NewCacheClient(ctx, connString)
	if err != nil {
		return nil, abort(ctx, container, err)
	}

	return &TestCache{Client: client, ConnString: connString, container: container}, nil
}

// Store returns a redis remote store over the shared client. Closing it
// closes the client for every other test in the package.
func (t *TestCache) Store() *repository.RedisStore {
	return repository.NewRedisStore(t.Client)
}

// Cleanup removes every stored link
func (t *TestCache) Cleanup(ctx context.Context) {
	if t == nil || t.Client == nil {
		return
	}
	_ = t.Client.FlushDB(ctx).Err()
}

// Teardown closes connections and terminates container
func (t *TestCache) Teardown(ctx context.Context) {
	if t.Client != nil {
		t.Client.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
