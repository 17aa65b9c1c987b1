package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/shorty/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Each link is one hash under url:<code>. Creation and counter updates run as
// Lua scripts so the existence check and the write happen in one step.
var (
	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'original_url', ARGV[2], 'created_at', ARGV[3], 'click_count', ARGV[4])
return 1
`)

	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('HSET', KEYS[1], 'last_accessed', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'click_count', 1)
`)

	setClicksScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('HSET', KEYS[1], 'click_count', ARGV[1], 'last_accessed', ARGV[2])
return 1
`)
)

// RedisStore keeps the remote namespace in Redis hashes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis backed store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ RemoteStore = (*RedisStore)(nil)

func linkKey(code string) string {
	return fmt.Sprintf("url:%s", code)
}

func (r *RedisStore) startSpan(ctx context.Context, name, code string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("short_code", code),
		),
	)
}

// Namespace implements Store.
func (r *RedisStore) Namespace() model.Namespace {
	return model.NamespaceRemote
}

// Exists reports whether the short code is already taken
func (r *RedisStore) Exists(ctx context.Context, code string) (bool, error) {
	ctx, span := r.startSpan(ctx, "redis.exists", code)
	defer span.End()

	n, err := r.client.Exists(ctx, linkKey(code)).Result()
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return n > 0, nil
}

// Insert creates the hash for link unless the code is already present
func (r *RedisStore) Insert(ctx context.Context, link *model.ShortLink) error {
	ctx, span := r.startSpan(ctx, "redis.insert", link.Code)
	defer span.End()

	created, err := createScript.Run(ctx, r.client, []string{linkKey(link.Code)},
		link.ID.String(),
		link.TargetURL,
		link.CreatedAt.UTC().Format(time.RFC3339Nano),
		link.ClickCount,
	).Int64()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if created == 0 {
		return ErrCodeConflict
	}
	return nil
}

// GetByCode retrieves a URL by its short code
func (r *RedisStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	ctx, span := r.startSpan(ctx, "redis.get", code)
	defer span.End()

	fields, err := r.client.HGetAll(ctx, linkKey(code)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	link, err := decodeLinkHash(code, fields)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return link, nil
}

func decodeLinkHash(code string, fields map[string]string) (*model.ShortLink, error) {
	link := &model.ShortLink{
		Code:      code,
		TargetURL: fields["original_url"],
	}

	var err error
	if link.ID, err = uuid.Parse(fields["id"]); err != nil {
		return nil, fmt.Errorf("decode id of %s: %w", code, err)
	}
	if link.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", code, err)
	}
	if link.ClickCount, err = strconv.ParseInt(fields["click_count"], 10, 64); err != nil {
		return nil, fmt.Errorf("decode click_count of %s: %w", code, err)
	}
	if raw, ok := fields["last_accessed"]; ok && raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("decode last_accessed of %s: %w", code, err)
		}
		link.LastAccessedAt = &at
	}
	return link, nil
}

// IncrementClicks bumps the counter with HINCRBY
func (r *RedisStore) IncrementClicks(ctx context.Context, code string, at time.Time) error {
	ctx, span := r.startSpan(ctx, "redis.increment", code)
	defer span.End()

	n, err := incrementScript.Run(ctx, r.client, []string{linkKey(code)},
		at.UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n < 0 {
		return ErrNotFound
	}
	return nil
}

// GetClickCount reads the current click counter
func (r *RedisStore) GetClickCount(ctx context.Context, code string) (int64, error) {
	ctx, span := r.startSpan(ctx, "redis.get", code)
	defer span.End()

	count, err := r.client.HGet(ctx, linkKey(code), "click_count").Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

// SetClicks overwrites the click counter and last access time
func (r *RedisStore) SetClicks(ctx context.Context, code string, count int64, at time.Time) error {
	ctx, span := r.startSpan(ctx, "redis.update", code)
	defer span.End()

	n, err := setClicksScript.Run(ctx, r.client, []string{linkKey(code)},
		count,
		at.UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n < 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks Redis connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
