package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/zhejian/shorty/internal/model"
)

// ErrCircuitOpen is returned without contacting the backend while the
// breaker is open.
var ErrCircuitOpen = errors.New("remote store circuit open")

// BreakerSettings configures the circuit breaker around a remote store.
type BreakerSettings struct {
	Name string
	// MaxFailures consecutive backend failures open the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// BreakerStore guards every call of a remote store with a circuit breaker.
// Not-found and conflict results are answers, not failures, and never trip it.
// Neither does a caller that cancels its own request: only deadlines and
// backend errors count against the store.
type BreakerStore struct {
	inner RemoteStore
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with a circuit breaker
func NewBreakerStore(inner RemoteStore, settings BreakerSettings, logger *slog.Logger) *BreakerStore {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrCodeConflict) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote store circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &BreakerStore{inner: inner, cb: cb}
}

var _ RemoteStore = (*BreakerStore)(nil)

func execute[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	// A caller that already gave up reaches neither the backend nor the counts
	if errors.Is(ctx.Err(), context.Canceled) {
		return zero, ctx.Err()
	}
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return zero, err
	}
	return res.(T), nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) Namespace() model.Namespace {
	return b.inner.Namespace()
}

func (b *BreakerStore) Exists(ctx context.Context, code string) (bool, error) {
	return execute(ctx, b.cb, func() (bool, error) {
		return b.inner.Exists(ctx, code)
	})
}

func (b *BreakerStore) Insert(ctx context.Context, link *model.ShortLink) error {
	_, err := execute(ctx, b.cb, func() (struct{}, error) {
		return struct{}{}, b.inner.Insert(ctx, link)
	})
	return err
}

func (b *BreakerStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	return execute(ctx, b.cb, func() (*model.ShortLink, error) {
		return b.inner.GetByCode(ctx, code)
	})
}

func (b *BreakerStore) IncrementClicks(ctx context.Context, code string, at time.Time) error {
	_, err := execute(ctx, b.cb, func() (struct{}, error) {
		return struct{}{}, b.inner.IncrementClicks(ctx, code, at)
	})
	return err
}

func (b *BreakerStore) GetClickCount(ctx context.Context, code string) (int64, error) {
	return execute(ctx, b.cb, func() (int64, error) {
		return b.inner.GetClickCount(ctx, code)
	})
}

func (b *BreakerStore) SetClicks(ctx context.Context, code string, count int64, at time.Time) error {
	_, err := execute(ctx, b.cb, func() (struct{}, error) {
		return struct{}{}, b.inner.SetClicks(ctx, code, count, at)
	})
	return err
}

// Ping bypasses the breaker so health checks see the real backend state.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}
