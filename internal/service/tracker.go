package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhejian/shorty/internal/repository"
)

// DefaultTrackTimeout bounds a detached tracking call.
const DefaultTrackTimeout = 5 * time.Second

const (
	trackPathAtomic    = "atomic"
	trackPathReadWrite = "read_write"
	trackPathNone      = "none"
)

// ClickTrackerInterface is the tracking contract used by the redirect handler.
type ClickTrackerInterface interface {
	TrackAsync(ctx context.Context, code string)
}

// ClickTracker records visits on a best-effort basis. Failures are logged
// and counted, never returned.
type ClickTracker struct {
	store   repository.Store
	clock   Clock
	timeout time.Duration
	logger  *slog.Logger
	metrics Metrics
	wg      sync.WaitGroup
}

// NewClickTracker creates a tracker for store. A nil metrics disables counting.
func NewClickTracker(store repository.Store, clock Clock, timeout time.Duration, logger *slog.Logger, metrics Metrics) *ClickTracker {
	if timeout <= 0 {
		timeout = DefaultTrackTimeout
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ClickTracker{
		store:   store,
		clock:   clock,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Track increments the click count of code and stamps its last access time.
// It returns once the backend answered; it never fails.
func (t *ClickTracker) Track(ctx context.Context, code string) {
	path := trackPathNone
	defer func() {
		if r := recover(); r != nil {
			t.fail(ctx, code, path, fmt.Errorf("panic: %v", r))
		}
	}()

	var err error
	path, err = t.record(ctx, code)
	if err != nil {
		t.fail(ctx, code, path, err)
		return
	}
	t.metrics.ClickTracked(ctx, path, "success")
}

// TrackAsync runs Track on its own goroutine. The caller's cancellation does
// not reach it; the tracker's timeout does.
func (t *ClickTracker) TrackAsync(ctx context.Context, code string) {
	ctx = context.WithoutCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		t.Track(ctx, code)
	}()
}

// Wait blocks until every TrackAsync call has finished.
func (t *ClickTracker) Wait() {
	t.wg.Wait()
}

func (t *ClickTracker) record(ctx context.Context, code string) (string, error) {
	now := t.clock.Now()

	if inc, ok := t.store.(repository.AtomicIncrementer); ok {
		return trackPathAtomic, inc.IncrementClicks(ctx, code, now)
	}

	// Non-atomic: two concurrent visits can read the same count and one
	// increment is lost.
	if cs, ok := t.store.(repository.ClickStore); ok {
		count, err := cs.GetClickCount(ctx, code)
		if err != nil {
			return trackPathReadWrite, err
		}
		return trackPathReadWrite, cs.SetClicks(ctx, code, count+1, now)
	}

	// The local namespace keeps no statistics.
	return trackPathNone, nil
}

func (t *ClickTracker) fail(ctx context.Context, code, path string, err error) {
	t.metrics.ClickTracked(ctx, path, "failure")
	t.logger.WarnContext(ctx, "failed to track click",
		slog.String("code", code),
		slog.String("path", path),
		slog.String("error", err.Error()))
}

var _ ClickTrackerInterface = (*ClickTracker)(nil)
