package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zhejian/shorty/internal/model"
	"github.com/zhejian/shorty/internal/repository"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockStore implements only repository.Store
type MockStore struct {
	mock.Mock
	namespace model.Namespace
}

func newMockStore(ns model.Namespace) *MockStore {
	return &MockStore{namespace: ns}
}

func (m *MockStore) Namespace() model.Namespace { return m.namespace }

func (m *MockStore) Exists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, link *model.ShortLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShortLink), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error { return nil }

var _ repository.Store = (*MockStore)(nil)

// MockGenerator returns queued codes, then repeats the last one
type MockGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (g *MockGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i]
}

func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// MockClock returns a fixed time that tests can advance
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingMetrics captures counter calls
type recordingMetrics struct {
	mu          sync.Mutex
	allocations []string
	collisions  int
	resolutions []string
	clicks      []string
}

func (m *recordingMetrics) AllocationCompleted(_ context.Context, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations = append(m.allocations, result)
}

func (m *recordingMetrics) AllocationCollision(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collisions++
}

func (m *recordingMetrics) ResolutionCompleted(_ context.Context, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions = append(m.resolutions, result)
}

func (m *recordingMetrics) ClickTracked(_ context.Context, path, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = append(m.clicks, path+":"+result)
}

func (m *recordingMetrics) Clicks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.clicks...)
}
