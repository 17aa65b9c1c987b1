package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zhejian/shorty/internal/model"
	"go.opentelemetry.io/otel"
)

var (
	ErrNotFound     = errors.New("url not found")
	ErrCodeConflict = errors.New("short code already exists")
)

var tracer = otel.Tracer("github.com/zhejian/shorty/internal/repository")

// Store is the persistence backend of one namespace. Implementations must be
// safe for concurrent use.
type Store interface {
	// Namespace reports which namespace the store serves.
	Namespace() model.Namespace

	// Exists probes the uniqueness index for code.
	Exists(ctx context.Context, code string) (bool, error)

	// Insert commits a new link. It returns ErrCodeConflict when the code was
	// taken between the probe and the write.
	Insert(ctx context.Context, link *model.ShortLink) error

	// GetByCode returns ErrNotFound for unknown codes.
	GetByCode(ctx context.Context, code string) (*model.ShortLink, error)

	Ping(ctx context.Context) error
	Close() error
}

// AtomicIncrementer is implemented by stores that can bump click_count and
// last_accessed in a single server-side operation.
type AtomicIncrementer interface {
	IncrementClicks(ctx context.Context, code string, at time.Time) error
}

// ClickStore is the read-modify-write tracking capability. Updates through it
// are not atomic: concurrent visits may overwrite each other.
type ClickStore interface {
	GetClickCount(ctx context.Context, code string) (int64, error)
	SetClicks(ctx context.Context, code string, count int64, at time.Time) error
}

// RemoteStore is the full capability set of a durable backend.
type RemoteStore interface {
	Store
	AtomicIncrementer
	ClickStore
}

// readWriteStore exposes only the non-atomic tracking path of a remote store.
type readWriteStore interface {
	Store
	ClickStore
}

// WithoutAtomicIncrement hides the atomic increment capability of s so that
// click tracking falls back to read-modify-write.
func WithoutAtomicIncrement(s RemoteStore) Store {
	return struct{ readWriteStore }{s}
}
