package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/shorty/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Timestamps are stored as RFC 3339 text; the libsql driver does not decode
// DATETIME columns into time.Time.
var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
		id TEXT PRIMARY KEY,
		short_code TEXT NOT NULL UNIQUE,
		original_url TEXT NOT NULL,
		created_at TEXT NOT NULL,
		click_count INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_short_code ON urls(short_code)`,
}

// SQLStore keeps the remote namespace in a libsql (Turso) database. It speaks
// the sqlite dialect, so it runs unchanged over a local sqlite file.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates the urls table if needed and returns the store
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	for _, stmt := range sqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create urls table: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

var _ RemoteStore = (*SQLStore)(nil)

func (r *SQLStore) startSpan(ctx context.Context, name, operation, code string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", "urls"),
			attribute.String("short_code", code),
		),
	)
}

// Namespace implements Store.
func (r *SQLStore) Namespace() model.Namespace {
	return model.NamespaceRemote
}

// Exists reports whether the short code is already taken
func (r *SQLStore) Exists(ctx context.Context, code string) (bool, error) {
	ctx, span := r.startSpan(ctx, "db.exists", "SELECT", code)
	defer span.End()

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = ?)`, code,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return exists, nil
}

// Insert inserts a new URL record. The driver error for a unique violation
// differs between sqlite and libsql, so conflicts are detected through
// ON CONFLICT DO NOTHING and the affected row count.
func (r *SQLStore) Insert(ctx context.Context, link *model.ShortLink) error {
	ctx, span := r.startSpan(ctx, "db.insert", "INSERT", link.Code)
	defer span.End()

	query := `
		INSERT INTO urls (id, short_code, original_url, created_at, click_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (short_code) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		link.ID.String(),
		link.Code,
		link.TargetURL,
		link.CreatedAt.UTC().Format(time.RFC3339Nano),
		link.ClickCount,
	)
	if err != nil {
		span.RecordError(err)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		return ErrCodeConflict
	}
	return nil
}

// GetByCode retrieves a URL by its short code
func (r *SQLStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	ctx, span := r.startSpan(ctx, "db.select", "SELECT", code)
	defer span.End()

	var (
		link         model.ShortLink
		id           string
		createdAt    string
		lastAccessed sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, short_code, original_url, created_at, click_count, last_accessed
		FROM urls WHERE short_code = ?`, code,
	).Scan(&id, &link.Code, &link.TargetURL, &createdAt, &link.ClickCount, &lastAccessed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}

	if link.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("decode id of %s: %w", code, err)
	}
	if link.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", code, err)
	}
	if lastAccessed.Valid {
		at, err := time.Parse(time.RFC3339Nano, lastAccessed.String)
		if err != nil {
			return nil, fmt.Errorf("decode last_accessed of %s: %w", code, err)
		}
		link.LastAccessedAt = &at
	}
	return &link, nil
}

// IncrementClicks increments the click counter inside the database
func (r *SQLStore) IncrementClicks(ctx context.Context, code string, at time.Time) error {
	ctx, span := r.startSpan(ctx, "db.increment", "UPDATE", code)
	defer span.End()

	return r.execUpdate(ctx, span,
		`UPDATE urls SET click_count = click_count + 1, last_accessed = ? WHERE short_code = ?`,
		at.UTC().Format(time.RFC3339Nano), code,
	)
}

// GetClickCount reads the current click counter
func (r *SQLStore) GetClickCount(ctx context.Context, code string) (int64, error) {
	ctx, span := r.startSpan(ctx, "db.select", "SELECT", code)
	defer span.End()

	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT click_count FROM urls WHERE short_code = ?`, code).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

// SetClicks overwrites the click counter and last access time
func (r *SQLStore) SetClicks(ctx context.Context, code string, count int64, at time.Time) error {
	ctx, span := r.startSpan(ctx, "db.update", "UPDATE", code)
	defer span.End()

	return r.execUpdate(ctx, span,
		`UPDATE urls SET click_count = ?, last_accessed = ? WHERE short_code = ?`,
		count, at.UTC().Format(time.RFC3339Nano), code,
	)
}

func (r *SQLStore) execUpdate(ctx context.Context, span trace.Span, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity
func (r *SQLStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database handle
func (r *SQLStore) Close() error {
	return r.db.Close()
}
