package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/shorty/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PostgresStore handles database operations for the remote namespace
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL backed store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ RemoteStore = (*PostgresStore)(nil)

func (r *PostgresStore) startSpan(ctx context.Context, name, operation, code string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", "urls"),
			attribute.String("short_code", code),
		),
	)
}

// Namespace implements Store.
func (r *PostgresStore) Namespace() model.Namespace {
	return model.NamespaceRemote
}

// Exists reports whether the short code is already taken
func (r *PostgresStore) Exists(ctx context.Context, code string) (bool, error) {
	ctx, span := r.startSpan(ctx, "db.exists", "SELECT", code)
	defer span.End()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return exists, nil
}

// Insert inserts a new URL record into the database
func (r *PostgresStore) Insert(ctx context.Context, link *model.ShortLink) error {
	ctx, span := r.startSpan(ctx, "db.insert", "INSERT", link.Code)
	defer span.End()

	// A concurrent writer may have claimed the code after Exists returned
	// false; the unique index rejects the second insert with 23505.
	query := `
		INSERT INTO urls (id, short_code, original_url, created_at, click_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(
		ctx,
		query,
		link.ID,
		link.Code,
		link.TargetURL,
		link.CreatedAt,
		link.ClickCount,
	).Scan(&link.CreatedAt)

	if err != nil {
		span.RecordError(err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeConflict
		}
		return err
	}

	return nil
}

// GetByCode retrieves a URL by its short code
func (r *PostgresStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	ctx, span := r.startSpan(ctx, "db.select", "SELECT", code)
	defer span.End()

	query :=
		`SELECT id, short_code, original_url, created_at, click_count, last_accessed
		FROM urls
		WHERE short_code = $1`
	var link model.ShortLink
	err := r.db.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.Code,
		&link.TargetURL,
		&link.CreatedAt,
		&link.ClickCount,
		&link.LastAccessedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return &link, nil
}

// IncrementClicks increments the click counter inside the database
func (r *PostgresStore) IncrementClicks(ctx context.Context, code string, at time.Time) error {
	ctx, span := r.startSpan(ctx, "db.increment", "UPDATE", code)
	defer span.End()

	query := `UPDATE urls SET click_count = click_count + 1, last_accessed = $2 WHERE short_code = $1`
	result, err := r.db.Exec(ctx, query, code, at)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetClickCount reads the current click counter
func (r *PostgresStore) GetClickCount(ctx context.Context, code string) (int64, error) {
	ctx, span := r.startSpan(ctx, "db.select", "SELECT", code)
	defer span.End()

	var count int64
	err := r.db.QueryRow(ctx, `SELECT click_count FROM urls WHERE short_code = $1`, code).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

// SetClicks overwrites the click counter and last access time
func (r *PostgresStore) SetClicks(ctx context.Context, code string, count int64, at time.Time) error {
	ctx, span := r.startSpan(ctx, "db.update", "UPDATE", code)
	defer span.End()

	query := `UPDATE urls SET click_count = $2, last_accessed = $3 WHERE short_code = $1`
	result, err := r.db.Exec(ctx, query, code, count, at)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close releases the pool
func (r *PostgresStore) Close() error {
	r.db.Close()
	return nil
}
