package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrBlobNotFound is returned by BlobStorage.Load when nothing is stored
// under the key yet.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStorage persists opaque values under fixed keys.
type BlobStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

// MemoryBlobStorage keeps blobs for the lifetime of the process.
type MemoryBlobStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStorage() *MemoryBlobStorage {
	return &MemoryBlobStorage{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryBlobStorage) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBlobStorage) Close() error { return nil }

// SQLiteBlobStorage keeps blobs in a single key/value table of a sqlite file
// so the local namespace survives restarts of the same process host.
type SQLiteBlobStorage struct {
	db *sql.DB
}

// NewSQLiteBlobStorage creates the key/value table on db if needed
func NewSQLiteBlobStorage(ctx context.Context, db *sql.DB) (*SQLiteBlobStorage, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteBlobStorage{db: db}, nil
}

func (s *SQLiteBlobStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteBlobStorage) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *SQLiteBlobStorage) Close() error {
	return s.db.Close()
}
