package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zhejian/shorty/internal/model"
)

// LocalStorageKey is the fixed key the local namespace is stored under.
const LocalStorageKey = "shorty-mappings"

// LocalStore is the ephemeral namespace: a code -> target URL mapping kept as
// one JSON blob. It records no timestamps and no clicks, so it implements
// neither tracking capability.
//
// Every operation rewrites or rereads the whole blob under mu, which
// serialises writers and makes the probe-then-insert sequence race free
// within the process.
type LocalStore struct {
	mu    sync.Mutex
	blobs BlobStorage
}

// NewLocalStore creates a local namespace backed by blobs
func NewLocalStore(blobs BlobStorage) *LocalStore {
	return &LocalStore{blobs: blobs}
}

var _ Store = (*LocalStore)(nil)

// Namespace implements Store.
func (s *LocalStore) Namespace() model.Namespace {
	return model.NamespaceLocal
}

func (s *LocalStore) load(ctx context.Context) (map[string]string, error) {
	raw, err := s.blobs.Load(ctx, LocalStorageKey)
	if errors.Is(err, ErrBlobNotFound) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", LocalStorageKey, err)
	}

	mappings := make(map[string]string)
	if err := json.Unmarshal(raw, &mappings); err != nil {
		return nil, fmt.Errorf("decode %s: %w", LocalStorageKey, err)
	}
	return mappings, nil
}

// Exists reports whether code is present in the mapping
func (s *LocalStore) Exists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := mappings[code]
	return ok, nil
}

// Insert adds code -> target URL and saves the blob
func (s *LocalStore) Insert(ctx context.Context, link *model.ShortLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := mappings[link.Code]; ok {
		return ErrCodeConflict
	}
	mappings[link.Code] = link.TargetURL

	raw, err := json.Marshal(mappings)
	if err != nil {
		return fmt.Errorf("encode %s: %w", LocalStorageKey, err)
	}
	if err := s.blobs.Save(ctx, LocalStorageKey, raw); err != nil {
		return fmt.Errorf("save %s: %w", LocalStorageKey, err)
	}
	return nil
}

// GetByCode returns a link carrying only the code and target URL
func (s *LocalStore) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	target, ok := mappings[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &model.ShortLink{Code: code, TargetURL: target}, nil
}

// Ping verifies the blob can be read and decoded
func (s *LocalStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.load(ctx)
	return err
}

// Close releases the underlying blob storage
func (s *LocalStore) Close() error {
	return s.blobs.Close()
}
