package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/shorty/internal/model"
	"github.com/zhejian/shorty/internal/repository"
)

var testCreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newLink(code, target string) *model.ShortLink {
	return &model.ShortLink{
		ID:        uuid.New(),
		Code:      code,
		TargetURL: target,
		CreatedAt: testCreatedAt,
	}
}

// testRemoteStore runs the behaviour every durable backend shares. reset
// empties the backend before each case.
func testRemoteStore(t *testing.T, store repository.RemoteStore, reset func()) {
	ctx := context.Background()

	t.Run("namespace is remote", func(t *testing.T) {
		assert.Equal(t, model.NamespaceRemote, store.Namespace())
	})

	t.Run("ping succeeds", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("insert then get round trip", func(t *testing.T) {
		reset()
		link := newLink("abc123", "https://example.com/Some/Path?x=1")

		require.NoError(t, store.Insert(ctx, link))

		got, err := store.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, "abc123", got.Code)
		assert.Equal(t, "https://example.com/Some/Path?x=1", got.TargetURL)
		assert.WithinDuration(t, testCreatedAt, got.CreatedAt, time.Millisecond)
		assert.Zero(t, got.ClickCount)
		assert.Nil(t, got.LastAccessedAt)
	})

	t.Run("exists reflects inserts", func(t *testing.T) {
		reset()

		exists, err := store.Exists(ctx, "abc123")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, store.Insert(ctx, newLink("abc123", "https://example.com")))

		exists, err = store.Exists(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("duplicate insert is a conflict and keeps the first target", func(t *testing.T) {
		reset()
		require.NoError(t, store.Insert(ctx, newLink("abc123", "https://first.example")))

		err := store.Insert(ctx, newLink("abc123", "https://second.example"))
		assert.ErrorIs(t, err, repository.ErrCodeConflict)

		got, err := store.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, "https://first.example", got.TargetURL)
	})

	t.Run("codes are case sensitive", func(t *testing.T) {
		reset()
		require.NoError(t, store.Insert(ctx, newLink("abcDEF", "https://upper.example")))
		require.NoError(t, store.Insert(ctx, newLink("abcdef", "https://lower.example")))

		got, err := store.GetByCode(ctx, "abcDEF")
		require.NoError(t, err)
		assert.Equal(t, "https://upper.example", got.TargetURL)
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		reset()

		_, err := store.GetByCode(ctx, "zzzzzz")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = store.GetClickCount(ctx, "zzzzzz")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		err = store.IncrementClicks(ctx, "zzzzzz", time.Now())
		assert.ErrorIs(t, err, repository.ErrNotFound)

		err = store.SetClicks(ctx, "zzzzzz", 1, time.Now())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("increment bumps count and last access", func(t *testing.T) {
		reset()
		link := newLink("abc123", "https://example.com")
		link.ClickCount = 5
		require.NoError(t, store.Insert(ctx, link))

		at := testCreatedAt.Add(time.Hour)
		require.NoError(t, store.IncrementClicks(ctx, "abc123", at))

		got, err := store.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, int64(6), got.ClickCount)
		require.NotNil(t, got.LastAccessedAt)
		assert.WithinDuration(t, at, *got.LastAccessedAt, time.Millisecond)
	})

	t.Run("set clicks overwrites count and last access", func(t *testing.T) {
		reset()
		require.NoError(t, store.Insert(ctx, newLink("abc123", "https://example.com")))

		count, err := store.GetClickCount(ctx, "abc123")
		require.NoError(t, err)
		assert.Zero(t, count)

		at := testCreatedAt.Add(2 * time.Hour)
		require.NoError(t, store.SetClicks(ctx, "abc123", count+1, at))

		count, err = store.GetClickCount(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		got, err := store.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, got.LastAccessedAt)
		assert.WithinDuration(t, at, *got.LastAccessedAt, time.Millisecond)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		reset()
		require.NoError(t, store.Insert(ctx, newLink("abc123", "https://example.com")))

		const visits = 20
		var wg sync.WaitGroup
		for i := 0; i < visits; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.IncrementClicks(ctx, "abc123", time.Now()))
			}()
		}
		wg.Wait()

		count, err := store.GetClickCount(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, int64(visits), count)
	})
}
