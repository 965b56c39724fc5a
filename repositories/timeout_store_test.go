package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/repositories/memory"
)

// deadlineStore records whether calls arrived with a deadline
type deadlineStore struct {
	*memory.Store
	deadlines map[string]bool
}

func (s *deadlineStore) InsertOne(ctx context.Context, collection string, doc repositories.Document) (string, error) {
	_, s.deadlines["InsertOne"] = ctx.Deadline()
	return s.Store.InsertOne(ctx, collection, doc)
}

func (s *deadlineStore) Find(ctx context.Context, collection string, filter repositories.Filter, opts repositories.FindOptions) (repositories.Cursor, error) {
	_, s.deadlines["Find"] = ctx.Deadline()
	return s.Store.Find(ctx, collection, filter, opts)
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("bounds single calls", func(t *testing.T) {
		inner := &deadlineStore{Store: memory.NewStore(), deadlines: map[string]bool{}}
		store := repositories.WithTimeout(inner, time.Second)

		_, err := store.InsertOne(ctx, "org_acme", repositories.Document{"sku": "A-1"})
		require.NoError(t, err)
		assert.True(t, inner.deadlines["InsertOne"])
	})

	t.Run("cursor outlives the call", func(t *testing.T) {
		inner := &deadlineStore{Store: memory.NewStore(), deadlines: map[string]bool{}}
		store := repositories.WithTimeout(inner, time.Second)

		_, err := store.InsertOne(ctx, "org_acme", repositories.Document{"sku": "A-1"})
		require.NoError(t, err)

		cur, err := store.Find(ctx, "org_acme", repositories.Filter{}, repositories.FindOptions{})
		require.NoError(t, err)
		defer cur.Close(ctx)

		assert.False(t, inner.deadlines["Find"])
		assert.True(t, cur.Next(ctx))
		assert.Equal(t, "A-1", cur.Document()["sku"])
	})

	t.Run("cancelled context fails fast", func(t *testing.T) {
		store := repositories.WithTimeout(memory.NewStore(), time.Second)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Find(cancelled, "org_acme", repositories.Filter{}, repositories.FindOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero timeout is a no-op", func(t *testing.T) {
		inner := memory.NewStore()
		assert.Same(t, inner, repositories.WithTimeout(inner, 0))
	})
}
