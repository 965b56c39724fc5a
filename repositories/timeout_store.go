package repositories

import (
	"context"
	"time"
)

// timeoutStore bounds every call on the wrapped store by a fixed timeout.
// Find is bounded only while the query is issued; iteration uses the
// caller's context since some drivers tie the cursor to the query context.
type timeoutStore struct {
	DocumentStore
	timeout time.Duration
}

// WithTimeout wraps store so each operation runs under timeout. A
// non-positive timeout returns store unchanged.
func WithTimeout(store DocumentStore, timeout time.Duration) DocumentStore {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{DocumentStore: store, timeout: timeout}
}

func (s *timeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *timeoutStore) CreateCollection(ctx context.Context, name string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.CreateCollection(ctx, name)
}

func (s *timeoutStore) DropCollection(ctx context.Context, name string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.DropCollection(ctx, name)
}

func (s *timeoutStore) ListCollectionNames(ctx context.Context) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.ListCollectionNames(ctx)
}

func (s *timeoutStore) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.EnsureUniqueIndex(ctx, collection, field)
}

func (s *timeoutStore) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.InsertOne(ctx, collection, doc)
}

func (s *timeoutStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.InsertMany(ctx, collection, docs)
}

func (s *timeoutStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.FindOne(ctx, collection, filter)
}

func (s *timeoutStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.DocumentStore.Find(ctx, collection, filter, opts)
}

func (s *timeoutStore) UpdateOne(ctx context.Context, collection, id string, set Document) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.UpdateOne(ctx, collection, id, set)
}

func (s *timeoutStore) DeleteOne(ctx context.Context, collection, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.DeleteOne(ctx, collection, id)
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.DocumentStore.Ping(ctx)
}
