// Package memory implements repositories.DocumentStore inside the process.
// It backs tests and single-node development runs (STORE_DRIVER=memory).
package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/org-control-plane/repositories"
)

var errClosed = errors.New("memory store is closed")

type collection struct {
	docs   []repositories.Document
	unique []string
}

// Store is a goroutine-safe in-memory document store
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	closed      bool
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

var _ repositories.DocumentStore = (*Store)(nil)

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("%s: %w", name, repositories.ErrCollectionExists)
	}
	s.collections[name] = &collection{}
	return nil
}

func (s *Store) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("%s: %w", name, repositories.ErrCollectionNotFound)
	}
	delete(s.collections, name)
	return nil
}

func (s *Store) ListCollectionNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) EnsureUniqueIndex(ctx context.Context, coll, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	c := s.collectionLocked(coll)
	for _, f := range c.unique {
		if f == field {
			return nil
		}
	}

	seen := make([]interface{}, 0, len(c.docs))
	for _, doc := range c.docs {
		v, ok := doc.Lookup(field)
		if !ok {
			continue
		}
		for _, prev := range seen {
			if reflect.DeepEqual(prev, v) {
				return fmt.Errorf("cannot index %s.%s: %w", coll, field, repositories.ErrDuplicateKey)
			}
		}
		seen = append(seen, v)
	}
	c.unique = append(c.unique, field)
	return nil
}

func (s *Store) InsertOne(ctx context.Context, coll string, doc repositories.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errClosed
	}
	c := s.collectionLocked(coll)
	stored := prepare(doc)
	if err := c.checkUnique(stored, c.docs); err != nil {
		return "", err
	}
	c.docs = append(c.docs, stored)
	return stored.ID(), nil
}

func (s *Store) InsertMany(ctx context.Context, coll string, docs []repositories.Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	c := s.collectionLocked(coll)
	batch := make([]repositories.Document, 0, len(docs))
	for _, doc := range docs {
		stored := prepare(doc)
		if err := c.checkUnique(stored, c.docs, batch); err != nil {
			return err
		}
		batch = append(batch, stored)
	}
	c.docs = append(c.docs, batch...)
	return nil
}

func (s *Store) FindOne(ctx context.Context, coll string, filter repositories.Filter) (repositories.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	c, ok := s.collections[coll]
	if ok {
		for _, doc := range c.docs {
			if matches(doc, filter) {
				return doc.Clone(), nil
			}
		}
	}
	return nil, repositories.ErrDocumentNotFound
}

func (s *Store) Find(ctx context.Context, coll string, filter repositories.Filter, opts repositories.FindOptions) (repositories.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	var out []repositories.Document
	if c, ok := s.collections[coll]; ok {
		for _, doc := range c.docs {
			if matches(doc, filter) {
				out = append(out, doc.Clone())
			}
		}
	}

	if opts.SortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := out[i].Lookup(opts.SortField)
			b, _ := out[j].Lookup(opts.SortField)
			return less(a, b)
		})
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return repositories.NewSliceCursor(out), nil
}

func (s *Store) UpdateOne(ctx context.Context, coll, id string, set repositories.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	c, ok := s.collections[coll]
	if !ok {
		return repositories.ErrDocumentNotFound
	}
	for i, doc := range c.docs {
		if doc.ID() != id {
			continue
		}
		updated := doc.Clone()
		for k, v := range set {
			if k == repositories.IDField {
				continue
			}
			updated[k] = repositories.CloneValue(v)
		}
		if err := c.checkUnique(updated, c.docs[:i], c.docs[i+1:]); err != nil {
			return err
		}
		c.docs[i] = updated
		return nil
	}
	return repositories.ErrDocumentNotFound
}

func (s *Store) DeleteOne(ctx context.Context, coll, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	c, ok := s.collections[coll]
	if !ok {
		return repositories.ErrDocumentNotFound
	}
	for i, doc := range c.docs {
		if doc.ID() == id {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return nil
		}
	}
	return repositories.ErrDocumentNotFound
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.collections = make(map[string]*collection)
	return nil
}

// Count returns the number of documents in a collection
func (s *Store) Count(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[coll]; ok {
		return len(c.docs)
	}
	return 0
}

func (s *Store) collectionLocked(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{}
		s.collections[name] = c
	}
	return c
}

func prepare(doc repositories.Document) repositories.Document {
	stored := doc.WithoutID().Clone()
	stored[repositories.IDField] = uuid.NewString()
	return stored
}

// checkUnique rejects candidate when any indexed field equals that of a doc in pool
func (c *collection) checkUnique(candidate repositories.Document, pool ...[]repositories.Document) error {
	for _, field := range c.unique {
		v, ok := candidate.Lookup(field)
		if !ok {
			continue
		}
		for _, docs := range pool {
			for _, doc := range docs {
				if other, ok := doc.Lookup(field); ok && reflect.DeepEqual(other, v) {
					return fmt.Errorf("%s=%v: %w", field, v, repositories.ErrDuplicateKey)
				}
			}
		}
	}
	return nil
}

func matches(doc repositories.Document, filter repositories.Filter) bool {
	for path, want := range filter {
		got, ok := doc.Lookup(path)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// less orders missing values first, then times, numbers and strings
func less(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Before(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x < y
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
