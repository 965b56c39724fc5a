// Package arango implements repositories.DocumentStore on ArangoDB.
package arango

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/arangodb/shared"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"github.com/upb/org-control-plane/config"
	"github.com/upb/org-control-plane/repositories"
	"go.uber.org/zap"
)

const keyField = "_key"

// Store is a DocumentStore over one ArangoDB database
type Store struct {
	client arangodb.Client
	db     arangodb.Database
	logger *zap.Logger
}

var _ repositories.DocumentStore = (*Store)(nil)

func connectionConfig(endpoint connection.Endpoint, cfg config.ArangoConfig) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(cfg.User, cfg.Password),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewStore connects with backoff retry and opens (or creates) the configured database
func NewStore(ctx context.Context, cfg config.ArangoConfig, maxElapsed time.Duration, logger *zap.Logger) (*Store, error) {
	var client arangodb.Client

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	err := backoff.RetryNotify(func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
		client = arangodb.NewClient(connection.NewHttpConnection(connectionConfig(endpoint, cfg)))

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}
		logger.Info("arango connection established",
			zap.String("url", cfg.URL),
			zap.String("version", string(versionInfo.Version)))
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("arango not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to arango: %w", err)
	}

	exists, err := client.DatabaseExists(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to look up database %s: %w", cfg.Database, err)
	}

	var db arangodb.Database
	if exists {
		db, err = client.GetDatabase(ctx, cfg.Database, &arangodb.GetDatabaseOptions{})
	} else {
		db, err = client.CreateDatabase(ctx, cfg.Database, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database, err)
	}

	return &Store{client: client, db: db, logger: logger}, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if _, err := s.db.CreateCollectionV2(ctx, name, nil); err != nil {
		if shared.IsConflict(err) {
			return fmt.Errorf("%s: %w", name, repositories.ErrCollectionExists)
		}
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) DropCollection(ctx context.Context, name string) error {
	col, err := s.db.GetCollection(ctx, name, &arangodb.GetCollectionOptions{})
	if err != nil {
		if shared.IsNotFound(err) {
			return fmt.Errorf("%s: %w", name, repositories.ErrCollectionNotFound)
		}
		return fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	if err := col.Remove(ctx); err != nil {
		if shared.IsNotFound(err) {
			return fmt.Errorf("%s: %w", name, repositories.ErrCollectionNotFound)
		}
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) ListCollectionNames(ctx context.Context) ([]string, error) {
	cols, err := s.db.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		if strings.HasPrefix(col.Name(), "_") {
			continue
		}
		names = append(names, col.Name())
	}
	return names, nil
}

func (s *Store) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	col, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}

	unique, sparse := true, false
	_, _, err = col.EnsurePersistentIndex(ctx, []string{field}, &arangodb.CreatePersistentIndexOptions{
		Unique: &unique,
		Sparse: &sparse,
		Name:   "uniq_" + strings.ReplaceAll(field, ".", "_"),
	})
	if err != nil {
		if shared.IsConflict(err) {
			return fmt.Errorf("cannot index %s.%s: %w", collection, field, repositories.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create index on %s.%s: %w", collection, field, err)
	}
	return nil
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc repositories.Document) (string, error) {
	col, err := s.collection(ctx, collection)
	if err != nil {
		return "", err
	}
	meta, err := col.CreateDocument(ctx, toArango(doc))
	if err != nil {
		return "", classify(err, "insert into "+collection)
	}
	return meta.Key, nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []repositories.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.collection(ctx, collection); err != nil {
		return err
	}

	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = toArango(doc)
	}
	cur, err := s.db.Query(ctx, "FOR d IN @docs INSERT d INTO @@col", &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"docs": batch, "@col": collection},
	})
	if err != nil {
		return classify(err, "bulk insert into "+collection)
	}
	return cur.Close()
}

func (s *Store) FindOne(ctx context.Context, collection string, filter repositories.Filter) (repositories.Document, error) {
	cur, err := s.Find(ctx, collection, filter, repositories.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, err
		}
		return nil, repositories.ErrDocumentNotFound
	}
	return cur.Document(), nil
}

func (s *Store) Find(ctx context.Context, collection string, filter repositories.Filter, opts repositories.FindOptions) (repositories.Cursor, error) {
	query, bindVars := buildQuery(collection, filter, opts)
	cur, err := s.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		if shared.IsNotFound(err) {
			return repositories.NewSliceCursor(nil), nil
		}
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return &cursor{cur: cur}, nil
}

func (s *Store) UpdateOne(ctx context.Context, collection, id string, set repositories.Document) error {
	col, err := s.db.GetCollection(ctx, collection, &arangodb.GetCollectionOptions{})
	if err != nil {
		if shared.IsNotFound(err) {
			return repositories.ErrDocumentNotFound
		}
		return fmt.Errorf("failed to get collection %s: %w", collection, err)
	}
	if _, err := col.UpdateDocument(ctx, id, toArango(set)); err != nil {
		if shared.IsNotFound(err) {
			return repositories.ErrDocumentNotFound
		}
		return classify(err, "update in "+collection)
	}
	return nil
}

func (s *Store) DeleteOne(ctx context.Context, collection, id string) error {
	col, err := s.db.GetCollection(ctx, collection, &arangodb.GetCollectionOptions{})
	if err != nil {
		if shared.IsNotFound(err) {
			return repositories.ErrDocumentNotFound
		}
		return fmt.Errorf("failed to get collection %s: %w", collection, err)
	}
	if _, err := col.DeleteDocument(ctx, id); err != nil {
		if shared.IsNotFound(err) {
			return repositories.ErrDocumentNotFound
		}
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Version(ctx)
	return err
}

// Close is a no-op; the HTTP connection holds no session state
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("closing arango connection")
	return nil
}

// collection returns the named collection, creating it when absent
func (s *Store) collection(ctx context.Context, name string) (arangodb.Collection, error) {
	exists, err := s.db.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection %s: %w", name, err)
	}
	if exists {
		col, err := s.db.GetCollection(ctx, name, &arangodb.GetCollectionOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to use collection %s: %w", name, err)
		}
		return col, nil
	}

	col, err := s.db.CreateCollectionV2(ctx, name, nil)
	if err != nil {
		if shared.IsConflict(err) {
			return s.db.GetCollection(ctx, name, &arangodb.GetCollectionOptions{})
		}
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return col, nil
}

type cursor struct {
	cur arangodb.Cursor
	doc repositories.Document
	err error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.HasMore() {
		return false
	}
	var raw map[string]interface{}
	if _, err := c.cur.ReadDocument(ctx, &raw); err != nil {
		c.err = err
		return false
	}
	c.doc = fromArango(raw)
	return true
}

func (c *cursor) Document() repositories.Document { return c.doc }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close() }

// buildQuery renders an AQL FOR/FILTER/SORT/LIMIT over bind parameters only
func buildQuery(collection string, filter repositories.Filter, opts repositories.FindOptions) (string, map[string]interface{}) {
	bindVars := map[string]interface{}{"@col": collection}

	var b strings.Builder
	b.WriteString("FOR d IN @@col")

	i := 0
	for path, value := range filter {
		fmt.Fprintf(&b, " FILTER d%s == @v%d", attributePath(path, fmt.Sprintf("f%d", i), bindVars), i)
		bindVars[fmt.Sprintf("v%d", i)] = repositories.EncodeTimes(value)
		i++
	}
	if opts.SortField != "" {
		fmt.Fprintf(&b, " SORT d%s ASC", attributePath(opts.SortField, "s", bindVars))
	}
	if opts.Limit > 0 {
		b.WriteString(" LIMIT @limit")
		bindVars["limit"] = opts.Limit
	}
	b.WriteString(" RETURN d")
	return b.String(), bindVars
}

func attributePath(path, prefix string, bindVars map[string]interface{}) string {
	if path == repositories.IDField {
		path = keyField
	}
	var b strings.Builder
	for j, part := range strings.Split(path, ".") {
		name := fmt.Sprintf("%s_%d", prefix, j)
		bindVars[name] = part
		fmt.Fprintf(&b, "[@%s]", name)
	}
	return b.String()
}

func toArango(doc repositories.Document) map[string]interface{} {
	out := repositories.EncodeTimes(doc.WithoutID()).(map[string]interface{})
	delete(out, keyField)
	delete(out, "_rev")
	return out
}

func fromArango(raw map[string]interface{}) repositories.Document {
	doc := repositories.Document{}
	for k, v := range raw {
		switch k {
		case keyField:
			doc[repositories.IDField] = v
		case "_id", "_rev":
		default:
			doc[k] = v
		}
	}
	return doc
}

func classify(err error, op string) error {
	if shared.IsConflict(err) {
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicateKey)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
