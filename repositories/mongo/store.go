// Package mongo implements repositories.DocumentStore on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/upb/org-control-plane/config"
	"github.com/upb/org-control-plane/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// codeNamespaceExists is returned by the create command for an existing collection
const codeNamespaceExists = 48

// Store is a DocumentStore over one MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ repositories.DocumentStore = (*Store)(nil)

// NewStore connects to MongoDB, retrying the initial ping with exponential backoff
func NewStore(ctx context.Context, cfg config.MongoConfig, maxElapsed time.Duration, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	err = backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("mongo not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("mongo connection established", zap.String("connection", cfg.LogString()))

	return NewStoreFromClient(client, cfg.Database, logger), nil
}

// NewStoreFromClient wraps an already connected client
func NewStoreFromClient(client *mongo.Client, database string, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	err := s.db.CreateCollection(ctx, name)
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.HasErrorCode(codeNamespaceExists) {
		return fmt.Errorf("%s: %w", name, repositories.ErrCollectionExists)
	}
	return fmt.Errorf("failed to create collection %s: %w", name, err)
}

func (s *Store) DropCollection(ctx context.Context, name string) error {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return fmt.Errorf("failed to look up collection %s: %w", name, err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%s: %w", name, repositories.ErrCollectionNotFound)
	}
	if err := s.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) ListCollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

func (s *Store) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_" + field),
	}
	if _, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("cannot index %s.%s: %w", collection, field, repositories.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create index on %s.%s: %w", collection, field, err)
	}
	return nil
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc repositories.Document) (string, error) {
	res, err := s.db.Collection(collection).InsertOne(ctx, toBSON(doc.WithoutID()))
	if err != nil {
		return "", classify(err, "insert into "+collection)
	}
	return idString(res.InsertedID), nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []repositories.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = toBSON(doc.WithoutID())
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, batch); err != nil {
		return classify(err, "bulk insert into "+collection)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter repositories.Filter) (repositories.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, toFilter(filter)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find in %s: %w", collection, err)
	}
	return fromBSON(raw), nil
}

func (s *Store) Find(ctx context.Context, collection string, filter repositories.Filter, opts repositories.FindOptions) (repositories.Cursor, error) {
	findOpts := options.Find()
	if opts.SortField != "" {
		findOpts.SetSort(bson.D{{Key: opts.SortField, Value: 1}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, toFilter(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return &cursor{cur: cur}, nil
}

func (s *Store) UpdateOne(ctx context.Context, collection, id string, set repositories.Document) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{repositories.IDField: objectID(id)},
		bson.M{"$set": toBSON(set.WithoutID())})
	if err != nil {
		return classify(err, "update in "+collection)
	}
	if res.MatchedCount == 0 {
		return repositories.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) DeleteOne(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{repositories.IDField: objectID(id)})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	if res.DeletedCount == 0 {
		return repositories.ErrDocumentNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("closing mongo connection")
	return s.client.Disconnect(ctx)
}

type cursor struct {
	cur *mongo.Cursor
	doc repositories.Document
	err error
}

func (c *cursor) Next(ctx context.Context) bool {
	if !c.cur.Next(ctx) {
		return false
	}
	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		c.err = err
		return false
	}
	c.doc = fromBSON(raw)
	return true
}

func (c *cursor) Document() repositories.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

func classify(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicateKey)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// objectID converts hex ids minted by this store; foreign ids pass through as strings
func objectID(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

func toFilter(filter repositories.Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if k == repositories.IDField {
			if s, ok := v.(string); ok {
				v = objectID(s)
			}
		}
		out[k] = v
	}
	return out
}

func toBSON(doc repositories.Document) bson.M {
	out := bson.M{}
	for k, v := range doc {
		out[k] = toBSONValue(v)
	}
	return out
}

func toBSONValue(v interface{}) interface{} {
	if m, ok := repositories.AsMap(v); ok {
		return toBSON(repositories.Document(m))
	}
	if arr, ok := v.([]interface{}); ok {
		out := make(bson.A, len(arr))
		for i, e := range arr {
			out[i] = toBSONValue(e)
		}
		return out
	}
	return v
}

// fromBSON exposes the top-level _id as a string and turns nested documents
// into plain maps and slices. Scalar driver types such as ObjectID, int32 and
// Decimal128 are kept so tenant documents copied through the store come back
// out with the BSON types they went in with.
func fromBSON(raw bson.M) repositories.Document {
	out := repositories.Document{}
	for k, v := range raw {
		if k == repositories.IDField {
			out[k] = idString(v)
			continue
		}
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = fromBSONValue(e)
		}
		return m
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = fromBSONValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
