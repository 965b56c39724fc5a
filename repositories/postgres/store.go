package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/org-control-plane/repositories"
	"go.uber.org/zap"
)

// PostgreSQL error codes the store translates
const (
	codeDuplicateTable = "42P07"
	codeUndefinedTable = "42P01"
	codeUniqueViolated = "23505"
)

// maxIdentifierBytes is NAMEDATALEN-1. Postgres truncates longer identifiers,
// which would let two collection names share one table.
const maxIdentifierBytes = 63

// Store keeps each collection in its own table of (id, doc JSONB) rows
type Store struct {
	db     *DB
	logger *zap.Logger
}

var _ repositories.DocumentStore = (*Store)(nil)

// NewStore creates a document store over the pool
func NewStore(db *DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func createTableSQL(name string, ifNotExists bool) string {
	clause := ""
	if ifNotExists {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf(`CREATE TABLE %s%s (
		id UUID PRIMARY KEY,
		doc JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, clause, pq.QuoteIdentifier(name))
}

func checkName(name string) error {
	if len(name) > maxIdentifierBytes {
		return fmt.Errorf("%s is %d bytes, limit is %d: %w", name, len(name), maxIdentifierBytes, repositories.ErrInvalidCollectionName)
	}
	return nil
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL(name, false)); err != nil {
		if hasCode(err, codeDuplicateTable) {
			return fmt.Errorf("%s: %w", name, repositories.ErrCollectionExists)
		}
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) DropCollection(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE "+pq.QuoteIdentifier(name)); err != nil {
		if hasCode(err, codeUndefinedTable) {
			return fmt.Errorf("%s: %w", name, repositories.ErrCollectionNotFound)
		}
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) ListCollectionNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	indexName := fmt.Sprintf("uniq_%s_%s", collection, strings.ReplaceAll(field, ".", "_"))
	if err := checkName(indexName); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, createTableSQL(collection, true)); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	index := pq.QuoteIdentifier(indexName)
	stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s ((doc #>> %s))",
		index, pq.QuoteIdentifier(collection), pq.QuoteLiteral(pathLiteral(field)))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if hasCode(err, codeUniqueViolated) {
			return fmt.Errorf("cannot index %s.%s: %w", collection, field, repositories.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create index on %s.%s: %w", collection, field, err)
	}
	return nil
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc repositories.Document) (string, error) {
	if err := checkName(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	body, err := encode(doc)
	if err != nil {
		return "", err
	}

	stmt := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", pq.QuoteIdentifier(collection))
	if err := s.execCreating(ctx, collection, stmt, id, body); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []repositories.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := checkName(collection); err != nil {
		return err
	}

	values := make([]string, 0, len(docs))
	args := make([]interface{}, 0, 2*len(docs))
	for i, doc := range docs {
		body, err := encode(doc)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf("($%d, $%d)", 2*i+1, 2*i+2))
		args = append(args, uuid.NewString(), body)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES %s",
		pq.QuoteIdentifier(collection), strings.Join(values, ", "))
	return s.execCreating(ctx, collection, stmt, args...)
}

// execCreating runs an insert, creating the table and retrying once when it is missing
func (s *Store) execCreating(ctx context.Context, collection, stmt string, args ...interface{}) error {
	_, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil && hasCode(err, codeUndefinedTable) {
		if _, cerr := s.db.ExecContext(ctx, createTableSQL(collection, true)); cerr != nil {
			return fmt.Errorf("failed to create collection %s: %w", collection, cerr)
		}
		_, err = s.db.ExecContext(ctx, stmt, args...)
	}
	if err != nil {
		if hasCode(err, codeUniqueViolated) {
			return fmt.Errorf("insert into %s: %w", collection, repositories.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
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
	if err := checkName(collection); err != nil {
		return nil, err
	}
	query, args, err := buildSelect(collection, filter, opts)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if hasCode(err, codeUndefinedTable) {
			return repositories.NewSliceCursor(nil), nil
		}
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return &cursor{rows: rows}, nil
}

func (s *Store) UpdateOne(ctx context.Context, collection, id string, set repositories.Document) error {
	if err := checkName(collection); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return repositories.ErrDocumentNotFound
	}
	body, err := encode(set)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1", pq.QuoteIdentifier(collection))
	res, err := s.db.ExecContext(ctx, stmt, id, body)
	if err != nil {
		switch {
		case hasCode(err, codeUndefinedTable):
			return repositories.ErrDocumentNotFound
		case hasCode(err, codeUniqueViolated):
			return fmt.Errorf("update in %s: %w", collection, repositories.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to update in %s: %w", collection, err)
	}
	return requireOneRow(res)
}

func (s *Store) DeleteOne(ctx context.Context, collection, id string) error {
	if err := checkName(collection); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return repositories.ErrDocumentNotFound
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(collection))
	res, err := s.db.ExecContext(ctx, stmt, id)
	if err != nil {
		if hasCode(err, codeUndefinedTable) {
			return repositories.ErrDocumentNotFound
		}
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return requireOneRow(res)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

type cursor struct {
	rows *sql.Rows
	doc  repositories.Document
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var id string
	var body []byte
	if err := c.rows.Scan(&id, &body); err != nil {
		c.err = err
		return false
	}
	doc := repositories.Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		c.err = fmt.Errorf("failed to decode document %s: %w", id, err)
		return false
	}
	doc[repositories.IDField] = id
	c.doc = doc
	return true
}

func (c *cursor) Document() repositories.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close(ctx context.Context) error { return c.rows.Close() }

func buildSelect(collection string, filter repositories.Filter, opts repositories.FindOptions) (string, []interface{}, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, doc FROM %s", pq.QuoteIdentifier(collection))

	var args []interface{}
	var conds []string
	for path, value := range filter {
		if path == repositories.IDField {
			args = append(args, fmt.Sprint(value))
			conds = append(conds, fmt.Sprintf("id::text = $%d", len(args)))
			continue
		}
		raw, err := json.Marshal(repositories.EncodeTimes(value))
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode filter %s: %w", path, err)
		}
		args = append(args, pq.Array(strings.Split(path, ".")), string(raw))
		conds = append(conds, fmt.Sprintf("doc #> $%d::text[] = $%d::jsonb", len(args)-1, len(args)))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	switch opts.SortField {
	case "":
		b.WriteString(" ORDER BY created_at, id")
	case repositories.IDField:
		b.WriteString(" ORDER BY id")
	default:
		args = append(args, pq.Array(strings.Split(opts.SortField, ".")))
		fmt.Fprintf(&b, " ORDER BY doc #> $%d::text[]", len(args))
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

func encode(doc repositories.Document) (string, error) {
	body, err := json.Marshal(repositories.EncodeTimes(doc.WithoutID()))
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(body), nil
}

// pathLiteral renders a dotted path as a text[] literal such as {admin,email}
func pathLiteral(path string) string {
	return "{" + strings.Join(strings.Split(path, "."), ",") + "}"
}

func hasCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return repositories.ErrDocumentNotFound
	}
	return nil
}
