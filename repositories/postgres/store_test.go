package postgres

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/org-control-plane/repositories"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(WrapDB(db, zap.NewNop()), zap.NewNop()), mock
}

func TestStore_CreateCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("creates table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "org_acme"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, store.CreateCollection(ctx, "org_acme"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "org_acme"`)).
			WillReturnError(&pq.Error{Code: codeDuplicateTable})

		err := store.CreateCollection(ctx, "org_acme")
		assert.ErrorIs(t, err, repositories.ErrCollectionExists)
	})
}

func TestStore_DropCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("drops table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "org_acme"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, store.DropCollection(ctx, "org_acme"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "org_acme"`)).
			WillReturnError(&pq.Error{Code: codeUndefinedTable})

		err := store.DropCollection(ctx, "org_acme")
		assert.ErrorIs(t, err, repositories.ErrCollectionNotFound)
	})
}

func TestStore_ListCollectionNames(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("org_a").AddRow("organizations"))

	names, err := store.ListCollectionNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org_a", "organizations"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureUniqueIndex(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "organizations"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE UNIQUE INDEX IF NOT EXISTS "uniq_organizations_admin_email" ON "organizations" ((doc #>> '{admin,email}'))`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureUniqueIndex(context.Background(), "organizations", "admin.email"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertOne(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts with fresh id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "org_acme" (id, doc) VALUES ($1, $2)`)).
			WithArgs(sqlmock.AnyArg(), `{"name":"widget"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := store.InsertOne(ctx, "org_acme", repositories.Document{"_id": "ignored", "name": "widget"})
		require.NoError(t, err)
		assert.NotEqual(t, "ignored", id)
		assert.Len(t, id, 36)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates missing table and retries", func(t *testing.T) {
		store, mock := newMockStore(t)
		insert := regexp.QuoteMeta(`INSERT INTO "org_acme" (id, doc) VALUES ($1, $2)`)
		mock.ExpectExec(insert).WillReturnError(&pq.Error{Code: codeUndefinedTable})
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "org_acme"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := store.InsertOne(ctx, "org_acme", repositories.Document{"name": "widget"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "organizations"`)).
			WillReturnError(&pq.Error{Code: codeUniqueViolated})

		_, err := store.InsertOne(ctx, "organizations", repositories.Document{"organization_name": "acme"})
		assert.ErrorIs(t, err, repositories.ErrDuplicateKey)
	})
}

func TestStore_InsertMany(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "org_b" (id, doc) VALUES ($1, $2), ($3, $4)`)).
		WithArgs(sqlmock.AnyArg(), `{"n":1}`, sqlmock.AnyArg(), `{"n":2}`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.InsertMany(context.Background(), "org_b", []repositories.Document{{"n": 1}, {"n": 2}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, store.InsertMany(context.Background(), "org_b", nil))
}

func TestStore_FindOne(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes document and id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc FROM "organizations" WHERE doc #> $1::text[] = $2::jsonb ORDER BY created_at, id LIMIT $3`)).
			WithArgs(sqlmock.AnyArg(), `"acme"`, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}).
				AddRow("6f1c1c2e-8d0b-4d1e-9a57-0d4f3c8f9a10", []byte(`{"organization_name":"acme","admin":{"email":"a@x.io"}}`)))

		doc, err := store.FindOne(ctx, "organizations", repositories.Filter{"organization_name": "acme"})
		require.NoError(t, err)
		assert.Equal(t, "6f1c1c2e-8d0b-4d1e-9a57-0d4f3c8f9a10", doc.ID())
		email, ok := doc.Lookup("admin.email")
		require.True(t, ok)
		assert.Equal(t, "a@x.io", email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc FROM "organizations"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}))

		_, err := store.FindOne(ctx, "organizations", repositories.Filter{"organization_name": "nope"})
		assert.ErrorIs(t, err, repositories.ErrDocumentNotFound)
	})

	t.Run("missing table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc FROM "organizations"`)).
			WillReturnError(&pq.Error{Code: codeUndefinedTable})

		_, err := store.FindOne(ctx, "organizations", repositories.Filter{})
		assert.ErrorIs(t, err, repositories.ErrDocumentNotFound)
	})
}

func TestBuildSelect(t *testing.T) {
	t.Run("id filter and sort field", func(t *testing.T) {
		query, args, err := buildSelect("organizations",
			repositories.Filter{"_id": "abc"},
			repositories.FindOptions{SortField: "created_at", Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, `SELECT id, doc FROM "organizations" WHERE id::text = $1 ORDER BY doc #> $2::text[] LIMIT $3`, query)
		require.Len(t, args, 3)
		assert.Equal(t, "abc", args[0])
		assert.Equal(t, 5, args[2])
	})

	t.Run("dotted path", func(t *testing.T) {
		query, args, err := buildSelect("organizations",
			repositories.Filter{"admin.email": "a@x.io"}, repositories.FindOptions{})
		require.NoError(t, err)
		assert.Equal(t, `SELECT id, doc FROM "organizations" WHERE doc #> $1::text[] = $2::jsonb ORDER BY created_at, id`, query)
		assert.Equal(t, pq.Array([]string{"admin", "email"}), args[0])
		assert.Equal(t, `"a@x.io"`, args[1])
	})
}

func TestStore_UpdateOne(t *testing.T) {
	ctx := context.Background()
	id := "6f1c1c2e-8d0b-4d1e-9a57-0d4f3c8f9a10"
	stmt := regexp.QuoteMeta(`UPDATE "organizations" SET doc = doc || $2::jsonb WHERE id = $1`)

	t.Run("merges fields", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(stmt).WithArgs(id, `{"organization_name":"beta"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateOne(ctx, "organizations", id, repositories.Document{"organization_name": "beta"}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateOne(ctx, "organizations", id, repositories.Document{"x": 1})
		assert.ErrorIs(t, err, repositories.ErrDocumentNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		store, _ := newMockStore(t)
		err := store.UpdateOne(ctx, "organizations", "not-a-uuid", repositories.Document{"x": 1})
		assert.ErrorIs(t, err, repositories.ErrDocumentNotFound)
	})
}

func TestStore_DeleteOne(t *testing.T) {
	ctx := context.Background()
	id := "6f1c1c2e-8d0b-4d1e-9a57-0d4f3c8f9a10"

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "organizations" WHERE id = $1`)).WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteOne(ctx, "organizations", id))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "organizations" WHERE id = $1`)).WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.DeleteOne(ctx, "organizations", id), repositories.ErrDocumentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RejectsNamesPostgresWouldTruncate(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	// two names sharing their first 63 bytes would land in the same table
	long := "org_" + strings.Repeat("a", 60)
	require.Len(t, long, 64)

	assert.ErrorIs(t, store.CreateCollection(ctx, long), repositories.ErrInvalidCollectionName)
	assert.ErrorIs(t, store.DropCollection(ctx, long), repositories.ErrInvalidCollectionName)
	_, err := store.InsertOne(ctx, long, repositories.Document{"n": 1})
	assert.ErrorIs(t, err, repositories.ErrInvalidCollectionName)
	assert.ErrorIs(t, store.InsertMany(ctx, long, []repositories.Document{{"n": 1}}), repositories.ErrInvalidCollectionName)
	_, err = store.Find(ctx, long, nil, repositories.FindOptions{})
	assert.ErrorIs(t, err, repositories.ErrInvalidCollectionName)
	_, err = store.FindOne(ctx, long, repositories.Filter{"n": 1})
	assert.ErrorIs(t, err, repositories.ErrInvalidCollectionName)
	assert.ErrorIs(t, store.UpdateOne(ctx, long, "6f1c1c2e-8d0b-4d1e-9a57-0d4f3c8f9a10", repositories.Document{"n": 2}), repositories.ErrInvalidCollectionName)
	assert.ErrorIs(t, store.DeleteOne(ctx, long, "6f1c1c2e-8d0b-4d1e-9a57-0d4f3c8f9a10"), repositories.ErrInvalidCollectionName)
	assert.ErrorIs(t, store.EnsureUniqueIndex(ctx, "org_"+strings.Repeat("b", 40), "admin.email"), repositories.ErrInvalidCollectionName)

	// 63 bytes is still accepted
	ok := "org_" + strings.Repeat("a", 59)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "` + ok + `"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, store.CreateCollection(ctx, ok))

	assert.NoError(t, mock.ExpectationsWereMet())
}
