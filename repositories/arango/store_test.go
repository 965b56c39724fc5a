package arango

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/org-control-plane/config"
	"github.com/upb/org-control-plane/repositories"
	"go.uber.org/zap"
)

func TestBuildQuery(t *testing.T) {
	t.Run("dotted filter sort and limit", func(t *testing.T) {
		query, vars := buildQuery("organizations",
			repositories.Filter{"admin.email": "a@x.com"},
			repositories.FindOptions{SortField: "created_at", Limit: 5})

		assert.Equal(t,
			"FOR d IN @@col FILTER d[@f0_0][@f0_1] == @v0 SORT d[@s_0] ASC LIMIT @limit RETURN d",
			query)
		assert.Equal(t, "organizations", vars["@col"])
		assert.Equal(t, "admin", vars["f0_0"])
		assert.Equal(t, "email", vars["f0_1"])
		assert.Equal(t, "a@x.com", vars["v0"])
		assert.Equal(t, "created_at", vars["s_0"])
		assert.Equal(t, 5, vars["limit"])
	})

	t.Run("identity maps to key", func(t *testing.T) {
		query, vars := buildQuery("c", repositories.Filter{"_id": "123"}, repositories.FindOptions{})
		assert.Equal(t, "FOR d IN @@col FILTER d[@f0_0] == @v0 RETURN d", query)
		assert.Equal(t, "_key", vars["f0_0"])
	})

	t.Run("time values encoded", func(t *testing.T) {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		_, vars := buildQuery("c", repositories.Filter{"at": at}, repositories.FindOptions{})
		assert.Equal(t, "2024-01-01T00:00:00.000000000Z", vars["v0"])
	})
}

func TestDocumentMapping(t *testing.T) {
	out := toArango(repositories.Document{
		"_id":  "ignored",
		"_key": "ignored",
		"at":   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"n":    1,
	})
	assert.Equal(t, map[string]interface{}{"at": "2024-01-01T00:00:00.000000000Z", "n": 1}, out)

	doc := fromArango(map[string]interface{}{
		"_key": "123",
		"_id":  "organizations/123",
		"_rev": "_abc",
		"name": "Acme",
	})
	assert.Equal(t, repositories.Document{"_id": "123", "name": "Acme"}, doc)
}

func TestStore_Integration(t *testing.T) {
	url := os.Getenv("ARANGO_URL")
	if url == "" {
		t.Skip("ARANGO_URL not set, skipping arango integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.ArangoConfig{
		URL:      url,
		User:     os.Getenv("ARANGO_USER"),
		Password: os.Getenv("ARANGO_PASS"),
		Database: fmt.Sprintf("org_cp_test_%d", time.Now().UnixNano()),
	}
	store, err := NewStore(ctx, cfg, 5*time.Second, zap.NewNop())
	if err != nil {
		t.Skipf("arango not available: %v", err)
	}
	t.Cleanup(func() { _ = store.db.Remove(context.Background()) })

	require.NoError(t, store.CreateCollection(ctx, "org_acme"))
	assert.ErrorIs(t, store.CreateCollection(ctx, "org_acme"), repositories.ErrCollectionExists)

	require.NoError(t, store.EnsureUniqueIndex(ctx, "organizations", "organization_name"))
	id, err := store.InsertOne(ctx, "organizations", repositories.Document{
		"organization_name": "Acme",
		"admin":             map[string]interface{}{"email": "a@x.com"},
	})
	require.NoError(t, err)

	_, err = store.InsertOne(ctx, "organizations", repositories.Document{"organization_name": "Acme"})
	assert.ErrorIs(t, err, repositories.ErrDuplicateKey)

	doc, err := store.FindOne(ctx, "organizations", repositories.Filter{"admin.email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())

	require.NoError(t, store.InsertMany(ctx, "org_acme", []repositories.Document{{"n": 1}, {"n": 2}}))
	cur, err := store.Find(ctx, "org_acme", repositories.Filter{}, repositories.FindOptions{SortField: "n"})
	require.NoError(t, err)
	docs, err := repositories.ReadAll(ctx, cur)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	cur, err = store.Find(ctx, "absent", repositories.Filter{}, repositories.FindOptions{})
	require.NoError(t, err)
	docs, err = repositories.ReadAll(ctx, cur)
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, store.DropCollection(ctx, "org_acme"))
	assert.ErrorIs(t, store.DropCollection(ctx, "org_acme"), repositories.ErrCollectionNotFound)
	require.NoError(t, store.DeleteOne(ctx, "organizations", id))
	assert.ErrorIs(t, store.DeleteOne(ctx, "organizations", id), repositories.ErrDocumentNotFound)
}
