package metadata

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jagadeesh52423/mongo-mcp/internal/log"
	"github.com/jagadeesh52423/mongo-mcp/internal/pool"
	"github.com/jagadeesh52423/mongo-mcp/internal/testutil"
)

func setupInspector(t *testing.T) (*Inspector, *testutil.TestMongoContainer) {
	t.Helper()

	db, cleanup := testutil.SetupTestMongo(t)
	t.Cleanup(cleanup)

	p := pool.New(pool.Config{MaxSize: 2}, log.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	return New(p, log.NewNop()), db
}

func TestListCollections(t *testing.T) {
	insp, db := setupInspector(t)
	ctx := context.Background()

	testutil.SeedCollection(t, db.Client, "meta", "zebras", []any{testutil.Doc("a", 1)})
	testutil.SeedCollection(t, db.Client, "meta", "apples", []any{testutil.Doc("a", 1)})

	names, err := insp.ListCollections(ctx, db.URI, "meta", nil)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"apples", "zebras"}) {
		t.Errorf("ListCollections = %v, want sorted [apples zebras]", names)
	}

	filtered, err := insp.ListCollections(ctx, db.URI, "meta",
		map[string]any{"name": "apples"})
	if err != nil {
		t.Fatalf("ListCollections with filter: %v", err)
	}
	if !reflect.DeepEqual(filtered, []string{"apples"}) {
		t.Errorf("filtered listing = %v, want [apples]", filtered)
	}
}

func TestListIndexes(t *testing.T) {
	insp, db := setupInspector(t)
	ctx := context.Background()

	testutil.SeedCollection(t, db.Client, "meta", "users", []any{
		testutil.Doc("email", "a@example.com"),
	})
	coll := db.Client.Database("meta").Collection("users")
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: testutil.Doc("email", 1),
	}); err != nil {
		t.Fatalf("creating index: %v", err)
	}

	indexes, err := insp.ListIndexes(ctx, db.URI, "meta", "users")
	if err != nil {
		t.Fatalf("ListIndexes: %v", err)
	}

	// _id_ plus the email index.
	if len(indexes) != 2 {
		t.Fatalf("got %d indexes, want 2: %v", len(indexes), indexes)
	}
	names := map[string]bool{}
	for _, idx := range indexes {
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	if !names["_id_"] || !names["email_1"] {
		t.Errorf("index names = %v, want _id_ and email_1", names)
	}
}

func TestCollectionStats(t *testing.T) {
	insp, db := setupInspector(t)
	ctx := context.Background()

	testutil.SeedCollection(t, db.Client, "meta", "events", []any{
		testutil.Doc("n", 1), testutil.Doc("n", 2), testutil.Doc("n", 3),
	})

	stats, err := insp.CollectionStats(ctx, db.URI, "meta", "events")
	if err != nil {
		t.Fatalf("CollectionStats: %v", err)
	}

	count, ok := stats["count"]
	if !ok {
		t.Fatalf("stats missing count: %v", stats)
	}
	if n, ok := count.(int32); !ok || n != 3 {
		t.Errorf("stats count = %v, want 3", count)
	}
}

func TestSampleSchema(t *testing.T) {
	insp, db := setupInspector(t)
	ctx := context.Background()

	testutil.SeedCollection(t, db.Client, "meta", "people", []any{
		testutil.Doc("name", "ada", "age", 36),
		testutil.Doc("name", "grace", "age", 45),
		testutil.Doc("name", "edsger"),
	})

	schema, sampled, err := insp.SampleSchema(ctx, db.URI, "meta", "people", 0)
	if err != nil {
		t.Fatalf("SampleSchema: %v", err)
	}
	if sampled != 3 {
		t.Errorf("sampled %d documents, want 3", sampled)
	}

	if info := schema["name"]; info.Occurrences != 3 {
		t.Errorf("name occurrences = %d, want 3", info.Occurrences)
	}
	if info := schema["age"]; info.Occurrences != 2 {
		t.Errorf("age occurrences = %d, want 2", info.Occurrences)
	}
	if _, ok := schema["_id"]; !ok {
		t.Error("schema missing _id")
	}
}
