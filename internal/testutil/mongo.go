// Package testutil provides shared testing utilities for the mongo-mcp
// project.
//
// This package contains reusable test infrastructure that can be used across
// multiple packages, following the pattern of Go standard library packages
// like net/http/httptest and testing/iotest.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// TestMongoContainer wraps a MongoDB test container with a connected client.
//
// Usage:
//
//	db, cleanup := testutil.SetupTestMongo(t)
//	defer cleanup()
//	// Use db.Client for database operations, db.URI for pool tests
type TestMongoContainer struct {
	Container *mongodb.MongoDBContainer
	Client    *mongo.Client
	URI       string
}

// SetupTestMongo creates a MongoDB container for testing.
//
// Skips the test when -short is set; container startup takes several
// seconds. The returned cleanup function must be called to terminate
// the container.
func SetupTestMongo(t *testing.T) (*TestMongoContainer, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		t.Fatalf("Failed to connect: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		_ = mongoContainer.Terminate(ctx)
		t.Fatalf("Failed to ping database: %v", err)
	}

	container := &TestMongoContainer{
		Container: mongoContainer,
		Client:    client,
		URI:       uri,
	}

	cleanup := func() {
		if client != nil {
			_ = client.Disconnect(context.Background())
		}
		if mongoContainer != nil {
			_ = mongoContainer.Terminate(context.Background())
		}
	}

	return container, cleanup
}

// SeedCollection inserts docs into database.collection, dropping any
// previous contents first.
func SeedCollection(t *testing.T, client *mongo.Client, database, collection string, docs []any) {
	t.Helper()

	ctx := context.Background()
	coll := client.Database(database).Collection(collection)
	if err := coll.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop collection %s.%s: %v", database, collection, err)
	}
	if len(docs) == 0 {
		return
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		t.Fatalf("Failed to seed collection %s.%s: %v", database, collection, err)
	}
}

// Doc is shorthand for building seed documents.
func Doc(pairs ...any) bson.D {
	d := make(bson.D, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		d = append(d, bson.E{Key: pairs[i].(string), Value: pairs[i+1]})
	}
	return d
}
