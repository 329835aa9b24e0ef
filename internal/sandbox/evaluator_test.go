package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jagadeesh52423/mongo-mcp/internal/command"
	"github.com/jagadeesh52423/mongo-mcp/internal/log"
)

// lazyClient builds a driver client without contacting any server. The
// evaluator's argument decoding and method dispatch run entirely
// client-side, so rejection paths are testable without a database.
func lazyClient(t *testing.T) *mongo.Client {
	t.Helper()
	client, err := mongo.Connect(context.Background(),
		options.Client().ApplyURI("mongodb://127.0.0.1:27017"))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

// TestEvaluateRejectsUnparsed tests the typed error for pass-through
// commands.
func TestEvaluateRejectsUnparsed(t *testing.T) {
	e := New(log.NewNop())
	cmd := command.Normalize("db.users", 100)
	if cmd.Parsed() {
		t.Fatal("test input unexpectedly parsed")
	}

	_, err := e.Evaluate(context.Background(), cmd, lazyClient(t), "app", 0)
	if !errors.Is(err, ErrNotParsed) {
		t.Errorf("expected ErrNotParsed, got %v", err)
	}
}

// TestEvaluateRejectsUnknownMethods tests that the operation surface is
// closed.
func TestEvaluateRejectsUnknownMethods(t *testing.T) {
	e := New(log.NewNop())
	client := lazyClient(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"unknown base method", `db.users.frobnicate({})`},
		{"forEach callback", `db.users.find({}).forEach(f)`},
		{"map callback", `db.users.find({}).map(f)`},
		{"unknown chained method", `db.users.find({}).tail()`},
		{"unknown after aggregate", `db.orders.aggregate([{$match: {}}]).explain()`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := command.Normalize(tt.raw, 0)
			if !cmd.Parsed() {
				t.Fatalf("Normalize(%q) did not parse", tt.raw)
			}
			_, err := e.Evaluate(context.Background(), cmd, client, "app", 0)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("Evaluate(%q): expected ErrUnsupported, got %v", tt.raw, err)
			}
		})
	}
}

// TestEvaluateForEachGuidance tests that the callback rejection tells the
// caller what to do instead.
func TestEvaluateForEachGuidance(t *testing.T) {
	e := New(log.NewNop())
	cmd := command.Normalize(`db.users.find({}).forEach(doc => f(doc))`, 0)
	if !cmd.Parsed() {
		t.Fatal("input did not parse")
	}

	_, err := e.Evaluate(context.Background(), cmd, lazyClient(t), "app", 0)
	if err == nil || !strings.Contains(err.Error(), "iterate on the caller side") {
		t.Errorf("forEach rejection should point at client-side iteration, got %v", err)
	}
}

// TestEvaluateRejectsBadArguments tests argument decoding failures.
func TestEvaluateRejectsBadArguments(t *testing.T) {
	e := New(log.NewNop())
	client := lazyClient(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"malformed filter", `db.users.find({a: })`},
		{"non-integer limit", `db.users.find({}).limit(ten)`},
		{"aggregate without array", `db.users.aggregate({$match: {}})`},
		{"distinct without field", `db.users.distinct()`},
		{"sort not a document", `db.users.find({}).sort(1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := command.Normalize(tt.raw, 0)
			if !cmd.Parsed() {
				t.Fatalf("Normalize(%q) did not parse", tt.raw)
			}
			_, err := e.Evaluate(context.Background(), cmd, client, "app", 0)
			if !errors.Is(err, ErrInvalidArguments) {
				t.Errorf("Evaluate(%q): expected ErrInvalidArguments, got %v", tt.raw, err)
			}
		})
	}
}
