// Package metadata inspects collection structure: listings, indexes,
// storage statistics, and sampled schemas.
//
// Inspection goes through the same connection pool as command execution, so
// an agent alternating between queries and schema lookups keeps reusing one
// session per target. Structured filters supplied by the caller pass the
// security sanitizer before they reach the driver.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jagadeesh52423/mongo-mcp/internal/log"
	"github.com/jagadeesh52423/mongo-mcp/internal/pool"
	"github.com/jagadeesh52423/mongo-mcp/internal/security"
)

// DefaultSampleSize is the number of documents sampled for schema
// inference.
const DefaultSampleSize = 100

// Inspector serves metadata lookups over pooled connections.
type Inspector struct {
	pool   *pool.Pool
	logger log.Logger
}

// New creates an Inspector sharing the executor's pool.
func New(p *pool.Pool, logger log.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{pool: p, logger: logger}
}

// ListCollections returns the collection names in a database, sorted.
// An optional structured filter (name, type, options) narrows the listing;
// it must pass the security sanitizer.
func (i *Inspector) ListCollections(ctx context.Context, uri, database string, filter map[string]any) ([]string, error) {
	listFilter := bson.M{}
	if filter != nil {
		if err := security.SanitizeDocument(filter); err != nil {
			return nil, err
		}
		listFilter = bson.M(filter)
	}

	handle, err := i.pool.Acquire(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer i.pool.Release(handle)

	names, err := handle.Client().Database(database).ListCollectionNames(ctx, listFilter)
	if err != nil {
		return nil, fmt.Errorf("listing collections in %q: %w", database, err)
	}
	sort.Strings(names)
	return names, nil
}

// ListIndexes returns the index specifications of one collection.
func (i *Inspector) ListIndexes(ctx context.Context, uri, database, collection string) ([]bson.M, error) {
	handle, err := i.pool.Acquire(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer i.pool.Release(handle)

	cursor, err := handle.Client().Database(database).Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indexes on %q: %w", collection, err)
	}
	indexes := []bson.M{}
	if err := cursor.All(ctx, &indexes); err != nil {
		return nil, fmt.Errorf("listing indexes on %q: %w", collection, err)
	}
	return indexes, nil
}

// CollectionStats returns storage statistics for one collection.
func (i *Inspector) CollectionStats(ctx context.Context, uri, database, collection string) (bson.M, error) {
	handle, err := i.pool.Acquire(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer i.pool.Release(handle)

	var stats bson.M
	err = handle.Client().Database(database).RunCommand(ctx, bson.D{
		{Key: "collStats", Value: collection},
	}).Decode(&stats)
	if err != nil {
		return nil, fmt.Errorf("collStats for %q: %w", collection, err)
	}
	return stats, nil
}

// FieldInfo summarizes one field observed during schema sampling.
type FieldInfo struct {
	// Types lists the BSON type names observed for this field, sorted.
	Types []string `json:"types"`

	// Occurrences counts documents in the sample containing the field.
	Occurrences int `json:"occurrences"`
}

// SampleSchema infers a collection's shape from a random sample of
// documents. Field paths are dotted for nested documents; arrays
// contribute their element types.
func (i *Inspector) SampleSchema(ctx context.Context, uri, database, collection string, sampleSize int) (map[string]FieldInfo, int, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	handle, err := i.pool.Acquire(ctx, uri)
	if err != nil {
		return nil, 0, err
	}
	defer i.pool.Release(handle)

	coll := handle.Client().Database(database).Collection(collection)
	cursor, err := coll.Aggregate(ctx, []bson.D{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: sampleSize}}}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("sampling %q: %w", collection, err)
	}
	docs := []bson.M{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("sampling %q: %w", collection, err)
	}

	schema := inferSchema(docs)
	i.logger.Debug("schema sampled",
		"collection", collection,
		"documents", len(docs),
		"fields", len(schema))
	return schema, len(docs), nil
}

// inferSchema aggregates field paths and types across sampled documents.
func inferSchema(docs []bson.M) map[string]FieldInfo {
	type fieldAgg struct {
		types map[string]struct{}
		count int
	}
	agg := map[string]*fieldAgg{}

	var walk func(prefix string, doc bson.M)
	walk = func(prefix string, doc bson.M) {
		for key, val := range doc {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			f := agg[path]
			if f == nil {
				f = &fieldAgg{types: map[string]struct{}{}}
				agg[path] = f
			}
			f.count++
			f.types[bsonTypeName(val)] = struct{}{}

			switch nested := val.(type) {
			case bson.M:
				walk(path, nested)
			case bson.D:
				walk(path, nested.Map())
			case bson.A:
				for _, elem := range nested {
					switch m := elem.(type) {
					case bson.M:
						walk(path+"[]", m)
					case bson.D:
						walk(path+"[]", m.Map())
					}
				}
			}
		}
	}

	for _, doc := range docs {
		walk("", doc)
	}

	schema := make(map[string]FieldInfo, len(agg))
	for path, f := range agg {
		types := make([]string, 0, len(f.types))
		for t := range f.types {
			types = append(types, t)
		}
		sort.Strings(types)
		schema[path] = FieldInfo{Types: types, Occurrences: f.count}
	}
	return schema
}

// bsonTypeName names a decoded BSON value's type the way the shell does.
func bsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int32:
		return "int"
	case int64:
		return "long"
	case float64:
		return "double"
	case bson.M, bson.D:
		return "object"
	case bson.A:
		return "array"
	case primitive.ObjectID:
		return "objectId"
	case primitive.DateTime:
		return "date"
	case primitive.Decimal128:
		return "decimal"
	case primitive.Binary:
		return "binData"
	case primitive.Timestamp:
		return "timestamp"
	case primitive.Regex:
		return "regex"
	default:
		return fmt.Sprintf("%T", v)
	}
}
