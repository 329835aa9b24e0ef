// Package sandbox evaluates normalized commands against the MongoDB driver.
//
// The evaluator exposes a capability-restricted surface: a parsed command
// chain is mapped onto a closed, enumerable set of typed driver operations.
// There is no runtime code evaluation and no dynamic method forwarding: a
// method name outside the supported set is rejected with a typed error, and
// nothing inside the evaluation can reach host or runtime facilities.
//
// Execution is bounded by a wall-clock timeout. Exceeding it abandons the
// client-side wait; the server-side operation is not guaranteed to be
// cancelled, so a timed-out mutating command must be treated as having an
// unknown effect.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jagadeesh52423/mongo-mcp/internal/command"
	"github.com/jagadeesh52423/mongo-mcp/internal/log"
)

var (
	// ErrTimeout indicates evaluation exceeded its deadline. The
	// underlying operation may still complete server-side.
	ErrTimeout = errors.New("evaluation timed out")

	// ErrUnsupported indicates a method outside the supported operation
	// set. The surface is closed: unknown names are rejected, never
	// forwarded.
	ErrUnsupported = errors.New("unsupported method")

	// ErrNotParsed indicates the command text never matched the grammar,
	// so there is no chain to evaluate.
	ErrNotParsed = errors.New("command does not match the supported grammar")
)

// DefaultTimeout bounds evaluation when the caller does not specify one.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one evaluation.
type Result struct {
	// Payload is the operation result: a []bson.M for sequence-shaped
	// results, a bson.M for single documents, or a summary document for
	// counts and writes.
	Payload any

	// ItemCount is the sequence length; valid only when IsSequence.
	ItemCount  int
	IsSequence bool

	// Elapsed is the wall-clock evaluation time.
	Elapsed time.Duration
}

// Evaluator maps parsed command chains onto driver calls.
type Evaluator struct {
	logger log.Logger
}

// New creates an Evaluator.
func New(logger log.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

// Evaluate runs cmd against the given client and database, bounded by
// timeout (DefaultTimeout if <= 0). Every failure surfaces as exactly one
// typed error; no driver fault or panic escapes unwrapped.
func (e *Evaluator) Evaluate(ctx context.Context, cmd command.Command, client *mongo.Client, dbName string, timeout time.Duration) (result *Result, err error) {
	if !cmd.Parsed() {
		return nil, fmt.Errorf("%w: %q", ErrNotParsed, cmd.Normalized)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The driver is not expected to panic, but a panic here must become
	// an error at the boundary, never an uncaught fault.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()

	start := time.Now()
	coll := client.Database(dbName).Collection(cmd.Collection)

	payload, isSeq, opErr := e.dispatch(ctx, cmd, coll)
	elapsed := time.Since(start)

	if opErr != nil {
		if isTimeout(ctx, opErr) {
			e.logger.Warn("evaluation timed out",
				"collection", cmd.Collection,
				"timeout", timeout)
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, opErr
	}

	res := &Result{Payload: payload, Elapsed: elapsed}
	if seq, ok := payload.([]bson.M); ok && isSeq {
		res.ItemCount = len(seq)
		res.IsSequence = true
	}

	e.logger.Debug("command evaluated",
		"collection", cmd.Collection,
		"method", cmd.Calls[0].Name,
		"elapsed", elapsed,
		"items", res.ItemCount)
	return res, nil
}

// dispatch routes the chain's base call to a typed operation.
func (e *Evaluator) dispatch(ctx context.Context, cmd command.Command, coll *mongo.Collection) (any, bool, error) {
	base := cmd.Calls[0]
	rest := cmd.Calls[1:]

	switch base.Name {
	case "find":
		return e.evalFind(ctx, coll, base, rest)
	case "findOne":
		return e.evalFindOne(ctx, coll, base)
	case "aggregate":
		return e.evalAggregate(ctx, coll, base, rest)
	case "countDocuments", "count":
		filter, err := decodeDocument(argAt(splitArgs(base.Args), 0))
		if err != nil {
			return nil, false, err
		}
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, false, execFault("countDocuments", err)
		}
		return bson.M{"count": n}, false, nil
	case "estimatedDocumentCount":
		n, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, false, execFault("estimatedDocumentCount", err)
		}
		return bson.M{"count": n}, false, nil
	case "distinct":
		return e.evalDistinct(ctx, coll, base)
	case "insertOne", "insertMany", "updateOne", "updateMany",
		"replaceOne", "deleteOne", "deleteMany":
		return e.evalWrite(ctx, coll, base)
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupported, base.Name)
	}
}

func (e *Evaluator) evalFind(ctx context.Context, coll *mongo.Collection, base command.Call, rest []command.Call) (any, bool, error) {
	args := splitArgs(base.Args)

	filter, err := decodeDocument(argAt(args, 0))
	if err != nil {
		return nil, false, err
	}

	opts := options.Find()
	if len(args) > 1 {
		projection, err := decodeDocument(args[1])
		if err != nil {
			return nil, false, err
		}
		opts.SetProjection(projection)
	}

	terminal := ""
	for _, call := range rest {
		switch call.Name {
		case "sort":
			doc, err := decodeDocument(call.Args)
			if err != nil {
				return nil, false, err
			}
			opts.SetSort(doc)
		case "skip":
			n, err := decodeInt(call.Args)
			if err != nil {
				return nil, false, err
			}
			opts.SetSkip(n)
		case "limit":
			n, err := decodeInt(call.Args)
			if err != nil {
				return nil, false, err
			}
			opts.SetLimit(n)
		case "project", "projection":
			doc, err := decodeDocument(call.Args)
			if err != nil {
				return nil, false, err
			}
			opts.SetProjection(doc)
		case "hint":
			hint, err := decodeHint(call.Args)
			if err != nil {
				return nil, false, err
			}
			opts.SetHint(hint)
		case "toArray":
			terminal = "toArray"
		case "count":
			terminal = "count"
		case "explain":
			terminal = "explain"
		case "forEach", "map":
			return nil, false, fmt.Errorf("%w: %q takes a callback, which cannot run here; fetch the documents and iterate on the caller side", ErrUnsupported, call.Name)
		default:
			return nil, false, fmt.Errorf("%w: %q", ErrUnsupported, call.Name)
		}
	}

	switch terminal {
	case "count":
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, false, execFault("count", err)
		}
		return bson.M{"count": n}, false, nil

	case "explain":
		return e.explainFind(ctx, coll, filter)

	default:
		// Bare find and toArray both materialize: a lazy cursor cannot
		// cross the response boundary.
		cursor, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, false, execFault("find", err)
		}
		docs := []bson.M{}
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, false, execFault("find", err)
		}
		return docs, true, nil
	}
}

func (e *Evaluator) evalFindOne(ctx context.Context, coll *mongo.Collection, base command.Call) (any, bool, error) {
	args := splitArgs(base.Args)

	filter, err := decodeDocument(argAt(args, 0))
	if err != nil {
		return nil, false, err
	}

	opts := options.FindOne()
	if len(args) > 1 {
		projection, err := decodeDocument(args[1])
		if err != nil {
			return nil, false, err
		}
		opts.SetProjection(projection)
	}

	var doc bson.M
	err = coll.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, execFault("findOne", err)
	}
	return doc, false, nil
}

func (e *Evaluator) evalAggregate(ctx context.Context, coll *mongo.Collection, base command.Call, rest []command.Call) (any, bool, error) {
	pipeline, err := decodeDocumentArray(base.Args)
	if err != nil {
		return nil, false, err
	}

	for _, call := range rest {
		switch call.Name {
		case "limit":
			n, err := decodeInt(call.Args)
			if err != nil {
				return nil, false, err
			}
			pipeline = append(pipeline, bson.D{{Key: "$limit", Value: n}})
		case "sort":
			doc, err := decodeDocument(call.Args)
			if err != nil {
				return nil, false, err
			}
			pipeline = append(pipeline, bson.D{{Key: "$sort", Value: doc}})
		case "skip":
			n, err := decodeInt(call.Args)
			if err != nil {
				return nil, false, err
			}
			pipeline = append(pipeline, bson.D{{Key: "$skip", Value: n}})
		case "toArray":
			// Materialization is unconditional; nothing to do.
		default:
			return nil, false, fmt.Errorf("%w: %q after aggregate", ErrUnsupported, call.Name)
		}
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, false, execFault("aggregate", err)
	}
	docs := []bson.M{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, false, execFault("aggregate", err)
	}
	return docs, true, nil
}

func (e *Evaluator) evalDistinct(ctx context.Context, coll *mongo.Collection, base command.Call) (any, bool, error) {
	args := splitArgs(base.Args)
	if len(args) == 0 {
		return nil, false, fmt.Errorf("%w: distinct requires a field name", ErrInvalidArguments)
	}

	field, err := decodeString(args[0])
	if err != nil {
		return nil, false, err
	}
	filter, err := decodeDocument(argAt(args, 1))
	if err != nil {
		return nil, false, err
	}

	values, err := coll.Distinct(ctx, field, filter)
	if err != nil {
		return nil, false, execFault("distinct", err)
	}
	return bson.M{"values": values, "count": len(values)}, false, nil
}

// evalWrite handles mutating operations. These are only reachable when the
// security validator allowed writes; the evaluator still keeps them typed
// and enumerable rather than forwarding by name.
func (e *Evaluator) evalWrite(ctx context.Context, coll *mongo.Collection, base command.Call) (any, bool, error) {
	args := splitArgs(base.Args)

	switch base.Name {
	case "insertOne":
		doc, err := decodeDocument(argAt(args, 0))
		if err != nil {
			return nil, false, err
		}
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return nil, false, execFault("insertOne", err)
		}
		return bson.M{"insertedId": res.InsertedID}, false, nil

	case "insertMany":
		docs, err := decodeDocumentArray(argAt(args, 0))
		if err != nil {
			return nil, false, err
		}
		anyDocs := make([]any, len(docs))
		for i, d := range docs {
			anyDocs[i] = d
		}
		res, err := coll.InsertMany(ctx, anyDocs)
		if err != nil {
			return nil, false, execFault("insertMany", err)
		}
		return bson.M{"insertedCount": len(res.InsertedIDs), "insertedIds": res.InsertedIDs}, false, nil

	case "updateOne", "updateMany":
		filter, err := decodeDocument(argAt(args, 0))
		if err != nil {
			return nil, false, err
		}
		update, err := decodeDocument(argAt(args, 1))
		if err != nil {
			return nil, false, err
		}
		var res *mongo.UpdateResult
		if base.Name == "updateOne" {
			res, err = coll.UpdateOne(ctx, filter, update)
		} else {
			res, err = coll.UpdateMany(ctx, filter, update)
		}
		if err != nil {
			return nil, false, execFault(base.Name, err)
		}
		return bson.M{
			"matchedCount":  res.MatchedCount,
			"modifiedCount": res.ModifiedCount,
			"upsertedCount": res.UpsertedCount,
		}, false, nil

	case "replaceOne":
		filter, err := decodeDocument(argAt(args, 0))
		if err != nil {
			return nil, false, err
		}
		replacement, err := decodeDocument(argAt(args, 1))
		if err != nil {
			return nil, false, err
		}
		res, err := coll.ReplaceOne(ctx, filter, replacement)
		if err != nil {
			return nil, false, execFault("replaceOne", err)
		}
		return bson.M{"matchedCount": res.MatchedCount, "modifiedCount": res.ModifiedCount}, false, nil

	case "deleteOne", "deleteMany":
		filter, err := decodeDocument(argAt(args, 0))
		if err != nil {
			return nil, false, err
		}
		var res *mongo.DeleteResult
		if base.Name == "deleteOne" {
			res, err = coll.DeleteOne(ctx, filter)
		} else {
			res, err = coll.DeleteMany(ctx, filter)
		}
		if err != nil {
			return nil, false, execFault(base.Name, err)
		}
		return bson.M{"deletedCount": res.DeletedCount}, false, nil

	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupported, base.Name)
	}
}

// explainFind runs the query planner for a find without executing it.
func (e *Evaluator) explainFind(ctx context.Context, coll *mongo.Collection, filter bson.D) (any, bool, error) {
	db := coll.Database()
	var plan bson.M
	err := db.RunCommand(ctx, bson.D{
		{Key: "explain", Value: bson.D{
			{Key: "find", Value: coll.Name()},
			{Key: "filter", Value: filter},
		}},
	}).Decode(&plan)
	if err != nil {
		return nil, false, execFault("explain", err)
	}
	return plan, false, nil
}

// decodeHint accepts either an index specification document or an index
// name string.
func decodeHint(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		return decodeDocument(trimmed)
	}
	return decodeString(trimmed)
}

// argAt returns the i-th argument or "" when absent.
func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// execFault wraps a driver fault, preserving its message and classification
// for errors.As inspection upstream.
func execFault(op string, err error) error {
	return fmt.Errorf("executing %s: %w", op, err)
}

// isTimeout reports whether the failure is the evaluation deadline rather
// than a data-store fault.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err)
}
