// Package guard bounds the serialized size of results returned to the
// caller.
//
// The guard is independent of the limit clause injected during command
// normalization: a limit caps item count, not item size. The guard catches
// results whose items are individually large, and results that bypass
// item-count limiting entirely (single documents, aggregation summaries).
//
// The guard is an explicitly constructed component with configuration
// supplied at construction; there is no package-level instance.
package guard

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jagadeesh52423/mongo-mcp/internal/log"
)

// Config holds the guard's limits.
type Config struct {
	// MaxBytes is the serialized-size ceiling. Default 10 MiB.
	MaxBytes int

	// WarnBytes logs a warning when crossed, without truncating.
	// Zero disables the warning.
	WarnBytes int

	// MaxItems is the element count a sequence is truncated to when it
	// exceeds MaxBytes. Default 50.
	MaxItems int
}

func (c *Config) applyDefaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 50
	}
}

// Bounded is one guarded result.
type Bounded struct {
	// Content is the serialized payload (extended JSON for sequences and
	// documents).
	Content string

	// WasTruncated reports whether the sequence was cut to MaxItems.
	WasTruncated bool

	// OriginalSize and FinalSize are serialized byte counts before and
	// after truncation. Equal when nothing was truncated.
	OriginalSize int
	FinalSize    int

	// TotalItems is the element count before truncation; 0 for
	// non-sequence payloads.
	TotalItems int

	// ReturnedItems is the element count after truncation; 0 for
	// non-sequence payloads.
	ReturnedItems int
}

// Guard serializes and bounds payloads.
type Guard struct {
	cfg    Config
	logger log.Logger
}

// New creates a Guard with the given limits.
func New(cfg Config, logger log.Logger) *Guard {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, logger: logger}
}

// Bound serializes payload and truncates sequence-shaped payloads that
// exceed the byte ceiling to at most maxItems elements (the configured
// MaxItems when maxItems <= 0).
//
// Non-sequence payloads over the ceiling pass through unmodified, since the
// truncation strategy only applies to sequences, but the size metadata is
// still populated so the caller can detect the condition.
func (g *Guard) Bound(payload any, maxItems int) (*Bounded, error) {
	if maxItems <= 0 {
		maxItems = g.cfg.MaxItems
	}

	serialized, err := serialize(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing result: %w", err)
	}

	out := &Bounded{
		Content:      serialized,
		OriginalSize: len(serialized),
		FinalSize:    len(serialized),
	}

	seq, isSeq := asSequence(payload)
	if isSeq {
		out.TotalItems = len(seq)
		out.ReturnedItems = len(seq)
	}

	if g.cfg.WarnBytes > 0 && len(serialized) > g.cfg.WarnBytes {
		g.logger.Warn("result size above warning threshold",
			"size_bytes", len(serialized),
			"warn_bytes", g.cfg.WarnBytes)
	}

	if len(serialized) <= g.cfg.MaxBytes {
		return out, nil
	}

	if !isSeq {
		g.logger.Warn("oversized non-sequence result passed through",
			"size_bytes", len(serialized),
			"max_bytes", g.cfg.MaxBytes)
		return out, nil
	}

	if len(seq) > maxItems {
		seq = seq[:maxItems]
	}
	reserialized, err := serialize(seq)
	if err != nil {
		return nil, fmt.Errorf("serializing truncated result: %w", err)
	}

	out.Content = reserialized
	out.FinalSize = len(reserialized)
	out.WasTruncated = true
	out.ReturnedItems = len(seq)

	g.logger.Info("result truncated",
		"original_bytes", out.OriginalSize,
		"final_bytes", out.FinalSize,
		"total_items", out.TotalItems,
		"returned_items", out.ReturnedItems)
	return out, nil
}

// asSequence recognizes the sequence shapes the evaluator produces.
func asSequence(payload any) ([]bson.M, bool) {
	switch seq := payload.(type) {
	case []bson.M:
		return seq, true
	case bson.A:
		out := make([]bson.M, 0, len(seq))
		for _, elem := range seq {
			m, ok := elem.(bson.M)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}

// serialize renders a payload for the response channel. BSON values use
// relaxed extended JSON so types like ObjectId and dates stay readable;
// anything else falls back to plain JSON.
func serialize(payload any) (string, error) {
	switch v := payload.(type) {
	case nil:
		return "null", nil

	case string:
		return v, nil

	case []bson.M:
		// bson.MarshalExtJSON requires a document top level; wrap and
		// render elements individually to keep the output a JSON array.
		return serializeSequence(v)

	case bson.M, bson.D:
		data, err := bson.MarshalExtJSON(v, false, false)
		if err != nil {
			return "", err
		}
		return string(data), nil

	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func serializeSequence(docs []bson.M) (string, error) {
	buf := make([]byte, 0, 64*len(docs))
	buf = append(buf, '[')
	for i, doc := range docs {
		if i > 0 {
			buf = append(buf, ',')
		}
		data, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return "", err
		}
		buf = append(buf, data...)
	}
	buf = append(buf, ']')
	return string(buf), nil
}
