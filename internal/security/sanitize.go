package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeDocument is returned by SanitizeDocument for any structural or
// content violation. Check with errors.Is; the wrapped message names the
// specific violation and the path to it.
var ErrUnsafeDocument = errors.New("unsafe document")

// Structural limits for filter/option documents. A legitimate query filter
// stays far under all of these; values near the limits indicate either a
// malfunctioning agent or an abuse attempt.
const (
	maxArrayLen   = 1000
	maxObjectKeys = 100
	maxDepth      = 10
	maxStringLen  = 10000
)

// reservedKeys are identifiers associated with prototype-pollution style
// attacks. They have no meaning in a database filter.
var reservedKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// allowedOperators is the closed set of $-prefixed keys accepted in
// filter/option documents. Notably absent: $where, $function, $accumulator
// (server-side script execution).
var allowedOperators = map[string]struct{}{
	// Comparison
	"$eq": {}, "$ne": {}, "$gt": {}, "$gte": {}, "$lt": {}, "$lte": {},
	"$in": {}, "$nin": {},
	// Logical
	"$and": {}, "$or": {}, "$nor": {}, "$not": {},
	// Element / evaluation
	"$exists": {}, "$type": {}, "$regex": {}, "$options": {}, "$mod": {},
	"$expr": {}, "$text": {}, "$search": {},
	// Array
	"$all": {}, "$elemMatch": {}, "$size": {},
	// Aggregation stages and accumulators
	"$match": {}, "$group": {}, "$project": {}, "$sort": {}, "$limit": {},
	"$skip": {}, "$unwind": {}, "$lookup": {}, "$count": {}, "$sample": {},
	"$addFields": {}, "$avg": {}, "$sum": {}, "$min": {}, "$max": {},
	"$first": {}, "$last": {}, "$push": {}, "$addToSet": {},
	// Update operators
	"$set": {}, "$unset": {}, "$inc": {}, "$mul": {}, "$rename": {},
	"$pull": {}, "$pop": {}, "$currentDate": {}, "$setOnInsert": {},
	// Misc
	"$meta": {}, "$slice": {}, "$each": {}, "$position": {},
}

// scriptSignatures flag string values that look like client-side script
// injection rather than data.
var scriptSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)\bjavascript\s*:`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bnew\s+Function\b`),
	regexp.MustCompile(`(?i)\bfunction\s*\([^)]*\)\s*{`),
	regexp.MustCompile(`=>\s*{`),
}

// SanitizeDocument validates a structured filter/options value supplied
// alongside a command. The top-level value must be an object. The walk is
// purely structural: it inspects, never modifies.
//
// Violations (any one fails the whole document):
//   - arrays longer than 1000 elements
//   - objects with more than 100 keys
//   - nesting deeper than 10 levels
//   - string values longer than 10000 characters
//   - reserved key names (__proto__, constructor, prototype)
//   - $-prefixed keys outside the allowed operator set
//   - string values matching script-injection signatures
func SanitizeDocument(doc any) error {
	m, ok := asObject(doc)
	if !ok {
		return fmt.Errorf("%w: top-level value must be an object, got %T", ErrUnsafeDocument, doc)
	}
	return sanitizeObject(m, "$", 1)
}

// asObject accepts the object representations produced by JSON decoding.
func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func sanitizeObject(m map[string]any, path string, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nesting exceeds %d levels at %s", ErrUnsafeDocument, maxDepth, path)
	}
	if len(m) > maxObjectKeys {
		return fmt.Errorf("%w: object at %s has %d keys (max %d)", ErrUnsafeDocument, path, len(m), maxObjectKeys)
	}

	for key, val := range m {
		if err := sanitizeKey(key, path); err != nil {
			return err
		}
		if err := sanitizeValue(val, path+"."+key, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeKey(key, path string) error {
	if _, reserved := reservedKeys[key]; reserved {
		return fmt.Errorf("%w: reserved key %q at %s", ErrUnsafeDocument, key, path)
	}
	if strings.HasPrefix(key, "$") {
		if _, ok := allowedOperators[key]; !ok {
			return fmt.Errorf("%w: operator %q at %s is not permitted", ErrUnsafeDocument, key, path)
		}
	}
	return nil
}

func sanitizeValue(v any, path string, depth int) error {
	switch val := v.(type) {
	case map[string]any:
		return sanitizeObject(val, path, depth)

	case []any:
		if len(val) > maxArrayLen {
			return fmt.Errorf("%w: array at %s has %d elements (max %d)", ErrUnsafeDocument, path, len(val), maxArrayLen)
		}
		for i, elem := range val {
			if err := sanitizeValue(elem, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil

	case string:
		if len(val) > maxStringLen {
			return fmt.Errorf("%w: string at %s is %d chars (max %d)", ErrUnsafeDocument, path, len(val), maxStringLen)
		}
		for _, re := range scriptSignatures {
			if re.MatchString(val) {
				return fmt.Errorf("%w: string at %s matches script signature", ErrUnsafeDocument, path)
			}
		}
		return nil

	default:
		// Numbers, booleans, nil: structurally harmless.
		return nil
	}
}
