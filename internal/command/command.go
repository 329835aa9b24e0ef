// Package command normalizes shell-style database commands into a
// canonical, parsed form.
//
// The accepted grammar (informal EBNF):
//
//	command    := "db." accessor { "." method "(" args ")" }
//	accessor   := collection | ("getCollection" | "collection") "(" args ")"
//	collection := [A-Za-z_][A-Za-z0-9_]*
//
// Normalization rewrites a human-supplied fragment into a fully-qualified
// invocation: it guarantees the "db." root accessor, determines whether the
// trailing call produces a cursor that must be materialized, and injects a
// result-count limit clause when one can be inserted without conflicting
// with the rest of the chain.
//
// Normalization never rejects a command. If the text cannot be parsed
// against the grammar, the command passes through with the root accessor
// ensured and no other rewriting; the evaluator rejects it later with a
// typed error. Likewise, if a cursor command has no safe limit insertion
// point, the limit is silently skipped. Both are deliberate fail-open
// choices: availability of the pipeline over strictness of the rewrite.
package command

import (
	"strconv"
	"strings"
)

// Method name classes recognized in a call chain.
var (
	cursorMethods = map[string]bool{"find": true, "aggregate": true}

	// Chainable clauses that may follow a cursor method and still leave a
	// cursor. Limit is injected after the last of these.
	chainMethods = map[string]bool{
		"sort": true, "skip": true, "limit": true,
		"project": true, "projection": true, "hint": true,
	}

	// Terminal consumers that preclude limit injection: they either
	// iterate the cursor themselves, transform it, or change the result
	// shape entirely.
	terminalMethods = map[string]bool{
		"forEach": true, "map": true, "explain": true, "count": true,
	}

	// Materializers force the cursor into a concrete sequence.
	materializeMethods = map[string]bool{"toArray": true}
)

// Call is a single invocation in a parsed chain. Args holds the raw,
// balanced argument text exactly as written (without the surrounding
// parentheses).
type Call struct {
	Name string
	Args string
}

// Command is the result of normalizing one raw command.
type Command struct {
	// Raw is the original text as supplied by the caller.
	Raw string

	// Normalized always begins with the "db." root accessor. For
	// parseable cursor commands it contains exactly one limit clause
	// unless the chain already had one or a conflicting terminal call.
	Normalized string

	// Collection is the target collection name, empty if the text did
	// not parse.
	Collection string

	// Calls is the parsed method chain, nil if the text did not parse.
	// The evaluator maps these onto typed driver operations.
	Calls []Call

	// IsCursorOp reports whether the chain contains a collection-scan or
	// aggregation call whose natural result is a lazily-iterated cursor.
	IsCursorOp bool

	// HasExplicitLimit reports whether the chain carried a limit clause
	// before normalization.
	HasExplicitLimit bool

	// RequiresMaterialization reports whether the chain ends in a
	// cursor-returning call with no terminal consumer, so the evaluator
	// must drain the cursor into a concrete sequence.
	RequiresMaterialization bool
}

// Parsed reports whether the command text matched the grammar.
func (c *Command) Parsed() bool {
	return len(c.Calls) > 0
}

// Normalize rewrites raw into canonical form. maxResults is the limit to
// inject for cursor operations; values <= 0 disable injection entirely
// (the caller wants an unbounded cursor, e.g. when streaming elsewhere).
func Normalize(raw string, maxResults int) Command {
	text := strings.TrimSpace(raw)
	text = strings.TrimSuffix(text, ";")
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "db.") {
		text = "db." + text
	}

	cmd := Command{Raw: raw, Normalized: text}

	chain, ok := parseChain(text)
	if !ok {
		// Fail-open: unparseable text passes through with only the root
		// accessor ensured.
		return cmd
	}

	cmd.Collection = chain.collection
	cmd.Calls = chain.calls

	for _, call := range chain.calls {
		if cursorMethods[call.Name] {
			cmd.IsCursorOp = true
		}
		if call.Name == "limit" {
			cmd.HasExplicitLimit = true
		}
	}

	if shouldInjectLimit(&cmd, maxResults) {
		cmd.Calls = injectLimit(cmd.Calls, maxResults)
	}

	cmd.RequiresMaterialization = requiresMaterialization(cmd.Calls)
	cmd.Normalized = rebuild(chain.accessor, cmd.Calls)
	return cmd
}

// shouldInjectLimit decides whether a limit clause can be added without
// conflicting with the existing chain.
func shouldInjectLimit(cmd *Command, maxResults int) bool {
	if maxResults <= 0 {
		return false
	}
	if !cmd.IsCursorOp || cmd.HasExplicitLimit {
		return false
	}
	for _, call := range cmd.Calls {
		if terminalMethods[call.Name] {
			return false
		}
	}
	return true
}

// injectLimit inserts a limit call: immediately before a trailing
// materializer if present, otherwise at the end of the chain (which, for a
// parsed chain, is also "after the last chainable clause").
func injectLimit(calls []Call, maxResults int) []Call {
	limit := Call{Name: "limit", Args: strconv.Itoa(maxResults)}

	last := len(calls) - 1
	if materializeMethods[calls[last].Name] {
		out := make([]Call, 0, len(calls)+1)
		out = append(out, calls[:last]...)
		out = append(out, limit, calls[last])
		return out
	}
	return append(calls, limit)
}

// requiresMaterialization reports whether the chain still ends in a lazy
// cursor: a cursor method, or a chainable clause following one.
func requiresMaterialization(calls []Call) bool {
	if len(calls) == 0 {
		return false
	}
	hasCursor := false
	for _, call := range calls {
		if cursorMethods[call.Name] {
			hasCursor = true
		}
	}
	last := calls[len(calls)-1].Name
	return hasCursor && (cursorMethods[last] || chainMethods[last])
}

// rebuild reconstructs canonical command text from the accessor and chain.
// Argument text is preserved verbatim; inter-call whitespace is dropped.
func rebuild(accessor string, calls []Call) string {
	var b strings.Builder
	b.WriteString("db.")
	b.WriteString(accessor)
	for _, call := range calls {
		b.WriteByte('.')
		b.WriteString(call.Name)
		b.WriteByte('(')
		b.WriteString(call.Args)
		b.WriteByte(')')
	}
	return b.String()
}
