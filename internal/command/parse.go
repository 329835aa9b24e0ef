package command

// parse.go implements the small recursive-descent scan that recognizes the
// command grammar. It replaces whole-string evaluation: a parsed chain maps
// directly onto typed driver calls, so there is no runtime code-evaluation
// facility for injected text to reach.

import (
	"strings"
)

// parsedChain is the internal parse result.
type parsedChain struct {
	// accessor is the collection accessor text, e.g. `users` or
	// `getCollection("users")`.
	accessor string

	// collection is the extracted collection name.
	collection string

	calls []Call
}

// parseChain parses text of the form db.<accessor>.<method>(args)... .
// Returns ok=false on any deviation from the grammar; the caller fails
// open.
func parseChain(text string) (*parsedChain, bool) {
	s := &scanner{src: text}

	if !s.literal("db") || !s.byte('.') {
		return nil, false
	}

	chain := &parsedChain{}

	ident := s.ident()
	if ident == "" {
		return nil, false
	}

	if ident == "getCollection" || ident == "collection" {
		s.spaces()
		args, ok := s.parenArgs()
		if !ok {
			return nil, false
		}
		name, ok := firstStringLiteral(args)
		if !ok || !isIdentifier(name) {
			return nil, false
		}
		chain.accessor = ident + "(" + args + ")"
		chain.collection = name
	} else {
		chain.accessor = ident
		chain.collection = ident
	}

	// Method chain: at least one call required.
	for {
		s.spaces()
		if !s.byte('.') {
			break
		}
		s.spaces()
		name := s.ident()
		if name == "" {
			return nil, false
		}
		s.spaces()
		args, ok := s.parenArgs()
		if !ok {
			return nil, false
		}
		chain.calls = append(chain.calls, Call{Name: name, Args: args})
	}

	s.spaces()
	if !s.done() || len(chain.calls) == 0 {
		return nil, false
	}
	return chain, true
}

// scanner walks the command text. All methods advance past leading spaces
// where the grammar tolerates them.
type scanner struct {
	src string
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) spaces() {
	for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t' || s.src[s.pos] == '\n' || s.src[s.pos] == '\r') {
		s.pos++
	}
}

// literal consumes the exact string lit.
func (s *scanner) literal(lit string) bool {
	if strings.HasPrefix(s.src[s.pos:], lit) {
		s.pos += len(lit)
		return true
	}
	return false
}

// byte consumes one expected byte.
func (s *scanner) byte(c byte) bool {
	if s.pos < len(s.src) && s.src[s.pos] == c {
		s.pos++
		return true
	}
	return false
}

// ident consumes [A-Za-z_][A-Za-z0-9_]*.
func (s *scanner) ident() string {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		isAlpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isAlpha && !(isDigit && s.pos > start) {
			break
		}
		s.pos++
	}
	return s.src[start:s.pos]
}

// parenArgs consumes a balanced parenthesized argument list and returns the
// inner text verbatim. String literals (single or double quoted, with
// backslash escapes) are opaque to the balance scan.
func (s *scanner) parenArgs() (string, bool) {
	if !s.byte('(') {
		return "", false
	}
	start := s.pos
	depth := 1
	var inString bool
	var quote byte

	for s.pos < len(s.src) {
		c := s.src[s.pos]

		if inString {
			switch c {
			case '\\':
				s.pos++ // skip escaped character
			case quote:
				inString = false
			}
			s.pos++
			continue
		}

		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				args := s.src[start:s.pos]
				s.pos++
				return args, true
			}
		}
		s.pos++
	}
	return "", false
}

// firstStringLiteral extracts the first quoted string from argument text.
func firstStringLiteral(args string) (string, bool) {
	i := strings.IndexAny(args, `"'`)
	if i < 0 {
		return "", false
	}
	quote := args[i]
	rest := args[i+1:]

	var b strings.Builder
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		if c == '\\' && j+1 < len(rest) {
			j++
			b.WriteByte(rest[j])
			continue
		}
		if c == quote {
			return b.String(), true
		}
		b.WriteByte(c)
	}
	return "", false
}

// isIdentifier reports whether name matches [A-Za-z_][A-Za-z0-9_]*.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isAlpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isAlpha && !(isDigit && i > 0) {
			return false
		}
	}
	return true
}
