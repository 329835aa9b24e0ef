package sandbox

// args.go decodes shell-style argument text into driver values.
//
// Shell document literals allow bare keys and single-quoted strings
// ({name: 'ada', age: {$gt: 21}}), which no JSON decoder accepts. The text
// is first rewritten into extended JSON (keys quoted, single quotes
// converted), then decoded with the driver's extended-JSON unmarshaler so
// type wrappers like {"$date": ...} keep their meaning.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrInvalidArguments indicates argument text that could not be decoded.
var ErrInvalidArguments = errors.New("invalid arguments")

// splitArgs splits argument text on top-level commas. String literals and
// nested brackets are opaque. Empty input yields nil.
func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var parts []string
	var depth int
	var inString bool
	var quote byte
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch c {
			case '\\':
				i++
			case quote:
				inString = false
			}
			continue
		}

		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

// decodeDocument decodes one shell document literal into bson.D, which
// preserves key order (significant for sort specifications and pipeline
// stages). Empty text decodes to an empty document.
func decodeDocument(text string) (bson.D, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return bson.D{}, nil
	}

	jsonText, err := toExtJSON(text)
	if err != nil {
		return nil, err
	}

	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(jsonText), false, &doc); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidArguments, text, err)
	}
	return doc, nil
}

// decodeDocumentArray decodes a shell array of documents (an aggregation
// pipeline) into a slice of ordered documents.
func decodeDocumentArray(text string) ([]bson.D, error) {
	text = strings.TrimSpace(text)
	if text == "" || !strings.HasPrefix(text, "[") {
		return nil, fmt.Errorf("%w: expected an array, got %q", ErrInvalidArguments, text)
	}

	jsonText, err := toExtJSON(text)
	if err != nil {
		return nil, err
	}

	// Wrap so the top-level value is an object; the extended-JSON decoder
	// targets documents.
	var wrapper struct {
		V []bson.D `bson:"v"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+jsonText+`}`), false, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidArguments, text, err)
	}
	return wrapper.V, nil
}

// decodeInt parses a bare integer argument (skip/limit counts).
func decodeInt(text string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected an integer, got %q", ErrInvalidArguments, text)
	}
	return n, nil
}

// decodeString parses a quoted string argument (distinct field names,
// string hints).
func decodeString(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return "", fmt.Errorf("%w: expected a string, got %q", ErrInvalidArguments, text)
	}
	quote := text[0]
	if (quote != '"' && quote != '\'') || text[len(text)-1] != quote {
		return "", fmt.Errorf("%w: expected a string, got %q", ErrInvalidArguments, text)
	}

	var b strings.Builder
	inner := text[1 : len(text)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String(), nil
}

// toExtJSON rewrites a shell literal into extended JSON: bare keys are
// quoted and single-quoted strings become double-quoted. The rewrite is
// purely lexical; it does not validate document structure, which the
// extended-JSON decoder does next.
func toExtJSON(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text) + 16)

	for i := 0; i < len(text); {
		c := text[i]

		switch {
		case c == '"' || c == '\'':
			consumed, err := rewriteString(&b, text[i:])
			if err != nil {
				return "", err
			}
			i += consumed

		case isBareKeyStart(c):
			j := i + 1
			for j < len(text) && isBareKeyChar(text[j]) {
				j++
			}
			word := text[i:j]

			// A bare word followed by ':' is a key; otherwise it is a
			// literal (true, false, null, numbers handled elsewhere).
			k := j
			for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
				k++
			}
			if k < len(text) && text[k] == ':' {
				b.WriteByte('"')
				b.WriteString(word)
				b.WriteByte('"')
			} else {
				b.WriteString(word)
			}
			i = j

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// rewriteString copies one string literal, converting single-quoted form to
// double-quoted and escaping as needed. Returns the number of source bytes
// consumed.
func rewriteString(b *strings.Builder, s string) (int, error) {
	quote := s[0]
	b.WriteByte('"')

	i := 1
	for i < len(s) {
		c := s[i]

		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			if quote == '\'' && next == '\'' {
				// \' has no meaning in JSON; emit the bare quote.
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i += 2
			continue
		}

		if c == quote {
			b.WriteByte('"')
			return i + 1, nil
		}

		if quote == '\'' && c == '"' {
			b.WriteString(`\"`)
			i++
			continue
		}

		b.WriteByte(c)
		i++
	}
	return 0, fmt.Errorf("%w: unterminated string literal", ErrInvalidArguments)
}

func isBareKeyStart(c byte) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isBareKeyChar(c byte) bool {
	return isBareKeyStart(c) || (c >= '0' && c <= '9') || c == '.'
}
