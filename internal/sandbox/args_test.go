package sandbox

import (
	"errors"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

// TestSplitArgs tests top-level comma splitting.
func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"single document", `{a: 1}`, []string{`{a: 1}`}},
		{"two documents", `{a: 1}, {b: 1}`, []string{`{a: 1}`, `{b: 1}`}},
		{"comma inside document", `{a: 1, b: 2}`, []string{`{a: 1, b: 2}`}},
		{"comma inside array", `[1, 2], 3`, []string{`[1, 2]`, `3`}},
		{"comma inside string", `{name: "a,b"}, 5`, []string{`{name: "a,b"}`, `5`}},
		{"comma inside single-quoted string", `'a,b', 'c'`, []string{`'a,b'`, `'c'`}},
		{"trailing scalar", `{}, 10`, []string{`{}`, `10`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitArgs(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

// TestToExtJSON tests the shell-to-JSON lexical rewrite.
func TestToExtJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare keys quoted",
			in:   `{status: "active"}`,
			want: `{"status": "active"}`,
		},
		{
			name: "dollar key quoted",
			in:   `{age: {$gt: 21}}`,
			want: `{"age": {"$gt": 21}}`,
		},
		{
			name: "dotted key quoted",
			in:   `{address.city: "Oslo"}`,
			want: `{"address.city": "Oslo"}`,
		},
		{
			name: "single quotes converted",
			in:   `{name: 'ada'}`,
			want: `{"name": "ada"}`,
		},
		{
			name: "already quoted keys untouched",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "bare literals preserved",
			in:   `{ok: true, missing: null, n: 3}`,
			want: `{"ok": true, "missing": null, "n": 3}`,
		},
		{
			name: "colon inside string is not a key marker",
			in:   `{url: "http://x"}`,
			want: `{"url": "http://x"}`,
		},
		{
			name: "escaped single quote",
			in:   `{name: 'it\'s'}`,
			want: `{"name": "it's"}`,
		},
		{
			name: "double quote inside single-quoted string",
			in:   `{q: 'say "hi"'}`,
			want: `{"q": "say \"hi\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toExtJSON(tt.in)
			if err != nil {
				t.Fatalf("toExtJSON(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("toExtJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("unterminated string", func(t *testing.T) {
		_, err := toExtJSON(`{name: "oops}`)
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("expected ErrInvalidArguments, got %v", err)
		}
	})
}

// TestDecodeDocument tests shell document decoding.
func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bson.D
	}{
		{"empty", "", bson.D{}},
		{"empty document", "{}", bson.D{}},
		{
			name: "simple filter",
			in:   `{status: "active"}`,
			want: bson.D{{Key: "status", Value: "active"}},
		},
		{
			name: "key order preserved",
			in:   `{b: 1, a: -1}`,
			want: bson.D{
				{Key: "b", Value: int32(1)},
				{Key: "a", Value: int32(-1)},
			},
		},
		{
			name: "nested operator",
			in:   `{age: {$gt: 21}}`,
			want: bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: int32(21)}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeDocument(tt.in)
			if err != nil {
				t.Fatalf("decodeDocument(%q): %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeDocument(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}

	t.Run("invalid document", func(t *testing.T) {
		_, err := decodeDocument(`{a: }`)
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("expected ErrInvalidArguments, got %v", err)
		}
	})
}

// TestDecodeDocumentArray tests pipeline decoding.
func TestDecodeDocumentArray(t *testing.T) {
	got, err := decodeDocumentArray(`[{$match: {a: 1}}, {$limit: 5}]`)
	if err != nil {
		t.Fatalf("decodeDocumentArray: %v", err)
	}
	want := []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "a", Value: int32(1)}}}},
		{{Key: "$limit", Value: int32(5)}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decodeDocumentArray = %#v, want %#v", got, want)
	}

	if _, err := decodeDocumentArray(`{a: 1}`); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("non-array input: expected ErrInvalidArguments, got %v", err)
	}
	if _, err := decodeDocumentArray(``); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("empty input: expected ErrInvalidArguments, got %v", err)
	}
}

// TestDecodeInt tests bare integer parsing.
func TestDecodeInt(t *testing.T) {
	if n, err := decodeInt(" 42 "); err != nil || n != 42 {
		t.Errorf("decodeInt(\" 42 \") = (%d, %v), want (42, nil)", n, err)
	}
	if _, err := decodeInt("4.5"); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("decodeInt(\"4.5\"): expected ErrInvalidArguments, got %v", err)
	}
	if _, err := decodeInt(""); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("decodeInt(\"\"): expected ErrInvalidArguments, got %v", err)
	}
}

// TestDecodeString tests quoted string parsing.
func TestDecodeString(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		shouldErr bool
	}{
		{`"field"`, "field", false},
		{`'field'`, "field", false},
		{` "padded" `, "padded", false},
		{`"esc\"aped"`, `esc"aped`, false},
		{`bare`, "", true},
		{`"mismatched'`, "", true},
		{`"`, "", true},
	}

	for _, tt := range tests {
		got, err := decodeString(tt.in)
		if tt.shouldErr {
			if !errors.Is(err, ErrInvalidArguments) {
				t.Errorf("decodeString(%q): expected ErrInvalidArguments, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("decodeString(%q) = (%q, %v), want (%q, nil)", tt.in, got, err, tt.want)
		}
	}
}
