package command

import (
	"testing"
)

// TestParseChain tests grammar recognition and argument extraction.
func TestParseChain(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		ok         bool
		collection string
		calls      []Call
	}{
		{
			name:       "single call",
			text:       `db.users.find({status: "active"})`,
			ok:         true,
			collection: "users",
			calls:      []Call{{Name: "find", Args: `{status: "active"}`}},
		},
		{
			name:       "chained calls",
			text:       `db.users.find({}).sort({a: 1}).limit(5)`,
			ok:         true,
			collection: "users",
			calls: []Call{
				{Name: "find", Args: `{}`},
				{Name: "sort", Args: `{a: 1}`},
				{Name: "limit", Args: `5`},
			},
		},
		{
			name:       "getCollection accessor",
			text:       `db.getCollection("events").find({})`,
			ok:         true,
			collection: "events",
			calls:      []Call{{Name: "find", Args: `{}`}},
		},
		{
			name:       "collection accessor single quotes",
			text:       `db.collection('logs').find({})`,
			ok:         true,
			collection: "logs",
			calls:      []Call{{Name: "find", Args: `{}`}},
		},
		{
			name: "nested parens in args",
			text: `db.users.find({ts: {$gt: ISODate("2024-01-01")}})`,
			ok:   true, collection: "users",
			calls: []Call{{Name: "find", Args: `{ts: {$gt: ISODate("2024-01-01")}}`}},
		},
		{
			name: "paren inside string arg",
			text: `db.users.find({name: ")("})`,
			ok:   true, collection: "users",
			calls: []Call{{Name: "find", Args: `{name: ")("}`}},
		},
		{
			name: "no method call",
			text: `db.users`,
			ok:   false,
		},
		{
			name: "missing prefix",
			text: `users.find({})`,
			ok:   false,
		},
		{
			name: "unbalanced args",
			text: `db.users.find(({})`,
			ok:   false,
		},
		{
			name: "trailing text",
			text: `db.users.find({}); drop`,
			ok:   false,
		},
		{
			name: "getCollection with non-identifier name",
			text: `db.getCollection("a b").find({})`,
			ok:   false,
		},
		{
			name: "getCollection without string arg",
			text: `db.getCollection(users).find({})`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, ok := parseChain(tt.text)
			if ok != tt.ok {
				t.Fatalf("parseChain(%q) ok = %t, want %t", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if chain.collection != tt.collection {
				t.Errorf("collection = %q, want %q", chain.collection, tt.collection)
			}
			if len(chain.calls) != len(tt.calls) {
				t.Fatalf("got %d calls, want %d: %v", len(chain.calls), len(tt.calls), chain.calls)
			}
			for i, want := range tt.calls {
				if chain.calls[i] != want {
					t.Errorf("call %d = %+v, want %+v", i, chain.calls[i], want)
				}
			}
		})
	}
}

// TestFirstStringLiteral tests quoted-string extraction from argument text.
func TestFirstStringLiteral(t *testing.T) {
	tests := []struct {
		args string
		want string
		ok   bool
	}{
		{`"users"`, "users", true},
		{`'users'`, "users", true},
		{` "users" , {x: 1}`, "users", true},
		{`"esc\"aped"`, `esc"aped`, true},
		{`users`, "", false},
		{`"unterminated`, "", false},
		{``, "", false},
	}

	for _, tt := range tests {
		got, ok := firstStringLiteral(tt.args)
		if got != tt.want || ok != tt.ok {
			t.Errorf("firstStringLiteral(%q) = (%q, %t), want (%q, %t)",
				tt.args, got, ok, tt.want, tt.ok)
		}
	}
}

// TestIsIdentifier tests the collection name shape check.
func TestIsIdentifier(t *testing.T) {
	valid := []string{"users", "_tmp", "events2024", "A"}
	invalid := []string{"", "2users", "a b", "a-b", "a.b", "a$b"}

	for _, name := range valid {
		if !isIdentifier(name) {
			t.Errorf("isIdentifier(%q) = false, want true", name)
		}
	}
	for _, name := range invalid {
		if isIdentifier(name) {
			t.Errorf("isIdentifier(%q) = true, want false", name)
		}
	}
}
