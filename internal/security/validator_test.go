package security

import (
	"strings"
	"testing"

	"github.com/jagadeesh52423/mongo-mcp/internal/log"
)

// TestValidateReadOnly tests screening with the default read-only options.
func TestValidateReadOnly(t *testing.T) {
	v := NewValidator(log.NewNop())

	tests := []struct {
		name     string
		command  string
		wantRule Rule
		reason   string
	}{
		{
			name:     "simple find",
			command:  `db.users.find({status: "active"})`,
			wantRule: RuleNone,
			reason:   "plain read queries should be allowed",
		},
		{
			name:     "find without db prefix",
			command:  `users.find({})`,
			wantRule: RuleNone,
			reason:   "validation runs before normalization adds the db prefix",
		},
		{
			name:     "aggregate with chained limit",
			command:  `db.orders.aggregate([{$match: {total: {$gt: 100}}}]).limit(5)`,
			wantRule: RuleNone,
			reason:   "aggregation pipelines are a read operation",
		},
		{
			name:     "getCollection accessor",
			command:  `db.getCollection("user-events").find({})`,
			wantRule: RuleNone,
			reason:   "getCollection is an accepted call shape",
		},
		{
			name:     "deleteMany blocked",
			command:  `db.users.deleteMany({})`,
			wantRule: RuleDangerousOperation,
			reason:   "mutating operations require write access",
		},
		{
			name:     "updateOne blocked",
			command:  `db.users.updateOne({_id: 1}, {$set: {a: 1}})`,
			wantRule: RuleDangerousOperation,
			reason:   "mutating operations require write access",
		},
		{
			name:     "drop blocked",
			command:  `db.users.drop()`,
			wantRule: RuleDangerousOperation,
			reason:   "schema changes require write access",
		},
		{
			name:     "collection named updates is fine",
			command:  `db.updates.find({})`,
			wantRule: RuleNone,
			reason:   "mutating names only match as method calls",
		},
		{
			name:     "serverStatus blocked",
			command:  `db.serverStatus()`,
			wantRule: RuleAdminOperation,
			reason:   "administrative operations require admin access",
		},
		{
			name:     "adminCommand blocked",
			command:  `db.adminCommand({shutdown: 1})`,
			wantRule: RuleAdminOperation,
			reason:   "adminCommand is an administrative escape hatch",
		},
		{
			name:     "getSiblingDB admin blocked",
			command:  `db.getSiblingDB("admin").users.find({})`,
			wantRule: RuleAdminOperation,
			reason:   "reaching into the admin database is administrative",
		},
		{
			name:     "dollar where injection",
			command:  `db.users.find({$where: "this.a == 1"})`,
			wantRule: RuleInjectionPattern,
			reason:   "server-side JavaScript predicates are never allowed",
		},
		{
			name:     "eval injection",
			command:  `db.users.find({}); eval("bad()")`,
			wantRule: RuleInjectionPattern,
			reason:   "dynamic code evaluation is never allowed",
		},
		{
			name:     "proto pollution",
			command:  `db.users.find({__proto__: {admin: true}})`,
			wantRule: RuleInjectionPattern,
			reason:   "prototype access is a sandbox escape signature",
		},
		{
			name:     "constructor access",
			command:  `db.users.find({}).constructor("x")`,
			wantRule: RuleInjectionPattern,
			reason:   "constructor access is a sandbox escape signature",
		},
		{
			name:     "mapReduce",
			command:  `db.users.mapReduce(m, r, {out: "x"})`,
			wantRule: RuleInjectionPattern,
			reason:   "mapReduce executes server-side JavaScript",
		},
		{
			name:     "unbalanced braces",
			command:  `db.users.find({status: "active")`,
			wantRule: RuleMalformedSyntax,
			reason:   "unbalanced structure is rejected before evaluation",
		},
		{
			name:     "unterminated string",
			command:  `db.users.find({name: "alice})`,
			wantRule: RuleMalformedSyntax,
			reason:   "unterminated strings are unbalanced structure",
		},
		{
			name:     "empty command",
			command:  "   ",
			wantRule: RuleMalformedSyntax,
			reason:   "blank input matches no call shape",
		},
		{
			name:     "no call shape",
			command:  `show collections`,
			wantRule: RuleMalformedSyntax,
			reason:   "shell helpers are not part of the accepted grammar",
		},
		{
			name:     "braces inside strings do not count",
			command:  `db.logs.find({message: "{{{{unbalanced"})`,
			wantRule: RuleNone,
			reason:   "the structural scan is string-literal aware",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.command, Options{})
			if verdict.Rule != tt.wantRule {
				t.Errorf("Validate(%q) rule = %s, want %s: %s",
					tt.command, verdict.Rule, tt.wantRule, tt.reason)
			}
			if verdict.Allowed != (tt.wantRule == RuleNone) {
				t.Errorf("Validate(%q) allowed = %t, want %t",
					tt.command, verdict.Allowed, tt.wantRule == RuleNone)
			}
		})
	}
}

// TestValidateOptions tests that write/admin gates open with the options.
func TestValidateOptions(t *testing.T) {
	v := NewValidator(log.NewNop())

	tests := []struct {
		name    string
		command string
		opts    Options
		allowed bool
	}{
		{
			name:    "insertOne with writes enabled",
			command: `db.users.insertOne({name: "alice"})`,
			opts:    Options{AllowWrites: true},
			allowed: true,
		},
		{
			name:    "insertOne without writes",
			command: `db.users.insertOne({name: "alice"})`,
			opts:    Options{},
			allowed: false,
		},
		{
			name:    "serverStatus with admin enabled",
			command: `db.serverStatus()`,
			opts:    Options{AllowAdmin: true},
			allowed: true,
		},
		{
			name:    "injection still blocked with everything enabled",
			command: `db.users.find({$where: "1"})`,
			opts:    Options{AllowWrites: true, AllowAdmin: true},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.command, tt.opts)
			if verdict.Allowed != tt.allowed {
				t.Errorf("Validate(%q) allowed = %t, want %t (rule %s)",
					tt.command, verdict.Allowed, tt.allowed, verdict.Rule)
			}
		})
	}
}

// TestValidateComplexityCeiling tests the open-brace ceiling.
func TestValidateComplexityCeiling(t *testing.T) {
	v := NewValidator(log.NewNop())

	// 60 nested documents, well formed but past the ceiling.
	deep := `db.users.find(` + strings.Repeat(`{a: `, 60) + `1` + strings.Repeat(`}`, 60) + `)`
	verdict := v.Validate(deep, Options{})
	if verdict.Rule != RuleStructuralComplexity {
		t.Errorf("deeply nested command: rule = %s, want StructuralComplexity", verdict.Rule)
	}

	// 40 nested documents stays under the ceiling.
	shallow := `db.users.find(` + strings.Repeat(`{a: `, 40) + `1` + strings.Repeat(`}`, 40) + `)`
	verdict = v.Validate(shallow, Options{})
	if !verdict.Allowed {
		t.Errorf("command under the ceiling rejected: rule = %s, detail = %s", verdict.Rule, verdict.Detail)
	}
}

// TestScanStructure tests the string-aware balance scan directly.
func TestScanStructure(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOpens int
		balanced  bool
	}{
		{"empty", "", 0, true},
		{"balanced nesting", "{[()]}", 1, true},
		{"mismatched close", "{]", 1, false},
		{"extra close", ")", 0, false},
		{"unclosed", "{{", 2, false},
		{"braces in double quotes", `"{{{"`, 0, true},
		{"braces in single quotes", `'}'`, 0, true},
		{"escaped quote inside string", `"a\"{" }`, 0, false},
		{"unterminated string", `"abc`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opens, balanced := scanStructure(tt.input)
			if opens != tt.wantOpens || balanced != tt.balanced {
				t.Errorf("scanStructure(%q) = (%d, %t), want (%d, %t)",
					tt.input, opens, balanced, tt.wantOpens, tt.balanced)
			}
		})
	}
}
