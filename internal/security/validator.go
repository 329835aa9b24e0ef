package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jagadeesh52423/mongo-mcp/internal/log"
)

// Rule identifies which screening rule rejected a command.
type Rule int

const (
	// RuleNone means the command passed every rule.
	RuleNone Rule = iota

	// RuleDangerousOperation marks a mutating operation blocked because
	// writes are not permitted.
	RuleDangerousOperation

	// RuleAdminOperation marks an administrative operation blocked because
	// admin access is not permitted.
	RuleAdminOperation

	// RuleInjectionPattern marks a code-execution escape signature.
	RuleInjectionPattern

	// RuleStructuralComplexity marks a command exceeding the structural
	// complexity ceiling.
	RuleStructuralComplexity

	// RuleMalformedSyntax marks unbalanced structure or a command that
	// matches no accepted grammar shape.
	RuleMalformedSyntax
)

// String returns the stable rule name used in verdicts and error messages.
func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "None"
	case RuleDangerousOperation:
		return "DangerousOperation"
	case RuleAdminOperation:
		return "AdminOperation"
	case RuleInjectionPattern:
		return "InjectionPattern"
	case RuleStructuralComplexity:
		return "StructuralComplexity"
	case RuleMalformedSyntax:
		return "MalformedSyntax"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// Verdict is the result of screening one command.
// A command with Allowed=false must never reach the evaluator.
type Verdict struct {
	Allowed bool
	Rule    Rule
	Detail  string
}

// Options control which operation classes are permitted.
// Both default to false: the agent gets a read-only, non-administrative
// surface unless the operator opts in.
type Options struct {
	AllowWrites bool
	AllowAdmin  bool
}

// maxOpenBraces caps the number of opening braces in one command.
// Guards against algorithmic-complexity abuse (deeply nested documents
// whose validation or parsing cost grows super-linearly).
const maxOpenBraces = 50

// injectionPatterns is the deny-list of code-execution escape signatures.
// These are rejected regardless of AllowWrites/AllowAdmin: there is no
// legitimate reason for an agent-issued data command to contain them.
var injectionPatterns = []*regexp.Regexp{
	// Dynamic code evaluation
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bnew\s+Function\b`),
	regexp.MustCompile(`(?i)\bFunction\s*\(`),
	regexp.MustCompile(`(?i)\bdb\s*\.\s*eval\b`),

	// Server-side JavaScript predicates
	regexp.MustCompile(`\$where\b`),
	regexp.MustCompile(`\$function\b`),
	regexp.MustCompile(`\$accumulator\b`),
	regexp.MustCompile(`(?i)\bmapReduce\s*\(`),

	// Prototype/constructor access (sandbox escape via object graph)
	regexp.MustCompile(`__proto__`),
	regexp.MustCompile(`(?i)\bconstructor\s*[.\[(]`),
	regexp.MustCompile(`(?i)\bprototype\s*[.\[]`),

	// Host/runtime facility access
	regexp.MustCompile(`(?i)\b(process|global|globalThis|require|module)\s*[.\[]`),
	regexp.MustCompile(`(?i)\bload\s*\(`),
	regexp.MustCompile(`(?i)\bsleep\s*\(`),
}

// mutatingPattern matches method calls that modify data or schema.
// Matched as call patterns (name followed by an opening paren) so that a
// collection named "updates" does not trip the rule.
var mutatingPattern = regexp.MustCompile(`(?i)\.\s*(insert|insertOne|insertMany|update|updateOne|updateMany|replaceOne|delete|deleteOne|deleteMany|remove|findAndModify|findOneAndUpdate|findOneAndReplace|findOneAndDelete|bulkWrite|drop|dropDatabase|dropIndex|dropIndexes|createIndex|createIndexes|renameCollection|createCollection)\s*\(`)

// adminPatterns match administrative operations and admin-namespace access.
var adminPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.\s*(serverStatus|replSetGetStatus|getParameter|setParameter|buildInfo|hostInfo|shutdownServer|currentOp|killOp|fsyncLock|fsyncUnlock|adminCommand|runCommand)\s*\(`),
	regexp.MustCompile(`(?i)getSiblingDB\s*\(\s*["']admin["']`),
	regexp.MustCompile(`(?i)\badmin\.\$?[A-Za-z_]`),
}

// shapePatterns enumerate the accepted call shapes. The root accessor is
// optional because validation runs on the raw text, before normalization
// prepends "db.".
var shapePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(db\.)?[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*\s*\(`),
	regexp.MustCompile(`^(db\.)?getCollection\s*\(`),
	regexp.MustCompile(`^(db\.)?collection\s*\(`),
}

// Validator screens raw command text.
// Construct with NewValidator; the zero value is not usable.
type Validator struct {
	logger log.Logger
}

// NewValidator creates a Validator. The logger is used for security-event
// diagnostics only; screening behavior does not depend on it.
func NewValidator(logger log.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// Validate screens a raw command. Rules are evaluated in order and the
// first match wins:
//
//  1. Structural sanity (balance, complexity ceiling)
//  2. Injection signatures (unconditional)
//  3. Mutating operations (unless opts.AllowWrites)
//  4. Administrative operations (unless opts.AllowAdmin)
//  5. Accepted grammar shapes
func (v *Validator) Validate(raw string, opts Options) Verdict {
	cmd := strings.TrimSpace(raw)
	if cmd == "" {
		return v.reject(RuleMalformedSyntax, "command is empty", cmd)
	}

	// 1. Structural sanity
	opens, balanced := scanStructure(cmd)
	if opens > maxOpenBraces {
		return v.reject(RuleStructuralComplexity,
			fmt.Sprintf("%d opening braces exceeds limit of %d", opens, maxOpenBraces), cmd)
	}
	if !balanced {
		return v.reject(RuleMalformedSyntax, "unbalanced braces or brackets", cmd)
	}

	// 2. Injection signatures (never permitted)
	for _, re := range injectionPatterns {
		if re.MatchString(cmd) {
			return v.reject(RuleInjectionPattern,
				fmt.Sprintf("matched injection signature %q", re.String()), cmd)
		}
	}

	// 3. Mutating operations
	if !opts.AllowWrites {
		if m := mutatingPattern.FindStringSubmatch(cmd); m != nil {
			return v.reject(RuleDangerousOperation,
				fmt.Sprintf("operation %q requires write access", m[1]), cmd)
		}
	}

	// 4. Administrative operations
	if !opts.AllowAdmin {
		for _, re := range adminPatterns {
			if re.MatchString(cmd) {
				return v.reject(RuleAdminOperation,
					"administrative operations are not permitted", cmd)
			}
		}
	}

	// 5. Accepted grammar shapes
	matched := false
	for _, re := range shapePatterns {
		if re.MatchString(cmd) {
			matched = true
			break
		}
	}
	if !matched {
		return v.reject(RuleMalformedSyntax, "command does not match an accepted call shape", cmd)
	}

	return Verdict{Allowed: true, Rule: RuleNone}
}

// reject builds a rejection verdict and logs the security event.
func (v *Validator) reject(rule Rule, detail, cmd string) Verdict {
	v.logger.Warn("command rejected",
		"rule", rule.String(),
		"detail", detail,
		"command_length", len(cmd),
		"security_event", "command_rejected")
	return Verdict{Allowed: false, Rule: rule, Detail: detail}
}

// scanStructure counts opening braces and checks brace/bracket/paren
// balance. The scan is string-literal aware: characters inside single or
// double quoted strings (with backslash escapes) do not count.
func scanStructure(s string) (openBraces int, balanced bool) {
	var stack []byte
	var inString bool
	var quote byte

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch c {
			case '\\':
				i++ // skip escaped character
			case quote:
				inString = false
			}
			continue
		}

		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{':
			openBraces++
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '(':
			stack = append(stack, ')')
		case '}', ']', ')':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return openBraces, false
			}
			stack = stack[:len(stack)-1]
		}
	}

	// An unterminated string literal is unbalanced structure too.
	return openBraces, len(stack) == 0 && !inString
}
