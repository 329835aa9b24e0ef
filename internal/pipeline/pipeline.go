// Package pipeline wires the execution core end to end: static screening,
// normalization, pooled connection acquisition, sandboxed evaluation, and
// response size guarding.
//
// One Execute call processes one command. Many calls may be in flight
// concurrently; they are independent except for contention on pooled
// handles. The handle acquired for a command is released in a defer, so
// acquire and release are strictly ordered regardless of success,
// validation failure, or evaluation error.
//
// Screening and normalization run before any network resource is touched:
// a rejected command never costs a connection.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jagadeesh52423/mongo-mcp/internal/command"
	"github.com/jagadeesh52423/mongo-mcp/internal/guard"
	"github.com/jagadeesh52423/mongo-mcp/internal/log"
	"github.com/jagadeesh52423/mongo-mcp/internal/pool"
	"github.com/jagadeesh52423/mongo-mcp/internal/sandbox"
	"github.com/jagadeesh52423/mongo-mcp/internal/security"
)

// Unbounded disables result-limit injection for one request, for callers
// that consume the full result elsewhere.
const Unbounded = -1

// Request is one command execution request. Target must be a resolved
// connection URI (profile resolution is the configuration layer's job).
type Request struct {
	// Command is the shell-style command text. Required.
	Command string

	// Target is the connection URI identifying the pooled handle to use.
	// Required.
	Target string

	// Database is the database name; the executor default applies when
	// empty.
	Database string

	// Timeout bounds evaluation; the executor default applies when zero.
	Timeout time.Duration

	// MaxResults is the limit injected into bare cursor operations.
	// Zero means the executor default; Unbounded disables injection.
	MaxResults int

	// Explain marks the request as issued for plan inspection. It is
	// informational and carried into the execution log; the plan itself
	// is only returned when the command carries an explain() clause.
	Explain bool
}

// Response is one successful execution result. Truncation is a success
// outcome, not an error.
type Response struct {
	// Content is the bounded, serialized result.
	Content string

	// Normalized is the command text actually evaluated.
	Normalized string

	WasTruncated  bool
	OriginalSize  int
	FinalSize     int
	TotalItems    int
	ReturnedItems int

	Elapsed time.Duration
}

// Config assembles an Executor.
type Config struct {
	Pool      *pool.Pool
	Validator *security.Validator
	Evaluator *sandbox.Evaluator
	Guard     *guard.Guard
	Logger    log.Logger

	// Security gates applied to every request.
	Security security.Options

	// Defaults applied when a request leaves the field zero.
	DefaultDatabase   string
	DefaultTimeout    time.Duration
	DefaultMaxResults int
}

// Executor runs the pipeline. Construct with New.
type Executor struct {
	cfg Config
}

// New creates an Executor. All collaborators are required except Logger.
func New(cfg Config) (*Executor, error) {
	if cfg.Pool == nil || cfg.Validator == nil || cfg.Evaluator == nil || cfg.Guard == nil {
		return nil, errors.New("pipeline: pool, validator, evaluator, and guard are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = sandbox.DefaultTimeout
	}
	if cfg.DefaultMaxResults == 0 {
		cfg.DefaultMaxResults = 100
	}
	if cfg.DefaultDatabase == "" {
		cfg.DefaultDatabase = "test"
	}
	return &Executor{cfg: cfg}, nil
}

// Execute processes one request end to end. On failure the returned error
// is always a *Error with a stable code.
func (x *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	logger := x.cfg.Logger.With("request_id", uuid.NewString())

	if req.Command == "" {
		return nil, newError(CodeMalformedCommand, nil, "command is required")
	}
	if req.Target == "" {
		return nil, newError(CodeConnectionFailed, nil, "target is required")
	}

	// 1. Static screening. Runs before any network call so rejected
	// commands cost nothing.
	verdict := x.cfg.Validator.Validate(req.Command, x.cfg.Security)
	if !verdict.Allowed {
		return nil, verdictError(verdict)
	}

	// 2. Normalization (never rejects; unparseable text surfaces at
	// evaluation).
	maxResults := req.MaxResults
	if maxResults == 0 {
		maxResults = x.cfg.DefaultMaxResults
	}
	cmd := command.Normalize(req.Command, maxResults)
	if !cmd.Parsed() {
		return nil, newError(CodeMalformedCommand, nil,
			"command does not match the supported grammar: %q", req.Command)
	}

	logger.Debug("command normalized",
		"collection", cmd.Collection,
		"cursor_op", cmd.IsCursorOp,
		"materialize", cmd.RequiresMaterialization,
		"explain", req.Explain)

	// 3. Connection acquisition. Released unconditionally.
	handle, err := x.cfg.Pool.Acquire(ctx, req.Target)
	if err != nil {
		return nil, newError(CodeConnectionFailed, err,
			"acquiring connection to %s: %v", security.MaskURI(req.Target), err)
	}
	defer x.cfg.Pool.Release(handle)

	// 4. Sandboxed evaluation.
	database := req.Database
	if database == "" {
		database = x.cfg.DefaultDatabase
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = x.cfg.DefaultTimeout
	}

	result, err := x.cfg.Evaluator.Evaluate(ctx, cmd, handle.Client(), database, timeout)
	if err != nil {
		return nil, evaluationError(err, timeout)
	}

	// 5. Size guarding.
	bounded, err := x.cfg.Guard.Bound(result.Payload, 0)
	if err != nil {
		return nil, newError(CodeExecutionFault, err, "bounding result: %v", err)
	}

	logger.Info("command executed",
		"collection", cmd.Collection,
		"elapsed", result.Elapsed,
		"result_bytes", bounded.FinalSize,
		"truncated", bounded.WasTruncated)

	return &Response{
		Content:       bounded.Content,
		Normalized:    cmd.Normalized,
		WasTruncated:  bounded.WasTruncated,
		OriginalSize:  bounded.OriginalSize,
		FinalSize:     bounded.FinalSize,
		TotalItems:    bounded.TotalItems,
		ReturnedItems: bounded.ReturnedItems,
		Elapsed:       result.Elapsed,
	}, nil
}

// Shutdown releases the pool.
func (x *Executor) Shutdown(ctx context.Context) error {
	return x.cfg.Pool.Shutdown(ctx)
}

// verdictError maps a validation verdict to the error taxonomy: structural
// failures are usage errors, everything else is a security rejection named
// after its rule.
func verdictError(v security.Verdict) *Error {
	if v.Rule == security.RuleMalformedSyntax {
		return newError(CodeMalformedCommand, nil, "%s", v.Detail)
	}
	return newError(CodeValidationRejected, nil, "%s: %s", v.Rule, v.Detail)
}

// evaluationError maps evaluator failures: deadline overruns become
// Timeout, grammar and argument problems become MalformedCommand, methods
// outside the evaluable surface become UnsupportedOperation, and everything
// else is a data-store fault surfaced with its original message.
func evaluationError(err error, timeout time.Duration) *Error {
	switch {
	case errors.Is(err, sandbox.ErrTimeout):
		return newError(CodeTimeout, err,
			"evaluation exceeded %s; the command may have partially executed", timeout)
	case errors.Is(err, sandbox.ErrNotParsed), errors.Is(err, sandbox.ErrInvalidArguments):
		return newError(CodeMalformedCommand, err, "%v", err)
	case errors.Is(err, sandbox.ErrUnsupported):
		return newError(CodeUnsupportedOperation, err, "%v", err)
	default:
		return newError(CodeExecutionFault, err, "%v", err)
	}
}
