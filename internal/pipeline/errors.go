package pipeline

import "fmt"

// Code is the stable error classification surfaced to callers. Codes
// distinguish configuration problems (ConnectionFailed) from usage problems
// (ValidationRejected, MalformedCommand, UnsupportedOperation) from
// transient problems (Timeout).
type Code string

const (
	// CodeValidationRejected: the security validator blocked the command.
	// Never retried; the violated rule is named in the message.
	CodeValidationRejected Code = "ValidationRejected"

	// CodeMalformedCommand: the text matched no accepted grammar shape,
	// had unbalanced structure, or carried undecodable arguments.
	CodeMalformedCommand Code = "MalformedCommand"

	// CodeUnsupportedOperation: the command parsed but named a method
	// outside the evaluable surface. Rephrasing the command may succeed;
	// retrying it verbatim never will.
	CodeUnsupportedOperation Code = "UnsupportedOperation"

	// CodeConnectionFailed: session establishment or liveness check
	// failed. A later call may succeed if the target recovers.
	CodeConnectionFailed Code = "ConnectionFailed"

	// CodeTimeout: evaluation exceeded its deadline. The command may have
	// partially executed server-side.
	CodeTimeout Code = "Timeout"

	// CodeExecutionFault: the data store reported a fault during
	// evaluation.
	CodeExecutionFault Code = "ExecutionFault"
)

// Error is the single typed error crossing the pipeline boundary. No raw
// internal fault is surfaced unwrapped.
type Error struct {
	Code    Code
	Message string

	// Err is the underlying fault, kept for diagnostic context via
	// errors.Is/As; its text is already folded into Message.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying fault for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
