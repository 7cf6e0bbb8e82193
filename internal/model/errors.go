package model

import "errors"

// Error kinds from the propagation policy: execute_* paths convert
// engine/tool failures into result objects, while lifecycle methods
// raise these so callers can distinguish setup failures.
var (
	// ErrConfigError indicates bad input discovered before any side
	// effects: unknown kind, unknown tool, duplicate registration,
	// duplicate pool init.
	ErrConfigError = errors.New("config error")

	// ErrNotFound indicates an unknown sandbox id or tool name.
	ErrNotFound = errors.New("not found")

	// ErrImageUnavailable indicates the sandbox image could not be
	// acquired (missing locally and pull failed).
	ErrImageUnavailable = errors.New("image unavailable")

	// ErrSandboxStartError wraps a container creation/start/tool-binding
	// failure.
	ErrSandboxStartError = errors.New("sandbox start failed")

	// ErrEngineError indicates a transient container-engine failure
	// during exec/stop/remove.
	ErrEngineError = errors.New("engine error")

	// ErrToolExecutionError indicates a tool ran but the sandbox could
	// not produce a result — distinct from a tool returning an
	// ExecError status, which is an expected, recoverable outcome.
	ErrToolExecutionError = errors.New("tool execution error")

	// ErrTimeout indicates a deadline was reached.
	ErrTimeout = errors.New("timeout")

	// ErrPoolInitError indicates pool priming failed partway through.
	ErrPoolInitError = errors.New("pool init error")

	// ErrPoolExhausted indicates no idle pool member was available.
	ErrPoolExhausted = errors.New("pool exhausted")
)

// StartError wraps ErrSandboxStartError with the underlying reason so
// it can be stored verbatim into SandboxInfo.Metadata["error"]. Both
// ErrSandboxStartError and the cause are reachable via errors.Is.
type StartError struct {
	Reason string
	Err    error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return "sandbox start failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "sandbox start failed: " + e.Reason
}

func (e *StartError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSandboxStartError, e.Err}
	}
	return []error{ErrSandboxStartError}
}

// NewStartError builds a StartError from a reason and optional cause.
func NewStartError(reason string, cause error) *StartError {
	return &StartError{Reason: reason, Err: cause}
}
