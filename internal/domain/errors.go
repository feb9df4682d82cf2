package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError reports that the requested function is not declared.
type ConfigurationError struct {
	Function string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cannot find function config for function: %s", e.Function)
}

// SpawnError reports that a child process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ParseAmbiguityFault reports that no JSON result could be recovered from
// otherwise clean tool output.
type ParseAmbiguityFault struct {
	Reason string
	Err    error
}

func (e *ParseAmbiguityFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ambiguous output: %s: %v", e.Reason, e.Err)
	}
	return "ambiguous output: " + e.Reason
}

func (e *ParseAmbiguityFault) Unwrap() error { return e.Err }

// InvocationError is returned to the caller when the worker answered with an
// in-band error message. Detail is either a *StructuredError (native
// handler) or an *OpaqueError (foreign tool, spawn failure, parse failure).
type InvocationError struct {
	Function string
	Detail   ErrorDetail
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("function %s failed: %v", e.Function, e.Detail)
}

func (e *InvocationError) Unwrap() error { return e.Detail }

// RuntimeFault reports whether the handler itself threw. A structured detail
// can only come from a native handler.
func (e *InvocationError) RuntimeFault() bool {
	var se *StructuredError
	return errors.As(e.Detail, &se)
}

// TransportFault reports that the worker went away without answering.
// Callers must treat it separately from an in-band InvocationError.
type TransportFault struct {
	Function string
	ExitCode int
	Err      error
}

func (e *TransportFault) Error() string {
	msg := fmt.Sprintf("worker for %s exited with status %d before responding", e.Function, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportFault) Unwrap() error { return e.Err }

// ProtocolError reports a response message that does not follow the
// two-variant result protocol.
type ProtocolError struct {
	Type string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unknown response type: %q", e.Type)
}
