package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// InvocationRequest is the resolved input of a single invocation. It is
// built once by the dispatcher and never modified afterwards.
type InvocationRequest struct {
	Runtime          RuntimeKind       `json:"runtime"`
	HandlerMethod    string            `json:"handler_method"`
	Payload          json.RawMessage   `json:"payload"`
	WorkingDirectory string            `json:"working_directory"`
	ExtraArgs        map[string]string `json:"extra_args,omitempty"`
}

// ErrorDetail is the failure half of an Outcome. Native handlers produce a
// StructuredError; everything reached through the external tool produces an
// OpaqueError because the tool has no structured error channel.
type ErrorDetail interface {
	error
	errorDetail()
}

// StructuredError describes an error raised by a native handler.
type StructuredError struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   []string `json:"stackTrace"`
}

func (e *StructuredError) Error() string {
	if e.ErrorType == "" {
		return e.ErrorMessage
	}
	return e.ErrorType + ": " + e.ErrorMessage
}

func (*StructuredError) errorDetail() {}

// OpaqueError carries an arbitrary JSON value as the failure detail.
type OpaqueError struct {
	Raw json.RawMessage
}

// NewOpaqueError wraps text as a JSON string detail.
func NewOpaqueError(text string) *OpaqueError {
	raw, _ := json.Marshal(text)
	return &OpaqueError{Raw: raw}
}

func (e *OpaqueError) Error() string {
	var text string
	if err := json.Unmarshal(e.Raw, &text); err == nil {
		return text
	}
	return string(e.Raw)
}

// Text returns the detail as a string when it is a JSON string.
func (e *OpaqueError) Text() (string, bool) {
	var text string
	if err := json.Unmarshal(e.Raw, &text); err != nil {
		return "", false
	}
	return text, true
}

func (e *OpaqueError) MarshalJSON() ([]byte, error) {
	if len(e.Raw) == 0 {
		return []byte("null"), nil
	}
	return e.Raw, nil
}

func (*OpaqueError) errorDetail() {}

// DecodeErrorDetail restores the error variant from a response message.
// Objects carrying errorType and errorMessage are native errors, anything
// else stays opaque.
func DecodeErrorDetail(raw json.RawMessage) ErrorDetail {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err == nil {
			_, hasType := probe["errorType"]
			_, hasMessage := probe["errorMessage"]
			if hasType && hasMessage {
				var se StructuredError
				if err := json.Unmarshal(trimmed, &se); err == nil {
					return &se
				}
			}
		}
	}
	return &OpaqueError{Raw: append(json.RawMessage(nil), trimmed...)}
}

// Outcome is the single terminal result of an invocation: either a success
// value or a failure detail, never both.
type Outcome struct {
	Value json.RawMessage
	Err   ErrorDetail
}

// Success builds a successful outcome.
func Success(value json.RawMessage) Outcome {
	return Outcome{Value: value}
}

// Failure builds a failed outcome.
func Failure(detail ErrorDetail) Outcome {
	if detail == nil {
		detail = NewOpaqueError("")
	}
	return Outcome{Err: detail}
}

// FailureText builds a failed outcome with an opaque string detail.
func FailureText(text string) Outcome {
	return Failure(NewOpaqueError(text))
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == nil
}

func (o Outcome) String() string {
	if o.OK() {
		return fmt.Sprintf("success(%s)", strings.TrimSpace(string(o.Value)))
	}
	return fmt.Sprintf("failure(%s)", o.Err.Error())
}
