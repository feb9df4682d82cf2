// Package protocol implements the result channel between the dispatcher and
// a worker process: one request in, one response out, then the worker exits.
//
// Frames use a 4-byte big-endian length prefix followed by the encoded body.
// The body codec is JSON by default; a protobuf codec built on structpb is
// available for callers that prefer a binary body.
package protocol

import (
	"encoding/json"

	"github.com/oriys/pulsar/internal/domain"
)

// Flavor selects the worker implementation that serves a request.
type Flavor string

const (
	FlavorNative  Flavor = "native"
	FlavorForeign Flavor = "foreign"
)

// Response types. No other values are defined.
const (
	TypeSuccess = "success"
	TypeError   = "error"
)

// Request is the single inbound message a worker receives. Native requests
// fill Module/HandlerPath/HandlerMethod; foreign requests fill Runtime,
// ServerlessDirectory, HandlerMethod and CLIOptions.
type Request struct {
	RequestID string `json:"requestId,omitempty"`
	Flavor    Flavor `json:"flavor"`

	Module        string `json:"module,omitempty"`
	HandlerPath   string `json:"handlerPath,omitempty"`
	HandlerMethod string `json:"handlerMethod"`

	Runtime             domain.RuntimeKind `json:"runtime,omitempty"`
	ServerlessDirectory string             `json:"serverlessDirectory,omitempty"`
	CLIOptions          domain.CLIOptions  `json:"cliOptions"`

	Payload json.RawMessage `json:"payload"`
}

// NewNativeRequest builds the request for the native worker.
func NewNativeRequest(requestID, module, handlerPath, handlerMethod string, payload json.RawMessage) *Request {
	return &Request{
		RequestID:     requestID,
		Flavor:        FlavorNative,
		Module:        module,
		HandlerPath:   handlerPath,
		HandlerMethod: handlerMethod,
		Payload:       payload,
	}
}

// NewForeignRequest builds the request for a foreign-runtime worker.
func NewForeignRequest(requestID string, kind domain.RuntimeKind, dir, handlerMethod string, opts domain.CLIOptions, payload json.RawMessage) *Request {
	return &Request{
		RequestID:           requestID,
		Flavor:              FlavorForeign,
		Runtime:             kind,
		ServerlessDirectory: dir,
		HandlerMethod:       handlerMethod,
		CLIOptions:          opts,
		Payload:             payload,
	}
}

// HandlerName is the registry key of a native request ("path.method").
func (r *Request) HandlerName() string {
	if r.HandlerMethod == "" {
		return r.HandlerPath
	}
	return r.HandlerPath + "." + r.HandlerMethod
}

// Invocation converts a foreign request into the adapter's input.
func (r *Request) Invocation() domain.InvocationRequest {
	extra := map[string]string{}
	if r.CLIOptions.Stage != "" {
		extra["stage"] = r.CLIOptions.Stage
	}
	return domain.InvocationRequest{
		Runtime:          r.Runtime,
		HandlerMethod:    r.HandlerMethod,
		Payload:          r.Payload,
		WorkingDirectory: r.ServerlessDirectory,
		ExtraArgs:        extra,
	}
}

// Response is the single outbound message of a worker.
type Response struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

// SuccessResponse wraps a result value. A missing value is sent as null.
func SuccessResponse(value json.RawMessage) *Response {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return &Response{Type: TypeSuccess, Value: value}
}

// ErrorResponse wraps an already encoded error detail.
func ErrorResponse(detail json.RawMessage) *Response {
	if len(detail) == 0 {
		detail = json.RawMessage(`""`)
	}
	return &Response{Type: TypeError, Error: detail}
}
