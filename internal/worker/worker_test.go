package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/foreign"
	"github.com/oriys/pulsar/internal/protocol"
	"github.com/oriys/pulsar/pkg/handler"
)

type validationError struct {
	field string
}

func (e *validationError) Error() string { return "invalid " + e.field }

var release = make(chan struct{})

func init() {
	handler.Register("worker_test/src.ok", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in map[string]any
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, err
		}
		return map[string]any{"echo": in}, nil
	})
	handler.Register("worker_test/src.invalid", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return nil, &validationError{field: "name"}
	})
	handler.Register("worker_test/src.panics", func(ctx context.Context, payload json.RawMessage) (any, error) {
		panic("kaboom")
	})
	handler.Register("worker_test/src.hangs", func(ctx context.Context, payload json.RawMessage) (any, error) {
		<-release
		return nil, nil
	})
	handler.Register("worker_test/src.huge", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return strings.Repeat("x", protocol.MaxMessageBytes+1024), nil
	})
	handler.Register("worker_test/src.nothing", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return nil, nil
	})
}

// roundTrip serves req on one end of a pipe and returns the response read
// from the other end.
func roundTrip(t *testing.T, opts Options, req *protocol.Request) *protocol.Response {
	t.Helper()
	dispatcherSide, workerSide := net.Pipe()
	parent := protocol.NewChannel(dispatcherSide, protocol.JSONCodec{})
	child := protocol.NewChannel(workerSide, protocol.JSONCodec{})
	defer parent.Close()

	w := New(child, opts)
	w.getenv = func(string) string { return "" }

	served := make(chan error, 1)
	go func() {
		served <- w.Serve(context.Background())
		child.Close()
	}()

	if err := parent.SendRequest(req); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	resp, err := parent.ReceiveResponse()
	if err != nil {
		t.Fatalf("ReceiveResponse: %v", err)
	}
	if err := <-served; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return resp
}

func nativeRequest(handlerMethod, payload string) *protocol.Request {
	return protocol.NewNativeRequest("req-1", "/svc/worker_test/src", "worker_test/src", handlerMethod, json.RawMessage(payload))
}

func structuredDetail(t *testing.T, resp *protocol.Response) *domain.StructuredError {
	t.Helper()
	if resp.Type != protocol.TypeError {
		t.Fatalf("expected error response, got %s (%s)", resp.Type, resp.Value)
	}
	se, ok := domain.DecodeErrorDetail(resp.Error).(*domain.StructuredError)
	if !ok {
		t.Fatalf("expected structured error, got %s", resp.Error)
	}
	return se
}

func TestServe_NativeSuccess(t *testing.T) {
	resp := roundTrip(t, Options{}, nativeRequest("ok", `{"name":"pulsar"}`))
	if resp.Type != protocol.TypeSuccess {
		t.Fatalf("expected success, got %s: %s", resp.Type, resp.Error)
	}
	if string(resp.Value) != `{"echo":{"name":"pulsar"}}` {
		t.Fatalf("value = %s", resp.Value)
	}
}

func TestServe_NativeNilResult(t *testing.T) {
	resp := roundTrip(t, Options{}, nativeRequest("nothing", `{}`))
	if resp.Type != protocol.TypeSuccess || string(resp.Value) != "null" {
		t.Fatalf("expected null success, got %s %s", resp.Type, resp.Value)
	}
}

func TestServe_OversizedResultAnsweredInBand(t *testing.T) {
	resp := roundTrip(t, Options{}, nativeRequest("huge", `{}`))
	if resp.Type != protocol.TypeError {
		t.Fatalf("expected error response, got %s", resp.Type)
	}
	detail := domain.DecodeErrorDetail(resp.Error)
	if _, ok := detail.(*domain.OpaqueError); !ok {
		t.Fatalf("expected opaque detail, got %T", detail)
	}
	if detail.Error() != "result exceeds 8 MiB channel limit" {
		t.Fatalf("detail = %q", detail.Error())
	}
}

func TestServe_NativeError(t *testing.T) {
	se := structuredDetail(t, roundTrip(t, Options{}, nativeRequest("invalid", `{}`)))
	if se.ErrorType != "worker.validationError" {
		t.Fatalf("errorType = %q", se.ErrorType)
	}
	if se.ErrorMessage != "invalid name" {
		t.Fatalf("errorMessage = %q", se.ErrorMessage)
	}
	if se.StackTrace == nil {
		t.Fatal("stackTrace must be present even when empty")
	}
}

func TestServe_NativePanic(t *testing.T) {
	se := structuredDetail(t, roundTrip(t, Options{}, nativeRequest("panics", `{}`)))
	if se.ErrorType != "Panic" || se.ErrorMessage != "kaboom" {
		t.Fatalf("unexpected detail %+v", se)
	}
	if len(se.StackTrace) == 0 {
		t.Fatal("expected a stack trace for a panic")
	}
	if !strings.Contains(se.StackTrace[0], "worker.init") {
		t.Fatalf("first frame should be the panicking handler, got %q", se.StackTrace[0])
	}
	for _, frame := range se.StackTrace {
		if strings.HasPrefix(frame, "goroutine ") || strings.HasPrefix(frame, "\t") || strings.Contains(frame, " +0x") {
			t.Fatalf("frame not cleaned: %q", frame)
		}
	}
}

func TestServe_HandlerNotFound(t *testing.T) {
	se := structuredDetail(t, roundTrip(t, Options{}, nativeRequest("missing", `{}`)))
	if se.ErrorType != "HandlerNotFoundError" {
		t.Fatalf("errorType = %q", se.ErrorType)
	}
	if !strings.Contains(se.ErrorMessage, "worker_test/src.missing") {
		t.Fatalf("errorMessage = %q", se.ErrorMessage)
	}
}

func TestServe_NativeTimeout(t *testing.T) {
	start := time.Now()
	se := structuredDetail(t, roundTrip(t, Options{Timeout: 50 * time.Millisecond}, nativeRequest("hangs", `{}`)))
	if se.ErrorType != "TimeoutError" {
		t.Fatalf("errorType = %q", se.ErrorType)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestServe_Foreign(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	tool := filepath.Join(t.TempDir(), "fake-sls")
	script := "#!/bin/sh\ncat >/dev/null\necho \"invoking $4\"\necho '{\"answer\":42}'\n"
	if err := os.WriteFile(tool, []byte(script), 0755); err != nil {
		t.Fatalf("write tool: %v", err)
	}

	req := protocol.NewForeignRequest("req-2", domain.KindPython, t.TempDir(), "hello", domain.CLIOptions{}, json.RawMessage(`{}`))
	resp := roundTrip(t, Options{Foreign: foreign.Config{Tool: tool}}, req)
	if resp.Type != protocol.TypeSuccess || string(resp.Value) != `{"answer":42}` {
		t.Fatalf("unexpected response %s %s %s", resp.Type, resp.Value, resp.Error)
	}
}

func TestServe_ForeignFailureIsOpaque(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	tool := filepath.Join(t.TempDir(), "fake-sls")
	script := "#!/bin/sh\ncat >/dev/null\nprintf boom >&2\nexit 1\n"
	if err := os.WriteFile(tool, []byte(script), 0755); err != nil {
		t.Fatalf("write tool: %v", err)
	}

	req := protocol.NewForeignRequest("req-3", domain.KindRuby, t.TempDir(), "hello", domain.CLIOptions{}, json.RawMessage(`{}`))
	resp := roundTrip(t, Options{Foreign: foreign.Config{Tool: tool}}, req)
	if resp.Type != protocol.TypeError || string(resp.Error) != `"boom"` {
		t.Fatalf("unexpected response %s %s", resp.Type, resp.Error)
	}
}

func TestServe_UnknownFlavor(t *testing.T) {
	req := &protocol.Request{RequestID: "req-4", Flavor: "wasm", HandlerMethod: "x"}
	resp := roundTrip(t, Options{}, req)
	if resp.Type != protocol.TypeError {
		t.Fatalf("expected error, got %s", resp.Type)
	}
	if _, ok := domain.DecodeErrorDetail(resp.Error).(*domain.OpaqueError); !ok {
		t.Fatalf("expected opaque detail, got %s", resp.Error)
	}
}

func TestServe_NoRequest(t *testing.T) {
	dispatcherSide, workerSide := net.Pipe()
	dispatcherSide.Close()
	w := New(protocol.NewChannel(workerSide, protocol.JSONCodec{}), Options{})
	err := w.Serve(context.Background())
	if !errors.Is(err, protocol.ErrNoResponse) {
		t.Fatalf("expected closed channel error, got %v", err)
	}
}

func TestLogLines(t *testing.T) {
	tests := map[string]int{
		"":                    0,
		"loading handler":     1,
		"loading\nprocessing": 2,
	}
	for in, want := range tests {
		if got := logLines(in); got != want {
			t.Fatalf("logLines(%q) = %d, want %d", in, got, want)
		}
	}
}
