package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		runtime string
		want    RuntimeKind
	}{
		{"python3.9", KindPython},
		{"Python3.11", KindPython},
		{"ruby2.7", KindRuby},
		{"go1.x", KindGo},
		{"nodejs18.x", KindNative},
		{"", KindNative},
		{"java11", KindNative},
	}
	for _, tt := range tests {
		if got := DetectRuntime(tt.runtime); got != tt.want {
			t.Fatalf("DetectRuntime(%q) = %q, want %q", tt.runtime, got, tt.want)
		}
	}
	if KindNative.IsForeign() || !KindRuby.IsForeign() {
		t.Fatal("unexpected IsForeign result")
	}
	if !KindGo.IsCompiled() || KindPython.IsCompiled() {
		t.Fatal("unexpected IsCompiled result")
	}
}

func TestSplitHandler(t *testing.T) {
	tests := []struct {
		handler string
		path    string
		method  string
	}{
		{"src/users.list", "src/users", "list"},
		{"handler", "handler", ""},
		{"a.b.c", "a", "b"},
	}
	for _, tt := range tests {
		path, method := SplitHandler(tt.handler)
		if path != tt.path || method != tt.method {
			t.Fatalf("SplitHandler(%q) = %q, %q", tt.handler, path, method)
		}
	}
}

func TestForeignHandlerMethod(t *testing.T) {
	if got := ForeignHandlerMethod(KindPython, "report", "src/report.handler"); got != "report" {
		t.Fatalf("python: got %q", got)
	}
	if got := ForeignHandlerMethod(KindGo, "resize", "bin/images/resize"); got != "resize" {
		t.Fatalf("go: got %q", got)
	}
}

func TestServiceConfigLookup(t *testing.T) {
	svc := &ServiceConfig{
		Provider: ProviderConfig{Runtime: "nodejs18.x"},
		Functions: map[string]FunctionConfig{
			"b": {Handler: "src/b.handler", Runtime: "python3.9"},
			"a": {Handler: "src/a.handler"},
		},
	}

	fn, ok := svc.Function("a")
	if !ok || fn.Name != "a" {
		t.Fatalf("unexpected lookup %+v, %v", fn, ok)
	}
	if svc.RuntimeFor(fn) != "nodejs18.x" {
		t.Fatalf("expected provider runtime fallback")
	}
	b, _ := svc.Function("b")
	if svc.RuntimeFor(b) != "python3.9" {
		t.Fatalf("expected function runtime to win")
	}
	if _, ok := svc.Function("missing"); ok {
		t.Fatal("unexpected function")
	}
	if names := svc.FunctionNames(); len(names) != 2 || names[0] != "a" {
		t.Fatalf("unexpected names %v", names)
	}

	var nilSvc *ServiceConfig
	if _, ok := nilSvc.Function("a"); ok {
		t.Fatal("nil service must not resolve functions")
	}
}

func TestDecodeErrorDetail(t *testing.T) {
	tests := []struct {
		raw        string
		structured bool
		text       string
	}{
		{`{"errorType":"TypeError","errorMessage":"boom","stackTrace":["a"]}`, true, "TypeError: boom"},
		{`{"errorMessage":"only message"}`, false, `{"errorMessage":"only message"}`},
		{`"Traceback (most recent call last)"`, false, "Traceback (most recent call last)"},
		{`42`, false, "42"},
	}
	for _, tt := range tests {
		detail := DecodeErrorDetail(json.RawMessage(tt.raw))
		_, isStructured := detail.(*StructuredError)
		if isStructured != tt.structured {
			t.Fatalf("DecodeErrorDetail(%s): structured=%v", tt.raw, isStructured)
		}
		if detail.Error() != tt.text {
			t.Fatalf("DecodeErrorDetail(%s).Error() = %q, want %q", tt.raw, detail.Error(), tt.text)
		}
	}
}

func TestOpaqueErrorMarshal(t *testing.T) {
	data, err := json.Marshal(NewOpaqueError("boom"))
	if err != nil || string(data) != `"boom"` {
		t.Fatalf("unexpected encoding %s, %v", data, err)
	}
	data, _ = json.Marshal(&OpaqueError{})
	if string(data) != "null" {
		t.Fatalf("empty opaque error encodes as %s", data)
	}
	if text, ok := (&OpaqueError{Raw: json.RawMessage(`{}`)}).Text(); ok || text != "" {
		t.Fatal("non-string detail must not report text")
	}
}

func TestOutcome(t *testing.T) {
	ok := Success(json.RawMessage(`1`))
	if !ok.OK() || ok.String() != "success(1)" {
		t.Fatalf("unexpected success outcome %s", ok)
	}
	failed := Failure(nil)
	if failed.OK() {
		t.Fatal("Failure(nil) must still be a failure")
	}
	if FailureText("x").String() != "failure(x)" {
		t.Fatalf("unexpected failure text %s", FailureText("x"))
	}
}

func TestInvocationErrorRuntimeFault(t *testing.T) {
	native := &InvocationError{Function: "f", Detail: &StructuredError{ErrorType: "Error", ErrorMessage: "x"}}
	if !native.RuntimeFault() {
		t.Fatal("structured detail is a runtime fault")
	}
	foreign := &InvocationError{Function: "f", Detail: NewOpaqueError("x")}
	if foreign.RuntimeFault() {
		t.Fatal("opaque detail is not a runtime fault")
	}

	tf := &TransportFault{Function: "f", ExitCode: 1, Err: errors.New("eof")}
	if tf.Error() != "worker for f exited with status 1 before responding: eof" {
		t.Fatalf("unexpected message %q", tf.Error())
	}
	if !errors.Is(&SpawnError{Command: "x", Err: tf}, tf) {
		t.Fatal("SpawnError must unwrap")
	}
}
