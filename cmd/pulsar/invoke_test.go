package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oriys/pulsar/internal/domain"
)

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(`{"name":"file"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "default", want: `{}`},
		{name: "data", data: `{"name":"inline"}`, want: `{"name":"inline"}`},
		{name: "file", path: path, want: `{"name":"file"}`},
		{name: "both", data: `{}`, path: path, wantErr: true},
		{name: "invalid", data: `{`, wantErr: true},
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.json"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(tt.data, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPayload: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	err := describeError(&domain.InvocationError{
		Function: "hello",
		Detail:   &domain.StructuredError{ErrorType: "Error", ErrorMessage: "boom", StackTrace: []string{}},
	})
	if !strings.Contains(err.Error(), `"errorMessage": "boom"`) {
		t.Fatalf("unexpected description %q", err)
	}

	plain := &domain.ConfigurationError{Function: "x"}
	if describeError(plain) != error(plain) {
		t.Fatal("non-invocation errors pass through")
	}
}

func TestTarget(t *testing.T) {
	fn := domain.FunctionConfig{Name: "report", Handler: "src/report.handler"}
	if got := target(domain.KindPython, fn); got != "invoke local -f report" {
		t.Fatalf("got %q", got)
	}
	if got := target(domain.KindNative, domain.FunctionConfig{Handler: "src/hello.handler"}); got != "registered" {
		t.Fatalf("got %q", got)
	}
	if got := target(domain.KindNative, domain.FunctionConfig{Handler: "src/none.handler"}); got != "not registered" {
		t.Fatalf("got %q", got)
	}
}
