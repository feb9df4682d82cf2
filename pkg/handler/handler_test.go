package handler

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegisterAndLookup(t *testing.T) {
	Register("registry_test.echo", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return payload, nil
	})

	fn, ok := Lookup("registry_test.echo")
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	out, err := fn(context.Background(), json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if string(out.(json.RawMessage)) != `{"a":1}` {
		t.Fatalf("unexpected output %v", out)
	}

	if _, ok := Lookup("registry_test.missing"); ok {
		t.Fatal("unexpected handler for unknown name")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	noop := func(ctx context.Context, payload json.RawMessage) (any, error) { return nil, nil }
	Register("registry_test.dup", noop)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("registry_test.dup", noop)
}

func TestTyped(t *testing.T) {
	type event struct {
		Name string `json:"name"`
	}
	fn := Typed(func(ctx context.Context, e event) (map[string]string, error) {
		return map[string]string{"hello": e.Name}, nil
	})

	out, err := fn(context.Background(), json.RawMessage(`{"name":"pulsar"}`))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if out.(map[string]string)["hello"] != "pulsar" {
		t.Fatalf("unexpected output %v", out)
	}

	if _, err := fn(context.Background(), json.RawMessage(`[`)); err == nil {
		t.Fatal("expected decode error")
	}
}
