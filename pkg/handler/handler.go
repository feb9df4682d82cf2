// Package handler is the registry of native function handlers.
//
// Native handlers are compiled into the worker binary and registered under
// their declared handler name, "path.method", usually from an init func:
//
//	func init() {
//		handler.Register("src/users.list", listUsers)
//	}
//
// A handler returns any JSON-encodable value. A returned error or a panic is
// reported to the caller as a structured error with the error's type name,
// message and stack.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Func is a native function handler.
type Func func(ctx context.Context, payload json.RawMessage) (any, error)

var (
	mu       sync.RWMutex
	registry = map[string]Func{}
)

// Register adds fn under name. Registering a name twice panics.
func Register(name string, fn Func) {
	if fn == nil {
		panic("handler: nil handler for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("handler: %s registered twice", name))
	}
	registry[name] = fn
}

// Lookup returns the handler registered under name.
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered handler names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Typed adapts a handler with a concrete event type. The payload is decoded
// into In before fn is called.
func Typed[In any, Out any](fn func(ctx context.Context, event In) (Out, error)) Func {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var event In
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event); err != nil {
				return nil, fmt.Errorf("decode event: %w", err)
			}
		}
		return fn(ctx, event)
	}
}
