package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/protocol"
	"github.com/oriys/pulsar/pkg/handler"
)

// RunNative invokes a registered native handler. Returned errors and panics
// become structured errors; the handler's value is encoded as JSON.
func RunNative(ctx context.Context, req *protocol.Request) domain.Outcome {
	name := req.HandlerName()
	fn, ok := handler.Lookup(name)
	if !ok {
		return domain.Failure(&domain.StructuredError{
			ErrorType:    "HandlerNotFoundError",
			ErrorMessage: fmt.Sprintf("handler %s is not registered (module %s)", name, req.Module),
			StackTrace:   []string{},
		})
	}

	done := make(chan domain.Outcome, 1)
	go func() {
		done <- callNative(ctx, fn, req.Payload)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		// The handler goroutine is abandoned; the worker exits right after
		// responding.
		return domain.Failure(&domain.StructuredError{
			ErrorType:    "TimeoutError",
			ErrorMessage: fmt.Sprintf("handler %s: %v", name, ctx.Err()),
			StackTrace:   []string{},
		})
	}
}

func callNative(ctx context.Context, fn handler.Func, payload json.RawMessage) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.Failure(NewStructuredError(&panicError{value: r}, debug.Stack()))
		}
	}()

	value, err := fn(ctx, payload)
	if err != nil {
		return domain.Failure(NewStructuredError(err, stackOf(err)))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return domain.Failure(NewStructuredError(fmt.Errorf("encode handler result: %w", err), nil))
	}
	return domain.Success(data)
}

// stackOf returns a goroutine dump attached to err, if the error carries
// one through a Stack() []byte method.
func stackOf(err error) []byte {
	if s, ok := err.(interface{ Stack() []byte }); ok {
		return s.Stack()
	}
	return nil
}
