package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/protocol"
)

// Encode turns an outcome into the response message. Native errors keep
// their structure; any other detail is sent verbatim.
func Encode(outcome domain.Outcome) (*protocol.Response, error) {
	if outcome.OK() {
		return protocol.SuccessResponse(outcome.Value), nil
	}
	detail, err := json.Marshal(outcome.Err)
	if err != nil {
		return nil, fmt.Errorf("encode error detail: %w", err)
	}
	return protocol.ErrorResponse(detail), nil
}

// Respond encodes the outcome and sends it. It may succeed only once per
// channel. An outcome that cannot be encoded or exceeds the channel limit is
// replaced by an in-band failure describing why.
func Respond(ch *protocol.Channel, outcome domain.Outcome) error {
	resp, err := Encode(outcome)
	if err == nil {
		err = ch.Respond(resp)
		if !errors.Is(err, protocol.ErrMessageTooLarge) {
			return err
		}
		err = fmt.Errorf("%s exceeds %d MiB channel limit", outcomeKind(outcome), protocol.MaxMessageBytes>>20)
	}
	fallback, ferr := Encode(domain.FailureText(err.Error()))
	if ferr != nil {
		return ferr
	}
	return ch.Respond(fallback)
}

func outcomeKind(outcome domain.Outcome) string {
	if outcome.OK() {
		return "result"
	}
	return "error detail"
}

// NewStructuredError describes a native handler error. stack is a goroutine
// dump as produced by runtime/debug.Stack; it may be nil.
func NewStructuredError(err error, stack []byte) *domain.StructuredError {
	return &domain.StructuredError{
		ErrorType:    errorTypeName(err),
		ErrorMessage: err.Error(),
		StackTrace:   ParseStack(stack),
	}
}

func errorTypeName(err error) string {
	if p, ok := err.(*panicError); ok {
		if inner, ok := p.value.(error); ok {
			return errorTypeName(inner)
		}
		return "Panic"
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	if pkg := t.PkgPath(); pkg != "" {
		return pkg[strings.LastIndex(pkg, "/")+1:] + "." + t.Name()
	}
	return t.Name()
}

// ParseStack splits a goroutine dump into one entry per frame. The
// goroutine header is dropped, the tab before each source location and the
// trailing pc offset are stripped. For a panic dump only the frames below
// the panic call are kept.
func ParseStack(stack []byte) []string {
	frames := []string{}
	if len(stack) == 0 {
		return frames
	}

	lines := strings.Split(strings.TrimRight(string(stack), "\n"), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "goroutine ") {
		lines = lines[1:]
	}

	for i := 0; i < len(lines); i++ {
		fn := strings.TrimSpace(lines[i])
		if fn == "" {
			continue
		}
		location := ""
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
			location = strings.TrimSpace(lines[i+1])
			if idx := strings.LastIndex(location, " +0x"); idx >= 0 {
				location = location[:idx]
			}
			i++
		}
		if strings.HasPrefix(fn, "panic(") {
			frames = frames[:0]
			continue
		}
		if strings.HasPrefix(fn, "runtime/debug.Stack(") {
			continue
		}
		if location != "" {
			frames = append(frames, fn+" "+location)
		} else {
			frames = append(frames, fn)
		}
	}
	return frames
}

// panicError wraps a recovered panic value.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.value)
}

func (p *panicError) Unwrap() error {
	err, _ := p.value.(error)
	return err
}
