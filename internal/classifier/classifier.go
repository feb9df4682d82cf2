// Package classifier decides the outcome of a foreign-runtime invocation
// from the child's exit code and its un-framed output streams.
package classifier

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/logging"
)

// tracebackMarker flags a foreign stack trace anywhere in standard output,
// whatever the exit code.
const tracebackMarker = "Traceback"

// Options configures a Classifier.
type Options struct {
	// Strict makes the line scan fail instead of guessing when no result
	// line is found.
	Strict bool
	// Extractor overrides the extractor picked for the runtime family.
	Extractor ResultExtractor
	Logger    *slog.Logger
}

// Classifier accumulates the output of one child process and decides the
// invocation outcome once the child exited.
type Classifier struct {
	kind      domain.RuntimeKind
	extractor ResultExtractor
	logger    *slog.Logger
	acc       Accumulator

	once     sync.Once
	outcome  domain.Outcome
	debugLog string
}

// New creates a classifier for a runtime family.
func New(kind domain.RuntimeKind, opts Options) *Classifier {
	extractor := opts.Extractor
	if extractor == nil {
		extractor = ExtractorFor(kind, opts.Strict)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Op()
	}
	return &Classifier{kind: kind, extractor: extractor, logger: logger}
}

// OnStdout feeds a standard-output chunk.
func (c *Classifier) OnStdout(chunk []byte) {
	c.acc.AppendStdout(chunk)
}

// OnStderr feeds a standard-error chunk.
func (c *Classifier) OnStderr(chunk []byte) {
	c.acc.AppendStderr(chunk)
}

// Accumulator exposes the buffered streams.
func (c *Classifier) Accumulator() *Accumulator {
	return &c.acc
}

// DebugLog returns the handler log lines separated from the result.
func (c *Classifier) DebugLog() string {
	return c.debugLog
}

// Decide computes the outcome for the given exit code. Only the first call
// computes; later calls return the same outcome.
func (c *Classifier) Decide(exitCode int) domain.Outcome {
	c.once.Do(func() {
		c.outcome = c.decide(exitCode)
	})
	return c.outcome
}

func (c *Classifier) decide(exitCode int) domain.Outcome {
	stdout := c.acc.Stdout()
	stderr := c.acc.StderrLast()

	if stdout == "" {
		return domain.FailureText(stderr)
	}
	if strings.Contains(stdout, tracebackMarker) {
		return domain.FailureText(stdout)
	}
	if exitCode != 0 {
		return domain.FailureText(stdout)
	}

	result, debugLog, err := c.extractor.Extract(stdout)
	c.debugLog = debugLog
	if debugLog != "" {
		c.logger.Info("function logs", "runtime", c.kind, "output", debugLog)
	}
	if err != nil {
		// The tool exited cleanly but printed no usable result. Language
		// errors in interpreted handlers end up here too, since the tool
		// reports them on stdout with exit code 0.
		if stderr != "" {
			c.logger.Error("invocation returned an error", "runtime", c.kind, "error", err, "stderr", stderr)
			return domain.FailureText(stderr)
		}
		c.logger.Error("invocation returned an error", "runtime", c.kind, "error", err, "stdout", stdout)
		return domain.FailureText(stdout)
	}
	return domain.Success(result)
}
