// Package foreign runs handlers of non-native runtimes through the external
// invoke-local tool and classifies what the tool prints.
package foreign

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/syntax"

	"github.com/oriys/pulsar/internal/classifier"
	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/logging"
)

const (
	DefaultTool  = "sls"
	DefaultShell = "/bin/bash"

	defaultWaitDelay = 2 * time.Second
)

// Config configures the adapter.
type Config struct {
	// Tool is the invoke-local executable.
	Tool string
	// Shell runs the tool command line through "<shell> -c". Empty execs
	// the tool directly.
	Shell string
	// Timeout bounds a single invocation. Zero means no timeout: a hung
	// tool blocks the worker until it exits.
	Timeout time.Duration
	// Strict makes result extraction fail instead of guessing.
	Strict bool
	// Env is the child environment. Nil inherits the worker's environment,
	// which the dispatcher already merged.
	Env []string
}

// Result is the outcome of one tool run plus what was observed on the way.
type Result struct {
	Outcome  domain.Outcome
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	DebugLog string
	Duration time.Duration
}

// Adapter launches the invoke-local tool for one request at a time.
type Adapter struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an adapter.
func New(cfg Config) *Adapter {
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	return &Adapter{cfg: cfg, logger: logging.Op()}
}

// WithLogger returns a copy of the adapter logging to l.
func (a *Adapter) WithLogger(l *slog.Logger) *Adapter {
	cp := *a
	cp.logger = l
	return &cp
}

// Args returns the tool arguments for req.
func Args(req domain.InvocationRequest) []string {
	args := []string{"invoke", "local", "-f", req.HandlerMethod}
	if stage := req.ExtraArgs["stage"]; stage != "" {
		args = append(args, "-s", stage)
	}
	return args
}

// Invoke runs the tool and returns the classified outcome.
func (a *Adapter) Invoke(ctx context.Context, req domain.InvocationRequest) domain.Outcome {
	return a.Run(ctx, req).Outcome
}

// Run runs the tool and returns the outcome with the captured streams.
func (a *Adapter) Run(ctx context.Context, req domain.InvocationRequest) *Result {
	start := time.Now()
	res := &Result{}
	defer func() { res.Duration = time.Since(start) }()

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	cmd, line, err := a.command(ctx, req)
	res.Command = line
	if err != nil {
		res.Outcome = domain.FailureText(err.Error())
		return res
	}

	c := classifier.New(req.Runtime, classifier.Options{Strict: a.cfg.Strict, Logger: a.logger})
	cmd.Stdout = chunkWriter(c.OnStdout)
	cmd.Stderr = chunkWriter(c.OnStderr)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		res.Outcome = domain.FailureText((&domain.SpawnError{Command: line, Err: err}).Error())
		return res
	}

	a.logger.Debug("spawning invoke-local tool", "command", line, "dir", req.WorkingDirectory, "runtime", req.Runtime)
	if err := cmd.Start(); err != nil {
		spawnErr := &domain.SpawnError{Command: line, Err: err}
		a.logger.Error("failed to spawn invoke-local tool", "error", spawnErr)
		res.Outcome = domain.FailureText(spawnErr.Error())
		return res
	}

	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		_, err := stdin.Write(payloadLine(req.Payload))
		return err
	})

	waitErr := cmd.Wait()
	if err := g.Wait(); err != nil && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, os.ErrClosed) {
		a.logger.Warn("failed to write payload to tool", "error", err)
	}

	acc := c.Accumulator()
	res.Stdout = acc.Stdout()
	res.Stderr = acc.StderrAll()
	res.ExitCode = exitCode(cmd, waitErr)

	if ctx.Err() == context.DeadlineExceeded {
		res.Outcome = domain.FailureText(fmt.Sprintf("invocation timed out after %s", a.cfg.Timeout))
		return res
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			a.logger.Warn("tool wait failed", "error", waitErr)
		}
	}

	res.Outcome = c.Decide(res.ExitCode)
	res.DebugLog = c.DebugLog()
	return res
}

func (a *Adapter) command(ctx context.Context, req domain.InvocationRequest) (*exec.Cmd, string, error) {
	args := Args(req)

	var cmd *exec.Cmd
	var line string
	if a.cfg.Shell != "" {
		quoted := make([]string, 0, len(args)+1)
		for _, word := range append([]string{a.cfg.Tool}, args...) {
			q, err := syntax.Quote(word, syntax.LangBash)
			if err != nil {
				return nil, word, fmt.Errorf("quote %q: %w", word, err)
			}
			quoted = append(quoted, q)
		}
		line = strings.Join(quoted, " ")
		cmd = exec.CommandContext(ctx, a.cfg.Shell, "-c", line)
	} else {
		line = strings.Join(append([]string{a.cfg.Tool}, args...), " ")
		cmd = exec.CommandContext(ctx, a.cfg.Tool, args...)
	}

	cmd.Dir = req.WorkingDirectory
	cmd.Env = a.cfg.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if a.cfg.Timeout > 0 {
		// Grandchildren of the shell may keep the output pipes open after
		// the shell is killed.
		cmd.WaitDelay = defaultWaitDelay
	}
	return cmd, line, nil
}

// payloadLine renders the payload as one line of JSON.
func payloadLine(payload json.RawMessage) []byte {
	if len(bytes.TrimSpace(payload)) == 0 {
		return []byte("null\n")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		buf.Reset()
		buf.Write(bytes.ReplaceAll(payload, []byte("\n"), nil))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// chunkWriter hands every write to fn as one chunk. exec copies each read
// from the child's pipe into a single Write call.
type chunkWriter func([]byte)

func (w chunkWriter) Write(p []byte) (int, error) {
	chunk := make([]byte, len(p))
	copy(chunk, p)
	w(chunk)
	return len(p), nil
}
