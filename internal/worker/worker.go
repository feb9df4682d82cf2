// Package worker serves a single invocation request inside a worker process.
//
// A worker reads one request from the result channel it inherited from the
// dispatcher, runs the native handler or the foreign-runtime adapter, sends
// exactly one response and exits. Infrastructure faults end the process with
// status 1 and no response; the dispatcher reports those as transport faults.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/foreign"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/protocol"
)

// Options configures a worker.
type Options struct {
	Foreign foreign.Config
	// Timeout bounds native handlers. Foreign invocations use
	// Foreign.Timeout.
	Timeout time.Duration
}

// OptionsFromConfig derives worker options from the shared config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Foreign: foreign.Config{
			Tool:    cfg.Worker.Tool,
			Shell:   cfg.Worker.Shell,
			Timeout: cfg.Worker.Timeout.Std(),
			Strict:  cfg.Worker.Strict,
		},
		Timeout: cfg.Worker.Timeout.Std(),
	}
}

// Worker answers one request on a channel.
type Worker struct {
	ch      *protocol.Channel
	opts    Options
	getenv  func(string) string
	logger  *slog.Logger
	adapter *foreign.Adapter
}

// New creates a worker on ch.
func New(ch *protocol.Channel, opts Options) *Worker {
	return &Worker{
		ch:      ch,
		opts:    opts,
		getenv:  os.Getenv,
		logger:  logging.Op(),
		adapter: foreign.New(opts.Foreign),
	}
}

// Serve receives the request, runs it and sends the response. A returned
// error means no response was sent.
func (w *Worker) Serve(ctx context.Context) error {
	req, err := w.ch.ReceiveRequest()
	if err != nil {
		return fmt.Errorf("receive request: %w", err)
	}

	ctx = observability.ContextFromEnv(ctx, w.getenv)
	ctx, span := observability.StartServerSpan(ctx, "worker.invoke",
		observability.AttrRequestID.String(req.RequestID),
		observability.AttrFlavor.String(string(req.Flavor)),
		observability.AttrHandler.String(req.HandlerMethod),
	)
	defer span.End()

	logger := logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx)).
		With("request_id", req.RequestID, "flavor", req.Flavor, "handler", req.HandlerMethod)
	logger.Debug("worker received request", "runtime", req.Runtime)

	start := time.Now()
	outcome := w.handle(ctx, req, logger)
	logger.Debug("worker finished", "success", outcome.OK(), "duration_ms", time.Since(start).Milliseconds())

	if outcome.OK() {
		observability.SetSpanOK(span)
	} else {
		observability.SetSpanError(span, outcome.Err)
	}

	if err := Respond(w.ch, outcome); err != nil {
		return fmt.Errorf("send response: %w", err)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, req *protocol.Request, logger *slog.Logger) domain.Outcome {
	switch req.Flavor {
	case protocol.FlavorNative:
		if w.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
			defer cancel()
		}
		return RunNative(ctx, req)
	case protocol.FlavorForeign:
		res := w.adapter.WithLogger(logger).Run(ctx, req.Invocation())
		logger.Debug("invoke-local tool exited", "command", res.Command, "exit_code", res.ExitCode,
			"duration_ms", res.Duration.Milliseconds(), "log_lines", logLines(res.DebugLog))
		if res.Stderr != "" {
			logger.Debug("invoke-local tool stderr", "stderr", res.Stderr)
		}
		return res.Outcome
	default:
		return domain.FailureText(fmt.Sprintf("unknown request flavor %q", req.Flavor))
	}
}

// logLines counts the handler log lines printed ahead of the result.
func logLines(debugLog string) int {
	if debugLog == "" {
		return 0
	}
	return strings.Count(debugLog, "\n") + 1
}

// Main is the worker process entry point. It returns the exit status.
func Main(ctx context.Context, opts Options) (code int) {
	logger := logging.Op()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", "panic", r)
			code = 1
		}
	}()

	conn, err := protocol.Inherited()
	if err != nil {
		logger.Error("open result channel", "error", err)
		return 1
	}
	codec, err := protocol.CodecByName(os.Getenv(protocol.EnvCodec))
	if err != nil {
		conn.Close()
		logger.Error("select channel codec", "error", err)
		return 1
	}

	ch := protocol.NewChannel(conn, codec)
	defer ch.Close()

	if err := New(ch, opts).Serve(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		return 1
	}
	return 0
}
