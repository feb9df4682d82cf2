// Package dispatcher runs one function invocation in a fresh worker
// process.
//
// Each call resolves the function's runtime and handler, builds the worker
// environment, starts a worker with a private result channel, sends one
// request and waits for exactly one response. The worker always exits after
// answering.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/pulsar/internal/awsenv"
	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/logsink"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/protocol"
)

const (
	// workerGrace is added to the invocation timeout before the dispatcher
	// kills a worker that has not answered.
	workerGrace     = 5 * time.Second
	workerWaitDelay = 2 * time.Second
)

// Options configures a Dispatcher. The zero value is usable.
type Options struct {
	// WorkerCommand starts a worker. Empty means the running executable
	// with the "worker" subcommand.
	WorkerCommand []string
	// Codec encodes channel messages. Nil means JSON.
	Codec protocol.Codec
	// Timeout is the invocation timeout enforced inside the worker. Zero
	// means none.
	Timeout time.Duration
	// WorkerEnv is applied on top of every other environment layer.
	WorkerEnv map[string]string
	// AWS enables the AWS defaults layer.
	AWS *awsenv.Options
	// BaseEnv returns the base environment. Nil means os.Environ.
	BaseEnv func() []string
	// Output receives worker stdout and stderr. Nil means os.Stderr.
	Output io.Writer

	Sink    logsink.Sink
	Metrics *metrics.Metrics
	// Console prints a one-line summary per invocation when set.
	Console *logging.Logger
	Logger  *slog.Logger
}

// Dispatcher invokes the functions of one service.
type Dispatcher struct {
	svc  *domain.ServiceConfig
	opts Options
}

// New creates a dispatcher for svc.
func New(svc *domain.ServiceConfig, opts Options) *Dispatcher {
	if opts.Codec == nil {
		opts.Codec = protocol.JSONCodec{}
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Sink == nil {
		opts.Sink = logsink.NewNoopSink()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Op()
	}
	return &Dispatcher{svc: svc, opts: opts}
}

// Service returns the service the dispatcher serves.
func (d *Dispatcher) Service() *domain.ServiceConfig {
	return d.svc
}

// Plan is a resolved invocation, ready to be sent to a worker.
type Plan struct {
	Function domain.FunctionConfig
	Runtime  string
	Kind     domain.RuntimeKind
	Request  *protocol.Request
}

// Resolve looks up fn and builds its request without starting anything.
func (d *Dispatcher) Resolve(requestID, fn string, payload json.RawMessage) (*Plan, error) {
	cfg, ok := d.svc.Function(fn)
	if !ok {
		return nil, &domain.ConfigurationError{Function: fn}
	}

	runtime := d.svc.RuntimeFor(cfg)
	kind := domain.DetectRuntime(runtime)
	p := &Plan{Function: cfg, Runtime: runtime, Kind: kind}

	if kind.IsForeign() {
		method := domain.ForeignHandlerMethod(kind, cfg.Name, cfg.Handler)
		p.Request = protocol.NewForeignRequest(requestID, kind, d.svc.ServiceDirectory, method, d.svc.CLIOptions, payload)
		return p, nil
	}

	handlerPath, method := domain.SplitHandler(cfg.Handler)
	module := filepath.Join(d.svc.ServiceDirectory, d.svc.BuildPrefix, handlerPath)
	p.Request = protocol.NewNativeRequest(requestID, module, handlerPath, method, payload)
	return p, nil
}

// Env builds the worker environment for a resolved plan.
func (d *Dispatcher) Env(ctx context.Context, p *Plan) []string {
	base := d.opts.BaseEnv()
	layers := EnvLayers{
		Base:     base,
		DotEnv:   d.svc.DotEnv,
		Service:  d.svc,
		Function: p.Function,
	}

	if d.opts.AWS != nil {
		lower := newEnvBuilder(base)
		lower.merge(d.svc.DotEnv)
		opts := *d.opts.AWS
		opts.LocalEndpoint = opts.LocalEndpoint || d.svc.DynamoDBEndpoint != ""
		defaults, err := awsenv.Defaults(ctx, opts, lower.has)
		if err != nil {
			d.opts.Logger.Warn("resolve AWS defaults", "error", err)
		}
		layers.AWSDefaults = defaults
	}

	invocation := map[string]string{
		EnvRequestID:      p.Request.RequestID,
		protocol.EnvCodec: d.opts.Codec.Name(),
	}
	for k, v := range d.opts.WorkerEnv {
		invocation[k] = v
	}
	for _, kv := range observability.ExtractTraceContext(ctx).Env() {
		k, v, _ := strings.Cut(kv, "=")
		invocation[k] = v
	}
	layers.Invocation = invocation

	return BuildEnv(layers)
}

// Dispatch invokes fn with payload and returns its JSON result.
//
// Errors are *domain.ConfigurationError for unknown functions (nothing is
// started), *domain.InvocationError when the handler failed,
// *domain.ProtocolError for a malformed response and
// *domain.TransportFault when the worker exited without answering.
func (d *Dispatcher) Dispatch(ctx context.Context, fn string, payload json.RawMessage) (json.RawMessage, error) {
	requestID := uuid.NewString()
	start := time.Now()

	plan, err := d.Resolve(requestID, fn, payload)
	if err != nil {
		d.opts.Logger.Error("dispatch rejected", "function", fn, "error", err)
		d.opts.Metrics.RecordInvocation(fn, "", 0, metrics.OutcomeConfigError)
		return nil, err
	}

	ctx, span := observability.StartClientSpan(ctx, "dispatch "+fn,
		observability.AttrFunctionName.String(fn),
		observability.AttrRuntime.String(plan.Runtime),
		observability.AttrFlavor.String(string(plan.Request.Flavor)),
		observability.AttrRequestID.String(requestID),
	)
	defer span.End()

	logger := logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx)).
		With("request_id", requestID, "function", fn)
	logger.Debug("dispatching", "runtime", plan.Runtime, "kind", plan.Kind, "handler", plan.Request.HandlerName())

	res := d.run(ctx, plan, logger)
	duration := time.Since(start)

	span.SetAttributes(
		observability.AttrDurationMs.Int64(duration.Milliseconds()),
		observability.AttrWorkerPID.Int(res.pid),
		observability.AttrWorkerExit.Int(res.exitCode),
	)
	outcome := metrics.OutcomeSuccess
	if res.err != nil {
		outcome = outcomeLabel(res.err)
		span.SetAttributes(observability.AttrErrorCategory.String(outcome))
		observability.SetSpanError(span, res.err)
		logger.Error("invocation failed", "error", res.err, "duration_ms", duration.Milliseconds())
	} else {
		observability.SetSpanOK(span)
		logger.Info("invocation succeeded", "duration_ms", duration.Milliseconds())
	}

	d.opts.Metrics.RecordInvocation(fn, plan.Runtime, duration.Milliseconds(), outcome)
	d.record(ctx, plan, res, duration, observability.GetTraceID(ctx))

	if res.err != nil {
		return nil, res.err
	}
	return res.value, nil
}

type runResult struct {
	value    json.RawMessage
	err      error
	pid      int
	exitCode int
	// output is the tail of the worker's stdout and stderr.
	output string
}

func (d *Dispatcher) run(ctx context.Context, plan *Plan, logger *slog.Logger) runResult {
	fn := plan.Function.Name

	name, args, err := d.workerCommand()
	if err != nil {
		return runResult{err: &domain.SpawnError{Command: "worker", Err: err}, exitCode: -1}
	}

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout+workerGrace)
		defer cancel()
	}

	parentConn, childFile, err := protocol.Pair()
	if err != nil {
		return runResult{err: &domain.SpawnError{Command: name, Err: err}, exitCode: -1}
	}
	ch := protocol.NewChannel(parentConn, d.opts.Codec)
	defer ch.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = d.Env(ctx, plan)
	cmd.Dir = d.svc.ServiceDirectory
	captured := newTailBuffer(maxCapturedOutput)
	out := io.MultiWriter(d.opts.Output, captured)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.WaitDelay = workerWaitDelay

	err = cmd.Start()
	childFile.Close()
	if err != nil {
		return runResult{err: &domain.SpawnError{Command: name, Err: err}, exitCode: -1}
	}
	d.opts.Metrics.RecordWorkerSpawn(plan.Runtime)
	logger.Debug("worker started", "pid", cmd.Process.Pid)

	res := runResult{pid: cmd.Process.Pid}

	// A worker that dies before reading still closes its end, so the
	// receive below observes the loss either way.
	sendErr := ch.SendRequest(plan.Request)
	if sendErr != nil {
		logger.Warn("send request to worker", "error", sendErr)
	}
	resp, recvErr := ch.ReceiveResponse()

	waitErr := cmd.Wait()
	res.exitCode = exitCode(cmd, waitErr)
	res.output = captured.String()

	if recvErr != nil {
		cause := recvErr
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = fmt.Errorf("%w: %v", recvErr, ctxErr)
		}
		res.err = &domain.TransportFault{Function: fn, ExitCode: res.exitCode, Err: cause}
		return res
	}

	switch resp.Type {
	case protocol.TypeSuccess:
		res.value = resp.Value
		if len(res.value) == 0 {
			res.value = json.RawMessage("null")
		}
	case protocol.TypeError:
		res.err = &domain.InvocationError{Function: fn, Detail: domain.DecodeErrorDetail(resp.Error)}
	default:
		res.err = &domain.ProtocolError{Type: resp.Type}
	}
	return res
}

func (d *Dispatcher) workerCommand() (string, []string, error) {
	if len(d.opts.WorkerCommand) > 0 {
		return d.opts.WorkerCommand[0], d.opts.WorkerCommand[1:], nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locate executable: %w", err)
	}
	return exe, []string{"worker"}, nil
}

func (d *Dispatcher) record(ctx context.Context, plan *Plan, res runResult, duration time.Duration, traceID string) {
	fn := plan.Function.Name
	rec := &logsink.Record{
		ID:         plan.Request.RequestID,
		Function:   fn,
		Runtime:    plan.Runtime,
		Handler:    plan.Function.Handler,
		TraceID:    traceID,
		DurationMs: duration.Milliseconds(),
		Success:    res.err == nil,
		ExitCode:   res.exitCode,
		InputSize:  len(plan.Request.Payload),
		OutputSize: len(res.value),
		Input:      jsonOrNil(plan.Request.Payload),
		Output:     jsonOrNil(res.value),
		Stderr:     res.output,
		CreatedAt:  time.Now(),
	}
	if res.err != nil {
		rec.ErrorMessage = res.err.Error()
	}
	if err := d.opts.Sink.Save(ctx, rec); err != nil {
		d.opts.Logger.Warn("save invocation record", "request_id", rec.ID, "error", err)
	}

	if d.opts.Console != nil {
		d.opts.Console.Log(&logging.InvocationLog{
			RequestID:  rec.ID,
			TraceID:    traceID,
			Function:   fn,
			Runtime:    plan.Runtime,
			Worker:     fmt.Sprintf("pid %d", res.pid),
			DurationMs: rec.DurationMs,
			Success:    rec.Success,
			Error:      rec.ErrorMessage,
			InputSize:  rec.InputSize,
			OutputSize: rec.OutputSize,
		})
	}
}

func outcomeLabel(err error) string {
	var tf *domain.TransportFault
	var ce *domain.ConfigurationError
	switch {
	case errors.As(err, &tf):
		return metrics.OutcomeTransportFault
	case errors.As(err, &ce):
		return metrics.OutcomeConfigError
	default:
		return metrics.OutcomeError
	}
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

func jsonOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return raw
}
