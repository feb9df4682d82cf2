package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/awsenv"
	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/dispatcher"
	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/logsink"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/protocol"
	"github.com/oriys/pulsar/internal/spec"
)

// loadConfig reads the config file and environment, then applies flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Observability.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Observability.Logging.Format = logFormat
	}
	return cfg, nil
}

func loadService() (*domain.ServiceConfig, error) {
	svc, err := spec.Load(serviceDir, spec.Options{Stage: stage})
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	return svc, nil
}

// session bundles the dispatcher with what must be released afterwards.
type session struct {
	dispatcher *dispatcher.Dispatcher
	sink       logsink.Sink
	cfg        *config.Config
}

func (r *session) Close() {
	if err := r.sink.Close(); err != nil {
		logging.Op().Warn("close invocation sink", "error", err)
	}
	if r.cfg.Observability.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(r.cfg.Observability.Metrics.Textfile); err != nil {
			logging.Op().Warn("write metrics textfile", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.Shutdown(ctx); err != nil {
		logging.Op().Warn("shutdown tracing", "error", err)
	}
}

func newSession(ctx context.Context, cfg *config.Config, svc *domain.ServiceConfig) (*session, error) {
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	tracing := cfg.Observability.Tracing
	tracing.Role = observability.RoleDispatcher
	if err := observability.Init(ctx, tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	if cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Textfile != "" {
		metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, nil)
	}

	codec, err := protocol.CodecByName(cfg.Worker.Codec)
	if err != nil {
		return nil, err
	}

	sink, err := logsink.Open(ctx, cfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("open invocation sink: %w", err)
	}

	opts := dispatcher.Options{
		WorkerCommand: cfg.Worker.Command,
		Codec:         codec,
		Timeout:       cfg.Worker.Timeout.Std(),
		WorkerEnv:     cfg.WorkerEnv(),
		Sink:          sink,
		Console:       logging.Default(),
	}
	if cfg.AWS.Inject {
		opts.AWS = &awsenv.Options{Region: cfg.AWS.Region, Profile: cfg.AWS.Profile}
	}

	return &session{
		dispatcher: dispatcher.New(svc, opts),
		sink:       sink,
		cfg:        cfg,
	}, nil
}
