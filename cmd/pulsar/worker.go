package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/worker"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Serve one invocation over the inherited result channel",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.DefaultConfig()
			config.LoadFromEnv(cfg)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx := context.Background()
			tracing := cfg.Observability.Tracing
			tracing.Role = observability.RoleWorker
			if err := observability.Init(ctx, tracing); err != nil {
				logging.Op().Warn("init tracing", "error", err)
			}

			code := worker.Main(ctx, worker.OptionsFromConfig(cfg))

			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			observability.Shutdown(shutdownCtx)
			cancel()
			os.Exit(code)
		},
	}
}
