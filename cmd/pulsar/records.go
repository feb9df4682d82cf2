package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/logsink"
	"github.com/oriys/pulsar/internal/output"
)

func recordsCmd() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "records <function>",
		Short: "Show recent invocations of a function from the Redis sink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			redisCfg := cfg.Sink.Redis
			if redisCfg.Addr == "" {
				return fmt.Errorf("records require sink.redis.addr (or PULSAR_REDIS_ADDR)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client, err := logsink.DialRedis(ctx, redisCfg.Addr, redisCfg.Password, redisCfg.DB)
			if err != nil {
				return err
			}
			sink := logsink.NewRedisSink(client, redisCfg.MaxLength)
			defer sink.Close()

			recs, err := sink.Recent(ctx, args[0], limit)
			if err != nil {
				return err
			}

			rows := make([]output.RecordRow, 0, len(recs))
			for _, rec := range recs {
				rows = append(rows, output.RecordRow{
					ID:         rec.ID,
					Function:   rec.Function,
					Success:    rec.Success,
					Error:      rec.ErrorMessage,
					ExitCode:   rec.ExitCode,
					DurationMs: rec.DurationMs,
					TraceID:    rec.TraceID,
					Created:    rec.CreatedAt.Format(time.RFC3339),
				})
			}
			return output.NewPrinter(output.ParseFormat(outputFmt)).PrintRecords(rows)
		},
	}

	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "Number of records to show")
	return cmd
}
