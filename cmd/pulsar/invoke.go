package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/output"
)

func invokeCmd() *cobra.Command {
	var (
		data        string
		path        string
		metricsFile string
		timeout     time.Duration
		strict      bool
		codec       string
		tool        string
		endpoint    string
	)

	cmd := &cobra.Command{
		Use:   "invoke <function>",
		Short: "Invoke a function once and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("metrics-file") {
				cfg.Observability.Metrics.Textfile = metricsFile
			}
			if flags.Changed("timeout") {
				cfg.Worker.Timeout = config.Duration(timeout)
			}
			if flags.Changed("strict") {
				cfg.Worker.Strict = strict
			}
			if flags.Changed("codec") {
				cfg.Worker.Codec = codec
			}
			if flags.Changed("tool") {
				cfg.Worker.Tool = tool
			}

			svc, err := loadService()
			if err != nil {
				return err
			}
			if flags.Changed("dynamodb-endpoint") {
				svc.DynamoDBEndpoint = endpoint
			}

			payload, err := readPayload(data, path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess, err := newSession(ctx, cfg, svc)
			if err != nil {
				return err
			}
			defer sess.Close()

			result, err := sess.dispatcher.Dispatch(ctx, args[0], payload)
			if err != nil {
				return describeError(err)
			}

			return output.NewPrinter(output.ParseFormat(outputFmt)).PrintResult(result)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload")
	cmd.Flags().StringVarP(&path, "path", "p", "", "File containing the JSON payload (- for stdin)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the call")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Invocation timeout (0 = none)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail instead of guessing when no JSON result line is found")
	cmd.Flags().StringVar(&codec, "codec", "json", "Result channel codec (json, proto)")
	cmd.Flags().StringVar(&tool, "tool", "sls", "Invoke-local tool for foreign runtimes")
	cmd.Flags().StringVar(&endpoint, "dynamodb-endpoint", "", "DynamoDB endpoint injected into the worker environment")
	return cmd
}

func readPayload(data, path string) (json.RawMessage, error) {
	if data != "" && path != "" {
		return nil, fmt.Errorf("--data and --path are mutually exclusive")
	}

	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case path == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		raw = b
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = b
	default:
		return json.RawMessage("{}"), nil
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// describeError renders handler failures with their detail; other errors
// pass through unchanged.
func describeError(err error) error {
	var invErr *domain.InvocationError
	if !errors.As(err, &invErr) {
		return err
	}
	detail, mErr := json.MarshalIndent(invErr.Detail, "", "  ")
	if mErr != nil {
		return err
	}
	return fmt.Errorf("function %s failed:\n%s", invErr.Function, detail)
}
