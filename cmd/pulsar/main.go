package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Native handlers compiled into this binary.
	_ "github.com/oriys/pulsar/examples/handlers"
)

var (
	configPath string
	serviceDir string
	stage      string
	logLevel   string
	logFormat  string
	outputFmt  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulsar",
		Short: "Pulsar - run serverless function handlers locally, one process per call",
		Long: "Pulsar invokes the functions of a serverless.yml service out-of-process.\n" +
			"Native handlers run in a worker process; Python, Ruby and Go handlers\n" +
			"run through the invoke-local tool and their output is classified into\n" +
			"a single JSON result or error.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (json, yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&serviceDir, "service-dir", ".", "Directory containing serverless.yml")
	rootCmd.PersistentFlags().StringVarP(&stage, "stage", "s", "", "Stage forwarded to the invoke-local tool")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table, wide, json, yaml)")

	rootCmd.AddCommand(
		invokeCmd(),
		functionsCmd(),
		recordsCmd(),
		workerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
