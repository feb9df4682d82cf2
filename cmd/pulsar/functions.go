package main

import (
	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/output"
	"github.com/oriys/pulsar/pkg/handler"
)

func functionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "functions",
		Aliases: []string{"ls"},
		Short:   "List the functions of the service",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			svc, err := loadService()
			if err != nil {
				return err
			}

			rows := make([]output.FunctionRow, 0, len(svc.Functions))
			for _, name := range svc.FunctionNames() {
				fn, _ := svc.Function(name)
				rt := svc.RuntimeFor(fn)
				kind := domain.DetectRuntime(rt)
				rows = append(rows, output.FunctionRow{
					Name:    name,
					Runtime: rt,
					Kind:    string(kind),
					Handler: fn.Handler,
					Target:  target(kind, fn),
				})
			}
			return output.NewPrinter(output.ParseFormat(outputFmt)).PrintFunctions(rows)
		},
	}
}

// target describes what a function resolves to: the invoke-local function
// name for foreign runtimes, the registry entry for native ones.
func target(kind domain.RuntimeKind, fn domain.FunctionConfig) string {
	if kind.IsForeign() {
		return "invoke local -f " + domain.ForeignHandlerMethod(kind, fn.Name, fn.Handler)
	}
	if _, ok := handler.Lookup(fn.Handler); ok {
		return "registered"
	}
	return "not registered"
}
