package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format represents output format
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "wide":
		return FormatWide
	default:
		return FormatTable
	}
}

// Printer handles formatted output
type Printer struct {
	format  Format
	writer  io.Writer
	noColor bool
}

// NewPrinter creates a new printer
func NewPrinter(format Format) *Printer {
	return &Printer{
		format:  format,
		writer:  os.Stdout,
		noColor: os.Getenv("NO_COLOR") != "",
	}
}

// SetWriter sets the output writer. Colors are disabled unless the writer
// is the terminal's stdout.
func (p *Printer) SetWriter(w io.Writer) {
	p.writer = w
	if w != os.Stdout {
		p.noColor = true
	}
}

// Print outputs data in the configured format
func (p *Printer) Print(data any) error {
	if p.format == FormatYAML {
		return p.printYAML(data)
	}
	return p.printJSON(data)
}

func (p *Printer) printJSON(data any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p *Printer) printYAML(data any) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// Color codes
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
)

// Colorize adds color to text
func (p *Printer) Colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + Reset
}

// TableWriter creates a tabwriter for aligned output
func (p *Printer) TableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
}

// PrintResult prints an invocation result. Table output is the indented
// JSON document itself.
func (p *Printer) PrintResult(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err := fmt.Fprintln(p.writer, string(raw))
		return err
	}
	return p.Print(v)
}

// FunctionRow represents a function in table output
type FunctionRow struct {
	Name    string `json:"name" yaml:"name"`
	Runtime string `json:"runtime" yaml:"runtime"`
	Kind    string `json:"kind" yaml:"kind"`
	Handler string `json:"handler" yaml:"handler"`
	Target  string `json:"target" yaml:"target"`
}

// PrintFunctions prints function list
func (p *Printer) PrintFunctions(rows []FunctionRow) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No functions found")
		return nil
	}

	w := p.TableWriter()
	if p.format == FormatWide {
		fmt.Fprintln(w, p.Colorize(Bold, "NAME\tRUNTIME\tKIND\tHANDLER\tTARGET"))
	} else {
		fmt.Fprintln(w, p.Colorize(Bold, "NAME\tRUNTIME\tHANDLER"))
	}

	for _, row := range rows {
		if p.format == FormatWide {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.Colorize(Cyan, row.Name),
				row.Runtime,
				row.Kind,
				row.Handler,
				row.Target,
			)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				p.Colorize(Cyan, row.Name),
				row.Runtime,
				row.Handler,
			)
		}
	}

	return w.Flush()
}

// RecordRow represents one recorded invocation
type RecordRow struct {
	ID         string `json:"id" yaml:"id"`
	Function   string `json:"function" yaml:"function"`
	Success    bool   `json:"success" yaml:"success"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	ExitCode   int    `json:"exit_code" yaml:"exit_code"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	TraceID    string `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
	Created    string `json:"created" yaml:"created"`
}

// PrintRecords prints recorded invocations, newest first
func (p *Printer) PrintRecords(rows []RecordRow) error {
	if p.format == FormatJSON || p.format == FormatYAML {
		return p.Print(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No invocations recorded")
		return nil
	}

	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "ID\tSTATUS\tEXIT\tDURATION\tCREATED\tERROR"))
	for _, row := range rows {
		status := p.Colorize(Green, "ok")
		if !row.Success {
			status = p.Colorize(Red, "failed")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%s\t%s\n",
			row.ID,
			status,
			row.ExitCode,
			row.DurationMs,
			p.Colorize(Gray, row.Created),
			truncate(row.Error, 60),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
