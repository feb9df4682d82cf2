package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/oriys/pulsar/internal/domain"
)

// ResultExtractor recovers the JSON result from the standard output of a
// child that exited cleanly. debugLog is the part of the output that was
// recognised as handler logging rather than the result.
type ResultExtractor interface {
	Extract(stdout string) (result json.RawMessage, debugLog string, err error)
}

// ExtractorFor returns the extractor for a runtime family. Compiled and
// native runtimes emit exactly one JSON document; interpreted runtimes mix
// log lines with a trailing result line.
func ExtractorFor(kind domain.RuntimeKind, strict bool) ResultExtractor {
	switch kind {
	case domain.KindGo, domain.KindNative:
		return WholeDocument{}
	default:
		return BackwardLineScan{Strict: strict}
	}
}

// WholeDocument parses the entire output as one JSON document.
type WholeDocument struct{}

func (WholeDocument) Extract(stdout string) (json.RawMessage, string, error) {
	result, err := parseJSON(stdout)
	return result, "", err
}

// BackwardLineScan treats the last line starting with '{' and every line
// after it as the result. Lines are rejoined without a separator, so a
// result split across lines by pipe buffering still parses; a result that
// is itself pretty-printed is not supported. Scanning from the end keeps a
// logged dictionary earlier in the output from being mistaken for the
// result, provided the handler prints its result last.
//
// When no line starts with '{', the whole output is tried as JSON unless
// Strict is set, in which case the extraction fails.
type BackwardLineScan struct {
	Strict bool
}

func (b BackwardLineScan) Extract(stdout string) (json.RawMessage, string, error) {
	lines := strings.Split(stdout, "\n")

	idx := len(lines) - 1
	for ; idx >= 0; idx-- {
		if strings.HasPrefix(lines[idx], "{") {
			break
		}
	}
	if idx < 0 {
		if b.Strict {
			return nil, "", &domain.ParseAmbiguityFault{Reason: "no line starts with '{'"}
		}
		idx = 0
	}

	debugLog := strings.Join(lines[:idx], "\n")
	result, err := parseJSON(strings.Join(lines[idx:], ""))
	return result, debugLog, err
}

var errEmptyDocument = errors.New("empty document")

func parseJSON(s string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 {
		return nil, &domain.ParseAmbiguityFault{Reason: "no JSON result", Err: errEmptyDocument}
	}
	var probe any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, &domain.ParseAmbiguityFault{Reason: "result is not valid JSON", Err: err}
	}
	return json.RawMessage(trimmed), nil
}
