package domain

import "strings"

// RuntimeKind selects the worker flavor that runs a handler.
type RuntimeKind string

const (
	KindNative RuntimeKind = "native"
	KindPython RuntimeKind = "python"
	KindRuby   RuntimeKind = "ruby"
	KindGo     RuntimeKind = "go"
)

// foreignMarkers is checked in order; the first marker contained in the
// runtime identifier wins. Identifiers carry version suffixes (python3.9,
// ruby2.7, go1.x), so matching is by substring.
var foreignMarkers = []RuntimeKind{KindPython, KindRuby, KindGo}

// DetectRuntime maps a runtime identifier to its RuntimeKind. Anything
// without a foreign marker runs on the native worker.
func DetectRuntime(runtime string) RuntimeKind {
	rt := strings.ToLower(runtime)
	for _, marker := range foreignMarkers {
		if strings.Contains(rt, string(marker)) {
			return marker
		}
	}
	return KindNative
}

// IsForeign reports whether the kind is reached through the external
// invoke-local tool rather than the native worker.
func (k RuntimeKind) IsForeign() bool {
	return k != KindNative && k != ""
}

// IsCompiled reports whether the foreign runtime runs a prebuilt binary.
// Compiled runtimes print their result as one JSON document instead of
// logs followed by a trailing JSON line.
func (k RuntimeKind) IsCompiled() bool {
	return k == KindGo
}
