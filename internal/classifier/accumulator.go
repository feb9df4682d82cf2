package classifier

import (
	"strings"
	"sync"
)

// Accumulator buffers the streams of one child process. It is written by
// the stream readers while the child runs and read once the child exited.
//
// Standard output is accumulated in full. Of standard error only the most
// recent chunk is authoritative; earlier chunks are kept in a separate
// buffer for debug logging and never reach a failure detail.
type Accumulator struct {
	mu         sync.Mutex
	stdout     strings.Builder
	lastChunk  string
	stderrLast string
	stderrAll  strings.Builder
}

// AppendStdout records one standard-output chunk.
func (a *Accumulator) AppendStdout(chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := string(chunk)
	a.stdout.WriteString(s)
	a.lastChunk = strings.Replace(s, "\n", "", 1)
}

// AppendStderr records one standard-error chunk, replacing the previous one.
func (a *Accumulator) AppendStderr(chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := string(chunk)
	a.stderrLast = s
	a.stderrAll.WriteString(s)
}

// Stdout returns everything written to standard output.
func (a *Accumulator) Stdout() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stdout.String()
}

// LastChunk returns the most recent standard-output chunk with its first
// newline removed. It is retained state only; decisions read Stdout.
func (a *Accumulator) LastChunk() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastChunk
}

// StderrLast returns the most recent standard-error chunk.
func (a *Accumulator) StderrLast() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stderrLast
}

// StderrAll returns all standard-error output.
func (a *Accumulator) StderrAll() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stderrAll.String()
}
