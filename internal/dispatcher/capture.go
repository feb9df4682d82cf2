package dispatcher

import (
	"sync"
)

// maxCapturedOutput bounds the worker output kept for the invocation record.
const maxCapturedOutput = 64 * 1024

// tailBuffer keeps the last max bytes written to it. Worker stdout and
// stderr copiers may write concurrently.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	buf  []byte
	lost bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.lost = true
	}
	return len(p), nil
}

// String returns the captured output, prefixed with a marker when earlier
// output was dropped.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return "...[truncated]\n" + string(b.buf)
	}
	return string(b.buf)
}
