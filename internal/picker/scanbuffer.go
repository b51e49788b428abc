package picker

import (
	"strings"
	"sync"
	"time"
)

// DefaultScanInactivity is how long the buffer waits after the last keystroke
// before treating the code as complete
const DefaultScanInactivity = 80 * time.Millisecond

// FlushReason says why the scan buffer emitted a code
type FlushReason int

const (
	// FlushTerminator means Enter or Tab ended the code
	FlushTerminator FlushReason = iota
	// FlushInactivity means the scanner went quiet
	FlushInactivity
)

func (r FlushReason) String() string {
	if r == FlushTerminator {
		return "terminator"
	}
	return "inactivity"
}

// ScanBuffer collects keystrokes from a keyboard-wedge scanner regardless of
// which input has focus. Both flush paths go through the same callback.
type ScanBuffer struct {
	onFlush    func(code string, reason FlushReason)
	inactivity time.Duration

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
	gen   uint64
}

// NewScanBuffer creates a buffer that calls onFlush with each complete code.
// A zero inactivity uses DefaultScanInactivity.
func NewScanBuffer(inactivity time.Duration, onFlush func(code string, reason FlushReason)) *ScanBuffer {
	if inactivity <= 0 {
		inactivity = DefaultScanInactivity
	}
	return &ScanBuffer{onFlush: onFlush, inactivity: inactivity}
}

// Key feeds one keystroke
func (b *ScanBuffer) Key(r rune) {
	if r == '\n' || r == '\r' || r == '\t' {
		b.flush(FlushTerminator, 0)
		return
	}

	b.mu.Lock()
	b.buf.WriteRune(r)
	b.gen++
	gen := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.inactivity, func() {
		b.flush(FlushInactivity, gen)
	})
	b.mu.Unlock()
}

// flush emits the buffered code. An inactivity flush carries the generation it
// was armed for and is dropped if more keys arrived since.
func (b *ScanBuffer) flush(reason FlushReason, gen uint64) {
	b.mu.Lock()
	if reason == FlushInactivity && gen != b.gen {
		b.mu.Unlock()
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	code := b.buf.String()
	b.buf.Reset()
	b.gen++
	b.mu.Unlock()

	if code == "" {
		return
	}
	b.onFlush(code, reason)
}

// Stop drops any buffered input
func (b *ScanBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.buf.Reset()
	b.gen++
}
