// Package textbuf provides the bounded text accumulators used when
// scraping terminal output: a suffix-keep buffer with a quiescence
// debounce, and an abort-on-overflow capture window.
package textbuf

import (
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultSettleWindow is how long output must stay quiet before the
// buffer is considered settled. Terminal UIs repaint incrementally;
// parsing mid-repaint yields truncated or duplicated values.
const DefaultSettleWindow = 300 * time.Millisecond

// Buffer accumulates terminal output up to a character cap, discarding
// the oldest content first. All mutation is serialized on an internal
// mutex; after every append the settle timer is rescheduled, and once
// no new data arrives within the settle window the registered callback
// fires with a snapshot of the buffer.
type Buffer struct {
	mu        sync.Mutex
	text      string
	maxChars  int
	settle    time.Duration
	timer     *time.Timer
	onSettled func(string)
	closed    bool
}

// NewBuffer creates a buffer capped at maxChars characters. onSettled
// may be nil when the caller only wants bounded accumulation.
func NewBuffer(maxChars int, settle time.Duration, onSettled func(string)) *Buffer {
	if maxChars <= 0 {
		maxChars = 50000
	}
	if settle <= 0 {
		settle = DefaultSettleWindow
	}
	return &Buffer{
		maxChars:  maxChars,
		settle:    settle,
		onSettled: onSettled,
	}
}

// Append adds chunk to the buffer, trims to the cap (keeping the most
// recent characters), and reschedules the settle timer. The trim and
// the reschedule happen under the same lock so no reader ever observes
// the buffer mid-trim.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.text = keepSuffix(b.text+chunk, b.maxChars)

	if b.onSettled == nil {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.settle, b.fireSettled)
}

// fireSettled delivers the settled snapshot. Runs on the timer
// goroutine; the snapshot is taken under the lock, the callback runs
// without it so the callback may call back into the buffer.
func (b *Buffer) fireSettled() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	snapshot := b.text
	cb := b.onSettled
	b.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// String returns the current contents.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Len returns the current length in characters.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return utf8.RuneCountInString(b.text)
}

// Reset clears the contents and cancels any pending settle callback.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = ""
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Close stops the settle timer permanently. Safe to call more than once.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// keepSuffix trims s to at most max characters, dropping from the front.
func keepSuffix(s string, max int) string {
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s
	}
	drop := n - max
	for i := range s {
		if drop == 0 {
			return s[i:]
		}
		drop--
	}
	return ""
}
