package textbuf

import "unicode/utf8"

// Capture is the bounded window used for marker-delimited extraction.
// Unlike Buffer it never trims: if the window overflows before the
// caller finds what it was looking for, the capture aborts wholesale.
// Not safe for concurrent use; it is owned by whichever single
// goroutine delivers terminal output.
type Capture struct {
	text     string
	maxChars int
	active   bool
}

// NewCapture creates a capture window capped at maxChars characters.
func NewCapture(maxChars int) *Capture {
	if maxChars <= 0 {
		maxChars = 8192
	}
	return &Capture{maxChars: maxChars}
}

// Activate clears the window and starts capturing.
func (c *Capture) Activate() {
	c.text = ""
	c.active = true
}

// Active reports whether a capture is in flight.
func (c *Capture) Active() bool {
	return c.active
}

// Append adds chunk while active. If the window exceeds its cap the
// capture aborts: contents are cleared, the window deactivates, and
// Append reports the overflow. Appends while inactive are ignored.
func (c *Capture) Append(chunk string) (overflowed bool) {
	if !c.active {
		return false
	}
	c.text += chunk
	if utf8.RuneCountInString(c.text) > c.maxChars {
		c.Abort()
		return true
	}
	return false
}

// String returns the captured text so far.
func (c *Capture) String() string {
	return c.text
}

// Finish deactivates the capture and returns its contents.
func (c *Capture) Finish() string {
	text := c.text
	c.text = ""
	c.active = false
	return text
}

// Abort deactivates the capture and discards its contents.
func (c *Capture) Abort() {
	c.text = ""
	c.active = false
}
