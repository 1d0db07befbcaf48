package logging

import (
	"os"
	"sync"
)

// Ring is a thread-safe circular byte buffer holding the most recent
// log output for crash dumps. Implements io.Writer; old data is
// silently overwritten when full.
type Ring struct {
	mu   sync.Mutex
	buf  []byte
	size int
	pos  int
	full bool
}

// NewRing creates a ring with the given capacity in bytes.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1 << 20
	}
	return &Ring{buf: make([]byte, size), size: size}
}

// Write implements io.Writer. Data wraps around when the ring is full.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if n >= r.size {
		// Larger than the whole ring: keep only the tail.
		copy(r.buf, p[n-r.size:])
		r.pos = 0
		r.full = true
		return n, nil
	}

	space := r.size - r.pos
	if n <= space {
		copy(r.buf[r.pos:], p)
		r.pos += n
		if r.pos == r.size {
			r.pos = 0
			r.full = true
		}
	} else {
		copy(r.buf[r.pos:], p[:space])
		copy(r.buf, p[space:])
		r.pos = n - space
		r.full = true
	}

	return n, nil
}

// Bytes returns the ring contents in chronological order.
func (r *Ring) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]byte, r.pos)
		copy(out, r.buf[:r.pos])
		return out
	}

	out := make([]byte, r.size)
	copy(out, r.buf[r.pos:])
	copy(out[r.size-r.pos:], r.buf[:r.pos])
	return out
}

// DumpToFile writes the ring contents to a file in chronological order.
func (r *Ring) DumpToFile(path string) error {
	return os.WriteFile(path, r.Bytes(), 0o644)
}
