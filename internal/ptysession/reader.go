package ptysession

import (
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/twistedxcom/termscope/internal/logging"
	"github.com/twistedxcom/termscope/internal/textbuf"
)

// readChunkSize matches a typical PTY buffer; larger reads gain nothing.
const readChunkSize = 4096

// Reader pumps bytes from a PTY master into an accumulation buffer on
// a dedicated goroutine. Invalid UTF-8 is dropped, never fatal; a rune
// split across chunk boundaries is carried into the next read.
//
// The loop exits when the source read fails, which is how teardown
// works: closing the master descriptor unblocks the pending read.
type Reader struct {
	src  io.Reader
	buf  *textbuf.Buffer
	done chan struct{}
}

// NewReader wires a source to a buffer. Call Start to begin pumping.
func NewReader(src io.Reader, buf *textbuf.Buffer) *Reader {
	return &Reader{
		src:  src,
		buf:  buf,
		done: make(chan struct{}),
	}
}

// Start launches the read loop goroutine.
func (r *Reader) Start() {
	go r.loop()
}

// Done is closed when the read loop has exited.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

func (r *Reader) loop() {
	defer close(r.done)

	chunk := make([]byte, readChunkSize)
	var carry []byte // incomplete trailing rune from the previous read

	for {
		n, err := r.src.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			if len(carry) > 0 {
				data = append(append([]byte{}, carry...), data...)
				carry = nil
			}

			complete, rest := splitIncompleteRune(data)
			carry = rest
			if len(complete) > 0 {
				r.buf.Append(strings.ToValidUTF8(string(complete), ""))
				logging.Aggregate(logging.CompPTY, "chunk_read", slog.Int("bytes", n))
			}
		}
		if err != nil {
			// EOF or closed master; flush whatever the carry held.
			if len(carry) > 0 {
				r.buf.Append(strings.ToValidUTF8(string(carry), ""))
			}
			if err != io.EOF {
				ptyLog.Debug("read_loop_exit", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// splitIncompleteRune splits p so that the first part ends on a rune
// boundary and the second holds an incomplete trailing sequence, if
// any. Invalid bytes are not treated as incomplete; they pass through
// for ToValidUTF8 to drop.
func splitIncompleteRune(p []byte) (complete, rest []byte) {
	if len(p) == 0 {
		return p, nil
	}

	// Find the start of the last rune (at most 3 bytes back).
	start := len(p) - 1
	for i := 0; i < 3 && start > 0 && !utf8.RuneStart(p[start]); i++ {
		start--
	}
	if !utf8.RuneStart(p[start]) {
		// Nothing but continuation bytes; let the decoder drop them.
		return p, nil
	}
	if utf8.FullRune(p[start:]) {
		return p, nil
	}
	return p[:start], p[start:]
}
