package ptysession

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/termscope/internal/textbuf"
)

func newTestBuffer(settled chan string) *textbuf.Buffer {
	var cb func(string)
	if settled != nil {
		cb = func(s string) { settled <- s }
	}
	return textbuf.NewBuffer(10000, 30*time.Millisecond, cb)
}

func TestReader_PumpsIntoBuffer(t *testing.T) {
	pr, pw := io.Pipe()
	buf := newTestBuffer(nil)
	defer buf.Close()

	r := NewReader(pr, buf)
	r.Start()

	_, err := pw.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = pw.Write([]byte("world"))
	require.NoError(t, err)
	pw.Close()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("reader never exited after source close")
	}
	assert.Equal(t, "hello world", buf.String())
}

func TestReader_SettledFiresAfterQuiet(t *testing.T) {
	pr, pw := io.Pipe()
	settled := make(chan string, 1)
	buf := newTestBuffer(settled)
	defer buf.Close()

	NewReader(pr, buf).Start()
	defer pw.Close()

	_, err := pw.Write([]byte("Current session\n3% used"))
	require.NoError(t, err)

	select {
	case text := <-settled:
		assert.Contains(t, text, "3% used")
	case <-time.After(time.Second):
		t.Fatal("settled never fired")
	}
}

func TestReader_RuneSplitAcrossChunks(t *testing.T) {
	pr, pw := io.Pipe()
	buf := newTestBuffer(nil)
	defer buf.Close()

	r := NewReader(pr, buf)
	r.Start()

	spinner := []byte("⠋") // 3 bytes
	_, err := pw.Write(spinner[:1])
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = pw.Write(spinner[1:])
	require.NoError(t, err)
	pw.Close()
	<-r.Done()

	assert.Equal(t, "⠋", buf.String())
}

func TestReader_InvalidBytesDropped(t *testing.T) {
	pr, pw := io.Pipe()
	buf := newTestBuffer(nil)
	defer buf.Close()

	r := NewReader(pr, buf)
	r.Start()

	_, err := pw.Write([]byte{'o', 'k', 0xff, 0xfe, '!'})
	require.NoError(t, err)
	pw.Close()
	<-r.Done()

	assert.Equal(t, "ok!", buf.String())
}

func TestSplitIncompleteRune(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		complete string
		rest     string
	}{
		{"ascii", []byte("abc"), "abc", ""},
		{"complete multibyte", []byte("a⠋"), "a⠋", ""},
		{"split two byte", []byte{'a', 0xc3}, "a", "\xc3"},
		{"split three byte", []byte{'a', 0xe2, 0xa0}, "a", "\xe2\xa0"},
		{"empty", nil, "", ""},
		{"only continuation bytes", []byte{0x80, 0x80}, "\x80\x80", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			complete, rest := splitIncompleteRune(tt.in)
			assert.Equal(t, tt.complete, string(complete))
			assert.Equal(t, tt.rest, string(rest))
		})
	}
}
