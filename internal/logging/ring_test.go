package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRing_SmallWrites(t *testing.T) {
	r := NewRing(16)
	r.Write([]byte("hello"))
	r.Write([]byte(" world"))

	if got := string(r.Bytes()); got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestRing_WrapKeepsNewest(t *testing.T) {
	r := NewRing(8)
	r.Write([]byte("abcdefgh"))
	r.Write([]byte("1234"))

	if got := string(r.Bytes()); got != "efgh1234" {
		t.Errorf("got %q", got)
	}
}

func TestRing_OversizeWriteKeepsTail(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("0123456789"))

	if got := string(r.Bytes()); got != "6789" {
		t.Errorf("got %q", got)
	}
}

func TestRing_ChronologicalOrderAcrossManyWrites(t *testing.T) {
	r := NewRing(32)
	var want bytes.Buffer
	for i := 0; i < 20; i++ {
		chunk := strings.Repeat(string(rune('a'+i%26)), 3)
		r.Write([]byte(chunk))
		want.WriteString(chunk)
	}

	full := want.String()
	if got := string(r.Bytes()); got != full[len(full)-32:] {
		t.Errorf("got %q, want %q", got, full[len(full)-32:])
	}
}
