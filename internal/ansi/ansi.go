// Package ansi strips terminal escape sequences from scraped output.
package ansi

import "strings"

// Strip removes ANSI escape sequences using a single-pass scan.
// Handles CSI (ESC [ ... final-letter), OSC (ESC ] ... BEL or ESC \),
// 8-bit CSI (0x9B), and bare two-byte ESC sequences.
//
// NOTE: deliberately not regex-based. Terminal repaints can contain
// malformed sequences and a backtracking regex is the wrong tool for
// text that arrives mid-escape.
func Strip(s string) string {
	// Fast path: no escape bytes at all.
	if strings.IndexByte(s, 0x1b) < 0 && strings.IndexByte(s, 0x9b) < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == 0x1b && i+1 < len(s) && s[i+1] == '[':
			i = skipCSI(s, i+2)
		case c == 0x1b && i+1 < len(s) && s[i+1] == ']':
			i = skipOSC(s, i)
		case c == 0x1b:
			// Bare ESC + one byte (charset selection, keypad modes, ...).
			// A trailing lone ESC is dropped.
			i += 2
		case c == 0x9b:
			i = skipCSI(s, i+1)
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

// skipCSI advances past parameter/intermediate bytes up to and including
// the final byte, which is anything in 0x40-0x7E (letters plus ~ @ `
// and friends; keypad sequences like ESC[2~ end in punctuation). from
// points just past the introducer. Parameter bytes are 0x30-0x3F and
// intermediates 0x20-0x2F, all below the final-byte range.
func skipCSI(s string, from int) int {
	for j := from; j < len(s); j++ {
		c := s[j]
		if c >= 0x40 && c <= 0x7e {
			return j + 1
		}
	}
	return len(s)
}

// skipOSC advances past an OSC sequence terminated by BEL or ST (ESC \).
// from points at the ESC. An unterminated OSC swallows the rest of the
// string; by the time a settled buffer is parsed the terminator has
// always arrived.
func skipOSC(s string, from int) int {
	if bell := strings.IndexByte(s[from:], 0x07); bell >= 0 {
		return from + bell + 1
	}
	if st := strings.Index(s[from:], "\x1b\\"); st >= 0 {
		return from + st + 2
	}
	return len(s)
}
