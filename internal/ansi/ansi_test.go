package ansi

import "testing"

func TestStrip_PlainPassthrough(t *testing.T) {
	in := "Current session\n42% used"
	if got := Strip(in); got != in {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestStrip_CSIColor(t *testing.T) {
	in := "\x1b[1;32m42%\x1b[0m used"
	want := "42% used"
	if got := Strip(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStrip_CursorMovement(t *testing.T) {
	in := "\x1b[2J\x1b[H\x1b[10;20Hhello"
	if got := Strip(in); got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestStrip_OSCTitle(t *testing.T) {
	in := "\x1b]0;window title\x07visible"
	if got := Strip(in); got != "visible" {
		t.Errorf("got %q", got)
	}
}

func TestStrip_OSCWithSTTerminator(t *testing.T) {
	in := "\x1b]2;title\x1b\\visible"
	if got := Strip(in); got != "visible" {
		t.Errorf("got %q", got)
	}
}

func TestStrip_EightBitCSI(t *testing.T) {
	in := "a\x9b1mb"
	if got := Strip(in); got != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestStrip_CSIPunctuationFinalByte(t *testing.T) {
	// Keypad/tilde sequences end in punctuation, not a letter; the
	// terminator must not swallow the text that follows.
	cases := []struct {
		in, want string
	}{
		{"before\x1b[2~after", "beforeafter"},        // delete key
		{"a\x1b[?25l b", "a b"},                      // hide cursor, private mode
		{"x\x1b[@y", "xy"},                           // insert blank
		{"p\x1b[1`q", "pq"},                          // HPA ends in backtick
		{"\x1b[200~pasted\x1b[201~", "pasted"},       // bracketed paste guards
	}
	for _, tc := range cases {
		if got := Strip(tc.in); got != tc.want {
			t.Errorf("Strip(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStrip_TruncatedSequenceAtEnd(t *testing.T) {
	// Mid-repaint chunk boundary: CSI never gets its final letter.
	in := "text\x1b[1;3"
	if got := Strip(in); got != "text" {
		t.Errorf("got %q", got)
	}
}

func TestStrip_LoneESC(t *testing.T) {
	if got := Strip("abc\x1b"); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestStrip_BareESCPair(t *testing.T) {
	// ESC ( B selects a charset; both bytes must go.
	in := "\x1b(Bok"
	if got := Strip(in); got != "ok" {
		t.Errorf("got %q", got)
	}
}
