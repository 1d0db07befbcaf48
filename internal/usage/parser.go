// Package usage parses percentage telemetry out of Claude Code's
// rendered /usage panel. The parse is deliberately tolerant: the panel
// is a human-facing TUI, not a protocol, so unrecognized lines are
// skipped and a miss just means "not ready yet".
package usage

import (
	"regexp"
	"strings"

	"github.com/twistedxcom/termscope/internal/ansi"
)

// Section header substrings the panel is known to render. The secondary
// model header varies by plan ("Current week (Opus only)", sonnet, ...),
// so it is matched by shape rather than literal.
const (
	headerSession  = "Current session"
	headerWeekAll  = "Current week (all models)"
	weekMarker     = "Current week"
	weekOnlyPrefix = "Current week ("
	weekOnlySuffix = "only)"
)

var percentRe = regexp.MustCompile(`(\d+)%\s*used`)

// Snapshot holds one scrape of the usage panel. Zero values mean the
// section was absent; callers distinguish "no data yet" via the
// accompanying fetch status, not via the snapshot itself.
type Snapshot struct {
	SessionUsedPct   int
	WeekAllModelsPct int
	WeekOpusPct      int
}

// IsZero reports whether every field is at its default.
func (s Snapshot) IsZero() bool {
	return s == Snapshot{}
}

// HasPanelMarkers reports whether text contains enough of the usage
// panel to be worth parsing: a session marker and a week marker. Used
// by the scheduler to gate parsing on settled buffers.
func HasPanelMarkers(text string) bool {
	plain := ansi.Strip(text)
	return strings.Contains(plain, headerSession) &&
		strings.Contains(plain, weekMarker)
}

// Parse extracts a snapshot from rendered panel text. Returns ok=false
// when neither the session nor the weekly field received a value.
//
// The section tag is sticky: a header line switches the current section
// and every following "N% used" line belongs to it until the next
// header. First value per section wins; the panel repaints can repeat
// a line and the repeat must not clobber the original.
func Parse(text string) (Snapshot, bool) {
	var snap Snapshot
	var haveSession, haveWeekAll, haveWeekOnly bool

	section := sectionNone
	for _, line := range strings.Split(ansi.Strip(text), "\n") {
		if s, ok := sectionFor(line); ok {
			section = s
			continue
		}
		if section == sectionNone {
			continue
		}

		m := percentRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct := atoiClamped(m[1])

		switch section {
		case sectionSession:
			if !haveSession {
				snap.SessionUsedPct = pct
				haveSession = true
			}
		case sectionWeekAll:
			if !haveWeekAll {
				snap.WeekAllModelsPct = pct
				haveWeekAll = true
			}
		case sectionWeekOnly:
			if !haveWeekOnly {
				snap.WeekOpusPct = pct
				haveWeekOnly = true
			}
		}
	}

	if !haveSession && !haveWeekAll {
		return Snapshot{}, false
	}
	return snap, true
}

type section int

const (
	sectionNone section = iota
	sectionSession
	sectionWeekAll
	sectionWeekOnly
)

func sectionFor(line string) (section, bool) {
	switch {
	case strings.Contains(line, headerWeekAll):
		return sectionWeekAll, true
	case strings.Contains(line, weekOnlyPrefix) && strings.Contains(line, weekOnlySuffix):
		return sectionWeekOnly, true
	case strings.Contains(line, headerSession):
		return sectionSession, true
	}
	return sectionNone, false
}

// atoiClamped parses a digit string, clamping to the 0-100 range the
// panel promises. The regex guarantees digits only.
func atoiClamped(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
		if n > 100 {
			return 100
		}
	}
	return n
}
