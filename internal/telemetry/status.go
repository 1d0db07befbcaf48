// Package telemetry runs a hidden Claude Code instance behind a PTY
// and periodically scrapes its usage panel for percentage telemetry.
// The visible session is never touched; everything here happens in a
// throwaway background child.
package telemetry

// FetchStatus describes where the query cycle currently stands.
type FetchStatus int

const (
	// StatusIdle means no cycle is running and none has completed yet.
	StatusIdle FetchStatus = iota
	// StatusFetching means a query cycle is in flight.
	StatusFetching
	// StatusSuccess means the last cycle produced a parsed snapshot.
	StatusSuccess
	// StatusFailed means the last cycle exhausted its attempts.
	StatusFailed
)

func (s FetchStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
