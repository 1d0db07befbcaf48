// Package procreg tracks child pids owned by this process so they can
// be cleaned up together on app exit. It is a plain register/unregister
// service handed to components at construction; nothing else couples
// through it.
package procreg

import (
	"log/slog"
	"sort"
	"sync"
	"syscall"

	"github.com/twistedxcom/termscope/internal/logging"
)

var regLog = logging.ForComponent(logging.CompProc)

// Registry is a pid-keyed set of live children. Safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	pids map[int]string // pid -> label, for logging only
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{pids: make(map[int]string)}
}

// Register records a child pid. Re-registering an existing pid just
// updates the label.
func (r *Registry) Register(pid int, label string) {
	if pid <= 0 {
		return
	}
	r.mu.Lock()
	r.pids[pid] = label
	r.mu.Unlock()
	regLog.Debug("registered", slog.Int("pid", pid), slog.String("label", label))
}

// Unregister removes a pid. Unknown pids are a no-op: teardown paths
// race with exit handling and both may try to unregister.
func (r *Registry) Unregister(pid int) {
	r.mu.Lock()
	_, known := r.pids[pid]
	delete(r.pids, pid)
	r.mu.Unlock()
	if known {
		regLog.Debug("unregistered", slog.Int("pid", pid))
	}
}

// Pids returns the registered pids in ascending order.
func (r *Registry) Pids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.pids))
	for pid := range r.pids {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of registered pids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pids)
}

// Shutdown sends SIGTERM to every registered pid that is still alive
// and clears the registry. Children that already exited are skipped;
// signal errors are logged and ignored because the child can die
// between the liveness probe and the kill.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	pids := make(map[int]string, len(r.pids))
	for pid, label := range r.pids {
		pids[pid] = label
	}
	r.pids = make(map[int]string)
	r.mu.Unlock()

	if len(pids) > 0 {
		regLog.Info("shutdown", slog.Int("live_children", len(pids)))
	}
	for pid, label := range pids {
		if syscall.Kill(pid, 0) != nil {
			continue // already gone
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			regLog.Warn("shutdown_signal_failed",
				slog.Int("pid", pid),
				slog.String("label", label),
				slog.String("error", err.Error()))
		}
	}
}
