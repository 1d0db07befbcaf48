package procreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := New()
	r.Register(101, "telemetry")
	r.Register(202, "observe")
	assert.Equal(t, []int{101, 202}, r.Pids())

	r.Unregister(101)
	assert.Equal(t, []int{202}, r.Pids())
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r := New()
	r.Unregister(999)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DoubleUnregister(t *testing.T) {
	// Teardown and exit handling both unregister; the second call must
	// not care.
	r := New()
	r.Register(42, "telemetry")
	r.Unregister(42)
	r.Unregister(42)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_InvalidPidIgnored(t *testing.T) {
	r := New()
	r.Register(0, "bad")
	r.Register(-5, "worse")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ShutdownClears(t *testing.T) {
	r := New()
	// A pid that certainly does not exist, so Shutdown's liveness probe
	// skips it instead of signaling.
	r.Register(1<<30 - 1, "ghost")
	r.Shutdown()
	assert.Equal(t, 0, r.Len())
}
