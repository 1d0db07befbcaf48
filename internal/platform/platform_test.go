package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	p := Detect()
	assert.NotEmpty(t, p)

	if runtime.GOOS == "darwin" {
		assert.Equal(t, MacOS, p)
	}

	// Cached.
	assert.Equal(t, p, Detect())
}

func TestPlatformString(t *testing.T) {
	tests := []struct {
		platform Platform
		expected string
	}{
		{MacOS, "macOS"},
		{Linux, "Linux"},
		{WSL1, "WSL1"},
		{WSL2, "WSL2"},
		{Windows, "Windows"},
		{Unknown, "Unknown"},
		{Platform("bogus"), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.platform.String())
	}
}

func TestCheckFsnotifySupport_LocalPath(t *testing.T) {
	// A temp dir is on a local filesystem everywhere we run tests.
	warning := CheckFsnotifySupport(t.TempDir())
	assert.Empty(t, warning)
}
