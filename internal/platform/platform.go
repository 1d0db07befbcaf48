// Package platform detects the host environment. The PTY tool lookup
// probes different install locations per platform, and the config
// watcher needs to know when the underlying filesystem cannot deliver
// fsnotify events.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is the detected host environment.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	WSL1    Platform = "wsl1"
	WSL2    Platform = "wsl2"
	Windows Platform = "windows"
	Unknown Platform = "unknown"
)

var detect = sync.OnceValue(detectPlatform)

// Detect returns the current platform, caching the result.
func Detect() Platform {
	return detect()
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	case "linux":
		return detectLinuxOrWSL()
	default:
		return Unknown
	}
}

// detectLinuxOrWSL distinguishes native Linux from WSL.
func detectLinuxOrWSL() Platform {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return detectWSLVersion()
	}

	procVersion, err := os.ReadFile("/proc/version")
	if err != nil {
		return Linux
	}
	versionStr := string(procVersion)
	if strings.Contains(versionStr, "microsoft") || strings.Contains(versionStr, "Microsoft") {
		return detectWSLVersion()
	}
	return Linux
}

// detectWSLVersion tells WSL1 from WSL2. WSL2 kernels carry
// "microsoft-standard" in /proc/version; WSL1 has "Microsoft" without
// it. Past that, WSL2-only virtualization paths are the tiebreak.
func detectWSLVersion() Platform {
	procVersion, err := os.ReadFile("/proc/version")
	if err == nil {
		versionStr := string(procVersion)
		if strings.Contains(versionStr, "microsoft-standard") {
			return WSL2
		}
		if strings.Contains(versionStr, "Microsoft") {
			return WSL1
		}
	}

	if _, err := os.Stat("/run/WSL"); err == nil {
		return WSL2
	}
	if _, err := os.Stat("/dev/vsock"); err == nil {
		return WSL2
	}

	// WSL1 is the more limited environment, so assume it.
	return WSL1
}

// IsWSL reports whether the host is any WSL environment.
func IsWSL() bool {
	p := Detect()
	return p == WSL1 || p == WSL2
}

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case MacOS:
		return "macOS"
	case Linux:
		return "Linux"
	case WSL1:
		return "WSL1"
	case WSL2:
		return "WSL2"
	case Windows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport reports a human-readable warning when the
// filesystem holding path cannot deliver fsnotify events reliably
// (9p under WSL2, network mounts), or "" when watching should work.
func CheckFsnotifySupport(path string) string {
	// Only Linux mounts misbehave this way; WSL2 reaches Windows
	// files over 9p.
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	// /proc/mounts format: device mountpoint fstype options ...
	// The longest mountpoint prefix wins.
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(string(mounts), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint := fields[1]
		if strings.HasPrefix(absPath, mountPoint) && len(mountPoint) > len(matchedMount) {
			matchedMount = mountPoint
			matchedFsType = fields[2]
		}
	}

	switch {
	case matchedFsType == "9p":
		return "config on 9p mount (WSL2 Windows filesystem): auto-reload disabled, restart to apply changes"
	case matchedFsType == "nfs" || matchedFsType == "nfs4":
		return "config on NFS mount: auto-reload may be unreliable"
	case matchedFsType == "cifs" || matchedFsType == "smbfs":
		return "config on CIFS/SMB mount: auto-reload may be unreliable"
	case strings.HasPrefix(matchedFsType, "fuse.sshfs"):
		return "config on SSHFS mount: auto-reload disabled, restart to apply changes"
	}
	return ""
}
