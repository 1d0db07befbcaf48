// Package config loads user-facing configuration from
// ~/.termscope/config.toml. Every setting has a working default; a
// missing file is not an error.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file inside the termscope directory.
const FileName = "config.toml"

// Dir returns the termscope state directory, honoring TERMSCOPE_DIR
// for tests and parallel installs.
func Dir() (string, error) {
	if dir := os.Getenv("TERMSCOPE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, ".termscope"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Config is the full user configuration.
type Config struct {
	// Tool configures which CLI is monitored.
	Tool ToolSettings `toml:"tool"`

	// Telemetry tunes the background query cycle.
	Telemetry TelemetrySettings `toml:"telemetry"`

	// Restart controls the supervisor's respawn behavior.
	Restart RestartSettings `toml:"restart"`

	// Scanner configures visible-session detection.
	Scanner ScannerSettings `toml:"scanner"`

	// Logs configures the debug log.
	Logs LogSettings `toml:"logs"`

	// History configures snapshot persistence.
	History HistorySettings `toml:"history"`
}

// ToolSettings selects the monitored CLI tool.
type ToolSettings struct {
	// Command is the tool's command name as found on PATH
	// Default: "claude"
	Command string `toml:"command"`

	// Rows/Cols size the hidden PTY. Defaults: 40x120
	Rows int `toml:"rows"`
	Cols int `toml:"cols"`
}

// GetCommand returns the tool command, defaulting to "claude".
func (t ToolSettings) GetCommand() string {
	if t.Command == "" {
		return "claude"
	}
	return t.Command
}

// TelemetrySettings tunes the background query cycle.
type TelemetrySettings struct {
	// WarmupSecs is how long to wait after spawn before the first
	// query. Default: 8
	WarmupSecs int `toml:"warmup_secs"`

	// AttemptIntervalSecs is the wait between query attempts within a
	// cycle. Default: 15
	AttemptIntervalSecs int `toml:"attempt_interval_secs"`

	// MaxAttempts is the number of attempt windows per cycle. Default: 3
	MaxAttempts int `toml:"max_attempts"`

	// PollIntervalSecs is the wait between successful cycles. Default: 300
	PollIntervalSecs int `toml:"poll_interval_secs"`

	// SettleMs is the output quiescence window before parsing. Default: 300
	SettleMs int `toml:"settle_ms"`
}

func (t TelemetrySettings) GetWarmup() time.Duration {
	return secondsOr(t.WarmupSecs, 8*time.Second)
}

func (t TelemetrySettings) GetAttemptInterval() time.Duration {
	return secondsOr(t.AttemptIntervalSecs, 15*time.Second)
}

func (t TelemetrySettings) GetMaxAttempts() int {
	if t.MaxAttempts <= 0 {
		return 3
	}
	return t.MaxAttempts
}

func (t TelemetrySettings) GetPollInterval() time.Duration {
	return secondsOr(t.PollIntervalSecs, 300*time.Second)
}

func (t TelemetrySettings) GetSettle() time.Duration {
	if t.SettleMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(t.SettleMs) * time.Millisecond
}

// RestartSettings controls child respawn after an exit.
type RestartSettings struct {
	// Policy is "backoff" (default) or "fixed".
	// backoff: exponential delay growth with an attempt cap
	// fixed: constant cooldown, restart forever
	Policy string `toml:"policy"`

	// BaseDelaySecs is the first backoff delay. Default: 5
	BaseDelaySecs int `toml:"base_delay_secs"`

	// MaxDelaySecs is the backoff ceiling. Default: 300
	MaxDelaySecs int `toml:"max_delay_secs"`

	// MaxAttempts is consecutive failures before giving up.
	// Default: 20. Ignored by the fixed policy.
	MaxAttempts int `toml:"max_attempts"`

	// CooldownSecs is the fixed policy's constant delay. Default: 5
	CooldownSecs int `toml:"cooldown_secs"`
}

// GetPolicy returns "backoff" or "fixed", defaulting to "backoff".
func (r RestartSettings) GetPolicy() string {
	if r.Policy == "fixed" {
		return "fixed"
	}
	return "backoff"
}

func (r RestartSettings) GetBaseDelay() time.Duration {
	return secondsOr(r.BaseDelaySecs, 5*time.Second)
}

func (r RestartSettings) GetMaxDelay() time.Duration {
	return secondsOr(r.MaxDelaySecs, 300*time.Second)
}

func (r RestartSettings) GetMaxAttempts() int {
	if r.MaxAttempts <= 0 {
		return 20
	}
	return r.MaxAttempts
}

func (r RestartSettings) GetCooldown() time.Duration {
	return secondsOr(r.CooldownSecs, 5*time.Second)
}

// ScannerSettings configures visible-session detection.
type ScannerSettings struct {
	// Invocation is the command name the heuristic looks for next to a
	// shell prompt. Default: the tool command.
	Invocation string `toml:"invocation"`
}

// LogSettings configures the debug log.
type LogSettings struct {
	// Level is "debug", "info" (default), "warn", or "error".
	Level string `toml:"level"`

	// Format is "json" (default) or "text".
	Format string `toml:"format"`

	// MaxSizeMB is the rotation threshold. Default: 10
	MaxSizeMB int `toml:"max_size_mb"`

	// Backups is how many rotated files to keep. Default: 5
	Backups int `toml:"backups"`

	// RetentionDays is how long rotated files live. Default: 10
	RetentionDays int `toml:"retention_days"`

	// Compress gzips rotated files. Default: true
	Compress *bool `toml:"compress"`

	// RingBufferMB sizes the in-memory crash-dump ring. Default: 1
	RingBufferMB int `toml:"ring_buffer_mb"`

	// AggregateIntervalSecs is the event summary flush interval. Default: 30
	AggregateIntervalSecs int `toml:"aggregate_interval_secs"`

	// PprofEnabled starts a pprof server on localhost:6060. Default: false
	PprofEnabled bool `toml:"pprof_enabled"`
}

// GetCompress returns whether rotated logs are gzipped, defaulting to true.
func (l LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// HistorySettings configures snapshot persistence.
type HistorySettings struct {
	// Enabled stores every successful snapshot in the local database.
	// Default: true
	Enabled *bool `toml:"enabled"`

	// Limit is how many recent snapshots the history command shows.
	// Default: 50
	Limit int `toml:"limit"`
}

// GetEnabled returns whether history is recorded, defaulting to true.
func (h HistorySettings) GetEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

func (h HistorySettings) GetLimit() int {
	if h.Limit <= 0 {
		return 50
	}
	return h.Limit
}

// GetInvocation returns the scan target, falling back to the tool command.
func (c *Config) GetInvocation() string {
	if c.Scanner.Invocation != "" {
		return c.Scanner.Invocation
	}
	return c.Tool.GetCommand()
}

// Load reads the config file at path. A missing file yields defaults;
// a malformed file yields defaults plus the parse error so the caller
// can surface it without dying.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault loads from the standard location.
func LoadDefault() (*Config, error) {
	path, err := Path()
	if err != nil {
		return &Config{}, err
	}
	return Load(path)
}

// Save writes the config atomically: temp file, fsync, rename. A crash
// mid-save never leaves a truncated config behind.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# termscope configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: write temp: %w", err)
	}
	if f, err := os.Open(tmp); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: finalize: %w", err)
	}
	return nil
}

// ExpandTilde expands a leading ~/ against the user's home directory.
func ExpandTilde(p string) string {
	if !strings.HasPrefix(p, "~/") && p != "~" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}
