// Package logging is the structured logging backbone: slog handlers
// with per-component tagging, lumberjack file rotation, an in-memory
// ring for crash dumps, and an aggregator for high-frequency events
// (PTY read chunks arrive far too often to log individually).
package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names used in structured log records.
const (
	CompPTY       = "pty"
	CompTelemetry = "telemetry"
	CompParser    = "parser"
	CompScanner   = "scanner"
	CompProc      = "proc"
	CompConfig    = "config"
	CompStorage   = "storage"
	CompUI        = "ui"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for log files (e.g. ~/.termscope)
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format is "json" (default) or "text"
	Format string

	// MaxSizeMB is the max size in MB before rotation (default: 10)
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 5)
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default: 10)
	MaxAgeDays int

	// Compress rotated files
	Compress bool

	// RingSize is the in-memory crash ring size in bytes (default: 1MB)
	RingSize int

	// AggregateInterval is the aggregation flush interval in seconds (default: 30)
	AggregateInterval int

	// PprofEnabled starts a pprof server on localhost:6060
	PprofEnabled bool

	// Debug indicates whether debug mode is active
	Debug bool
}

var (
	globalMu     sync.RWMutex
	globalLogger *slog.Logger
	globalRing   *Ring
	globalAgg    *Aggregator
	fileWriter   *lumberjack.Logger
)

// Init initializes the global logging system. When debug is off and no
// log dir is configured, records are discarded.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 1 << 20
	}
	if cfg.AggregateInterval <= 0 {
		cfg.AggregateInterval = 30
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if !cfg.Debug && cfg.LogDir == "" {
		globalLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		globalRing = NewRing(1024)
		globalAgg = NewAggregator(nil, cfg.AggregateInterval)
		return
	}

	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "termscope.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	globalRing = NewRing(cfg.RingSize)
	multi := io.MultiWriter(fileWriter, globalRing)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(multi, opts)
	} else {
		handler = slog.NewJSONHandler(multi, opts)
	}

	globalLogger = slog.New(handler)

	globalAgg = NewAggregator(globalLogger, cfg.AggregateInterval)
	globalAgg.Start()

	if cfg.PprofEnabled {
		startPprof()
	}
}

// Logger returns the global logger. Safe to call before Init.
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return globalLogger
}

// ForComponent returns a sub-logger with the component field set.
// Package-level loggers (var ptyLog = logging.ForComponent(...)) are
// created before Init runs, so the returned logger resolves the real
// handler at log time rather than capturing whatever exists now.
func ForComponent(name string) *slog.Logger {
	return slog.New(&lateBoundHandler{component: name})
}

// lateBoundHandler delegates to the current global handler on every
// record. Capturing the handler at construction would permanently bind
// pre-Init loggers to the discard handler.
type lateBoundHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *lateBoundHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *lateBoundHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler()
	handler = handler.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *lateBoundHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	copy(merged[len(h.attrs):], attrs)
	return &lateBoundHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *lateBoundHandler) WithGroup(name string) slog.Handler {
	return &lateBoundHandler{component: h.component, attrs: h.attrs, group: name}
}

// Aggregate records a high-frequency event for batched logging.
func Aggregate(component, event string, fields ...slog.Attr) {
	globalMu.RLock()
	agg := globalAgg
	globalMu.RUnlock()
	if agg != nil {
		agg.Record(component, event, fields...)
	}
}

// DumpRing writes the crash ring contents to a file.
func DumpRing(path string) error {
	globalMu.RLock()
	ring := globalRing
	globalMu.RUnlock()
	if ring == nil {
		return nil
	}
	return ring.DumpToFile(path)
}

// Shutdown flushes the aggregator and closes writers.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalAgg != nil {
		globalAgg.Stop()
		globalAgg = nil
	}
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
	globalLogger = nil
	globalRing = nil
}
