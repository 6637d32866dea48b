// Package plog provides the process-wide structured logger for smartbackup.
//
// Console output is split by level: INFO and below go to stdout, WARNING and
// above go to stderr. An optional append-only JSON log file under the state
// root records every event of a run, one file per day.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LevelNotice sits between DEBUG and INFO. It is used for per-file chatter
// (ADD, COPY, DELETE) that would drown the default output.
const LevelNotice = slog.Level(-2)

// levelNames maps the custom verbosity names accepted by the CLI.
var levelNames = map[string]slog.Level{
	"debug":  slog.LevelDebug,
	"notice": LevelNotice,
	"info":   slog.LevelInfo,
	"warn":   slog.LevelWarn,
	"error":  slog.LevelError,
}

// LevelFromString parses a level name, falling back to INFO for unknown input.
func LevelFromString(s string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// multiHandler fans a record out to several handlers (console plus log file).
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

var (
	mu            sync.Mutex
	defaultLogger atomic.Pointer[slog.Logger]
	levelVar      = new(slog.LevelVar)
	logFile       *os.File
)

func init() {
	levelVar.Set(slog.LevelInfo)
	defaultLogger.Store(slog.New(consoleHandler()))
}

// consoleHandler builds the split stdout/stderr handler honoring the
// current level variable.
func consoleHandler() slog.Handler {
	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelVar,
	})
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	return &LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	}
}

// SetLevel adjusts the minimum level emitted by the console handler.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// SetOutput allows redirecting the logger's output, primarily for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})))
}

// EnableFileLogging attaches an append-only JSON handler writing into
// logDir, one file per day (smartbackup_YYYYMMDD.log). The file handler
// records everything from NOTICE up regardless of the console level, so the
// on-disk history of a run is complete.
func EnableFileLogging(logDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	name := "smartbackup_" + time.Now().Format("20060102") + ".log"
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile = f

	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: LevelNotice})
	defaultLogger.Store(slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler(), fileHandler}}))
	return nil
}

// CloseFileLogging flushes and detaches the log file handler, if any.
func CloseFileLogging() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	defaultLogger.Store(slog.New(consoleHandler()))
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Load().Debug(msg, args...)
}

// Notice logs a per-item progress message.
func Notice(msg string, args ...any) {
	defaultLogger.Load().Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Load().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
