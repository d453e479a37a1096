package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// level resolves the effective level of module: its override when that
// parses, else the global level, else info.
func (c Config) level(module string) slog.Level {
	if l, ok := ParseLevel(c.Modules[module]); ok && module != "" {
		return l
	}
	if l, ok := ParseLevel(c.Level); ok {
		return l
	}
	return slog.LevelInfo
}

// registry is the process-wide logger state.
type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	global      slog.LevelVar
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	buffer      *RingBuffer
	callback    LogCallback
}

func newRegistry() *registry {
	return &registry{
		config:  Config{Format: "text"},
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
	}
}

var reg = newRegistry()

// Initialize sets up the logging system.
func Initialize(config Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.config = config
	reg.initialized = true
	reg.buffer = NewRingBuffer(defaultBufferSize)
	reg.global.Set(config.level(""))

	// Loggers handed out earlier keep their LevelVar; GetLogger returns a
	// rebuilt logger in the configured format from here on.
	for module, lv := range reg.levels {
		lv.Set(config.level(module))
		reg.loggers[module] = newModuleLogger(config.Format, lv, module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, &reg.global)))
}

// SetLevels applies new global and per-module levels to every logger,
// including ones already handed out. The output format is unchanged.
func SetLevels(level string, modules map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.config.Level = level
	reg.config.Modules = modules
	reg.global.Set(reg.config.level(""))
	for module, lv := range reg.levels {
		lv.Set(reg.config.level(module))
	}
}

// GetBuffer returns the log history, or nil before Initialize.
func GetBuffer() *RingBuffer {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.buffer
}

// SetLogCallback sets a callback run for every recorded entry. The relay
// uses it to mirror log lines onto the event bus.
func SetLogCallback(callback LogCallback) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.callback = callback
}

func sinks() (*RingBuffer, LogCallback) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.buffer, reg.callback
}

// GetLogger returns the logger for module, creating it on first use. Every
// record it emits carries a "module" attribute.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	logger, ok := reg.loggers[module]
	reg.mu.RUnlock()
	if ok {
		return logger
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if logger, ok := reg.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	if reg.initialized {
		lv.Set(reg.config.level(module))
	}
	logger = newModuleLogger(reg.config.Format, lv, module)
	reg.loggers[module] = logger
	reg.levels[module] = lv
	return logger
}

func newModuleLogger(format string, level slog.Leveler, module string) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", module)
}

// createHandler fans out to stdout (when something is attached), the journal
// (when running under systemd) and the in-memory history.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if stdoutAttached() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// stdoutAttached reports whether stdout is a terminal, pipe, socket or file.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

// ParseLevel converts a level name to a slog.Level. "warning" is accepted
// as an alias of "warn"; matching ignores case.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// LevelName is the lowercase name recorded in history entries.
func LevelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
