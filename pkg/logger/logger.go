// Package logger builds the bot's zerolog logger: JSON lines into a rotating
// file, optionally mirrored to a human-readable console.
package logger

import (
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a zerolog.Logger that owns its rotating file.
type Logger struct {
	zerolog.Logger
	closer io.Closer
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	LogDir     string
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console mirrors every line to ConsoleOut (stderr when nil) in
	// zerolog's console format.
	Console    bool
	ConsoleOut io.Writer

	// Fields are attached to every line, e.g. the bot version.
	Fields map[string]string
}

func (c Config) withDefaults() Config {
	if c.LogDir == "" {
		c.LogDir = "./logs"
	}
	if c.Filename == "" {
		c.Filename = "robocop.log"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
	if c.ConsoleOut == nil {
		c.ConsoleOut = os.Stderr
	}
	return c
}

// New creates the logger and sets the global level. If the log directory
// cannot be created it logs to stderr only.
func New(cfg Config) *Logger {
	cfg = cfg.withDefaults()

	level, _ := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return &Logger{Logger: withFields(zerolog.New(os.Stderr).With().Timestamp(), cfg.Fields).Logger()}
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, cfg.Filename),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	var out io.Writer = file
	if cfg.Console {
		out = zerolog.MultiLevelWriter(file, zerolog.ConsoleWriter{
			Out:        cfg.ConsoleOut,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}

	ctx := zerolog.New(out).With().Timestamp().Caller()
	return &Logger{Logger: withFields(ctx, cfg.Fields).Logger(), closer: file}
}

func withFields(ctx zerolog.Context, fields map[string]string) zerolog.Context {
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		ctx = ctx.Str(k, fields[k])
	}
	return ctx
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// NewWriter returns a logger writing JSON lines to w without rotation.
func NewWriter(w io.Writer) *Logger {
	return &Logger{Logger: zerolog.New(w).With().Timestamp().Logger()}
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level. Unknown values
// report false and fall back to info.
func ParseLevel(level string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, level != ""
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}

// Close closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithStr returns a child logger carrying a string field. The child shares the
// parent's file.
func (l *Logger) WithStr(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With().Str(key, value).Logger(), closer: l.closer}
}
