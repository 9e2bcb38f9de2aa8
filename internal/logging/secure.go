// Package logging wraps the zerolog logger so that every string reaching a
// log line passes through the credential sanitizer first. Attachment URLs,
// gateway errors and Telegram API errors all pass through here.
package logging

import (
	"time"

	"github.com/rs/zerolog"

	internalerrors "github.com/ryubing/robocop-go/internal/errors"
	"github.com/ryubing/robocop-go/pkg/logger"
)

var clean = internalerrors.SanitizeString

// SecureLogger is the logger handed to every component.
type SecureLogger struct {
	log *logger.Logger
}

// NewSecure wraps log.
func NewSecure(log *logger.Logger) *SecureLogger {
	return &SecureLogger{log: log}
}

// Nop returns a SecureLogger that discards everything.
func Nop() *SecureLogger {
	return &SecureLogger{log: logger.Nop()}
}

// Component returns a child logger tagged with the component name.
func (s *SecureLogger) Component(name string) *SecureLogger {
	return s.With("component", name)
}

// With returns a child logger carrying a sanitized string field.
func (s *SecureLogger) With(key, val string) *SecureLogger {
	return &SecureLogger{log: s.log.WithStr(key, clean(val))}
}

func (s *SecureLogger) Debug() *SecureEvent { return &SecureEvent{e: s.log.Debug()} }
func (s *SecureLogger) Info() *SecureEvent  { return &SecureEvent{e: s.log.Info()} }
func (s *SecureLogger) Warn() *SecureEvent  { return &SecureEvent{e: s.log.Warn()} }
func (s *SecureLogger) Error() *SecureEvent { return &SecureEvent{e: s.log.Error()} }

// Close closes the underlying log file.
func (s *SecureLogger) Close() error {
	return s.log.Close()
}

// SecureEvent is a zerolog event restricted to sanitized field setters.
// Numeric fields pass through untouched.
type SecureEvent struct {
	e *zerolog.Event
}

func (ev *SecureEvent) Str(key, val string) *SecureEvent {
	ev.e.Str(key, clean(val))
	return ev
}

func (ev *SecureEvent) Strs(key string, vals []string) *SecureEvent {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = clean(v)
	}
	ev.e.Strs(key, out)
	return ev
}

func (ev *SecureEvent) Int(key string, val int) *SecureEvent {
	ev.e.Int(key, val)
	return ev
}

func (ev *SecureEvent) Int64(key string, val int64) *SecureEvent {
	ev.e.Int64(key, val)
	return ev
}

func (ev *SecureEvent) Bool(key string, val bool) *SecureEvent {
	ev.e.Bool(key, val)
	return ev
}

func (ev *SecureEvent) Dur(key string, val time.Duration) *SecureEvent {
	ev.e.Dur(key, val)
	return ev
}

// Err attaches a sanitized copy of err. Nil is ignored.
func (ev *SecureEvent) Err(err error) *SecureEvent {
	if err != nil {
		ev.e.Err(internalerrors.SanitizeError(err))
	}
	return ev
}

// Msg sends the event.
func (ev *SecureEvent) Msg(msg string) {
	ev.e.Msg(clean(msg))
}
