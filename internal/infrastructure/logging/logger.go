// Package logging provides structured logging for components, the central
// store, and the reactor loop that drives them.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the key-value field convention used
// throughout the domain layer's narrow Logger interfaces (Debug, Info,
// Warn, Error, each taking msg plus alternating key/value fields).
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger writing to w at the given level. Valid levels:
// debug, info, warn, error, fatal, panic, trace. An unparsable level
// falls back to info rather than erroring, since a bad config value
// shouldn't prevent a component from starting.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewConsole builds a human-readable console logger; the mbeictl
// component and central commands log through it.
func NewConsole(level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zl := zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// WithQuery returns a sub-logger tagging every record with the owning
// query's name, used when a process hosts more than one query and log
// lines need to stay attributable.
func (l *Logger) WithQuery(queryName string) *Logger {
	return &Logger{zl: l.zl.With().Str("query", queryName).Logger()}
}

// WithEvent returns a sub-logger tagging every record with an event's id
// and timestamp, used while a single event is propagating through the
// consistency loop.
func (l *Logger) WithEvent(eventID string, timestamp uint64) *Logger {
	return &Logger{zl: l.zl.With().Str("event_id", eventID).Uint64("event_ts", timestamp).Logger()}
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	ev := l.zl.Info()
	l.addFields(ev, fields...)
	ev.Msg(msg)
}

func (l *Logger) Warn(msg string, fields ...interface{}) {
	ev := l.zl.Warn()
	l.addFields(ev, fields...)
	ev.Msg(msg)
}

func (l *Logger) Error(msg string, fields ...interface{}) {
	ev := l.zl.Error()
	l.addFields(ev, fields...)
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	ev := l.zl.Debug()
	l.addFields(ev, fields...)
	ev.Msg(msg)
}

// Fatal logs at fatal level then exits the process, used only at startup
// (e.g. an unrecoverable config or storage failure) — never from within
// the consistency loop, which must return errors to its caller instead.
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	ev := l.zl.Fatal()
	l.addFields(ev, fields...)
	ev.Msg(msg)
}

func (l *Logger) addFields(ev *zerolog.Event, fields ...interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			ev.Str(key, v)
		case int:
			ev.Int(key, v)
		case int64:
			ev.Int64(key, v)
		case uint64:
			ev.Uint64(key, v)
		case float64:
			ev.Float64(key, v)
		case bool:
			ev.Bool(key, v)
		case error:
			ev.Err(v)
		case time.Duration:
			ev.Dur(key, v)
		case time.Time:
			ev.Time(key, v)
		default:
			ev.Interface(key, v)
		}
	}
}

// Nop returns a logger that discards all output, used in tests that don't
// care about log lines.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

var defaultLogger = New(os.Stdout, "info")

func Default() *Logger   { return defaultLogger }
func SetDefault(l *Logger) { defaultLogger = l }
