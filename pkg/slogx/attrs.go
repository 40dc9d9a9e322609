package slogx

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string
// representation of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

const (
	// KeyLoggerName is the key for the logger name.
	KeyLoggerName = "logger"
	KeyNoteType   = "note_type"
	KeyNote       = "note"
	KeyHandler    = "handler"
	KeyEmission   = "emission"
	KeyDuration   = "duration"
)

// LoggerName creates a slog.Attr with the provided logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// NoteType names the declared type of the note being delivered.
func NoteType(t fmt.Stringer) slog.Attr {
	return Stringer(KeyNoteType, t)
}

// Note renders a note with the given formatter. The formatter runs lazily,
// only when the record is actually handled.
func Note(n any, format func(any) string) slog.Attr {
	return slog.Any(KeyNote, lazy{v: n, format: format})
}

func Handler(name string) slog.Attr {
	return slog.String(KeyHandler, name)
}

func EmissionID(id string) slog.Attr {
	return slog.String(KeyEmission, id)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

type lazy struct {
	v      any
	format func(any) string
}

func (l lazy) LogValue() slog.Value {
	return slog.StringValue(l.format(l.v))
}

func (l lazy) String() string {
	return l.format(l.v)
}

// MarshalJSON serves handlers that encode attribute values as JSON without
// resolving slog.LogValuer first.
func (l lazy) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(l.format(l.v))), nil
}
