package wire

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"
)

// Level is the severity of a log record. Lower values are more severe.
type Level uint8

const (
	LevelError Level = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// SlogTrace is the slog level used for LevelTrace.
const SlogTrace = slog.LevelDebug - 4

var levelNames = [...]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

func (l Level) String() string {
	if l.Valid() {
		return levelNames[l]
	}
	return fmt.Sprintf("LEVEL(%d)", uint8(l))
}

// Valid reports whether l is one of the five defined levels.
func (l Level) Valid() bool {
	return l >= LevelError && l <= LevelTrace
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("wire: invalid level %d", uint8(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is case
// insensitive.
func (l *Level) UnmarshalText(text []byte) error {
	s := strings.ToUpper(string(text))
	for i, name := range levelNames {
		if name != "" && name == s {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("wire: unknown level %q", string(text))
}

// JSONSchema describes the text form of a Level.
func (Level) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{"ERROR", "WARN", "INFO", "DEBUG", "TRACE"},
	}
}

// LevelFromSlog maps a slog level onto the nearest wire level at or below
// its severity.
func LevelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	case l >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// Slog returns the slog level for l.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	default:
		return SlogTrace
	}
}
