package domain

import (
	"fmt"
	"strings"
)

// Level is the severity of a log event.
type Level int32

const (
	LevelVerbose Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelFatal
)

// String returns the name used on the wire for the level.
func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "Verbose"
	case LevelDebug:
		return "Debug"
	case LevelInformation:
		return "Information"
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= LevelVerbose && l <= LevelFatal
}

// ParseLevel parses a level name (case-insensitive).
// Both the long names and the common short forms are accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace", "vrb":
		return LevelVerbose, nil
	case "debug", "dbg":
		return LevelDebug, nil
	case "information", "info", "inf":
		return LevelInformation, nil
	case "warning", "warn", "wrn":
		return LevelWarning, nil
	case "error", "err", "eror":
		return LevelError, nil
	case "fatal", "critical", "ftl":
		return LevelFatal, nil
	default:
		return LevelInformation, fmt.Errorf("unknown level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
