// Package logs is a small leveled logging backend in the style of
// btcsuite's btclog: a Backend fans writes out to one or more
// BackendWriters, and Logger instances (one per subsystem tag) filter by
// their own independently-settable Level.
package logs

import "strings"

// Level is a logging severity, ordered from most to least verbose.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRC"
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarn:
		return "WRN"
	case LevelError:
		return "ERR"
	case LevelCritical:
		return "CRT"
	case LevelOff:
		return "OFF"
	default:
		return "UNK"
	}
}

// LevelFromString parses a case-insensitive level name. It returns
// LevelInfo, false for anything it does not recognize — callers that want
// to reject bad input should check the bool.
func LevelFromString(s string) (Level, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "critical":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}
