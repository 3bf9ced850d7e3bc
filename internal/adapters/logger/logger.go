// Package logger provides the ports.Logger implementations.
package logger

import (
	"io"
	"os"
	"strings"

	"eveBot/internal/ports"
)

// LogLevel is the minimum severity a logger writes.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps LOG_LEVEL values onto a LogLevel. Unknown values give LevelInfo.
func ParseLevel(s string) LogLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for level, name := range levelNames {
		if name == s {
			return level
		}
	}
	return LevelInfo
}

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New returns the logger for format writing to w. Unknown formats fall back to text.
func New(format Format, level LogLevel, w io.Writer) ports.Logger {
	if w == nil {
		w = os.Stderr
	}
	if Format(strings.ToLower(string(format))) == FormatJSON {
		return NewZerologLogger(w, level)
	}
	return NewStdLoggerTo(w, level)
}

// mergeFields flattens the variadic field maps; later maps win on key clashes.
func mergeFields(fields []map[string]interface{}) map[string]interface{} {
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return fields[0]
	}
	out := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}
