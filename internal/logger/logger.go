// Package logger provides leveled printf-style logging.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var (
	minLevel = InfoLevel
	std      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// Init sets the minimum level and output format of the default logger.
// Format "text" adds source locations; anything else is plain.
func Init(level string, format string) {
	switch strings.ToLower(level) {
	case "debug":
		minLevel = DebugLevel
	case "warn":
		minLevel = WarnLevel
	case "error":
		minLevel = ErrorLevel
	default:
		minLevel = InfoLevel
	}

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	std = log.New(os.Stderr, "", flags)
}

func output(level Level, tag, format string, args []any) {
	if minLevel > level {
		return
	}
	_ = std.Output(3, fmt.Sprintf(tag+format, args...))
}

func Debug(format string, args ...any) { output(DebugLevel, "[DEBUG] ", format, args) }

func Info(format string, args ...any) { output(InfoLevel, "[INFO] ", format, args) }

func Warn(format string, args ...any) { output(WarnLevel, "[WARN] ", format, args) }

func Error(format string, args ...any) { output(ErrorLevel, "[ERROR] ", format, args) }

// Fatal logs at the highest severity and exits the process.
func Fatal(format string, args ...any) {
	_ = std.Output(3, fmt.Sprintf("[FATAL] "+format, args...))
	os.Exit(1)
}
