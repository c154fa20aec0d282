// Package telemetry carries the ambient logging and metrics concerns. The
// teacher never reaches for a structured logging library (every call site
// is a bare log.Printf with an emoji banner), so this keeps that register
// rather than importing zerolog/zap the rest of the pack sometimes uses —
// a thin wrapper that stamps the component name is enough to match the
// teacher's own idiom.
package telemetry

import (
	"log"
	"os"
)

// Logger prefixes every line with a component tag, the same shallow
// wrapping the teacher achieves informally via hardcoded emoji banners
// like "🚀 Starting..." or "🛑 Circuit breaker tripped".
type Logger struct {
	component string
	std       *log.Logger
}

func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stdout, "", log.LstdFlags),
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.std.Printf("ℹ️  ["+l.component+"] "+format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.std.Printf("⚠️  ["+l.component+"] "+format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.std.Printf("🛑 ["+l.component+"] "+format, args...)
}

func (l *Logger) Trade(format string, args ...interface{}) {
	l.std.Printf("💰 ["+l.component+"] "+format, args...)
}
