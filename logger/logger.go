package logger

import "io"

// Logger interface defines core logging methods
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)

	// Configuration
	SetLevel(level LogLevel)
	GetLevel() LogLevel
	SetOutput(w io.Writer)

	// TraceSQL logs a planned statement's SQL text and the Go type name
	// of each bound parameter, at Debug level. Callers pass type names
	// rather than the parameter values themselves, so turning tracing on
	// never risks writing bound data to a log sink.
	TraceSQL(sqlText string, paramTypes []string)
}
