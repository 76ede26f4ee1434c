// Package logging provides the structured logging abstraction used by the
// ingestion pipeline. Components depend on Logger, never on logrus directly,
// so tests can swap in MockLogger and assert on what a stage reported.
package logging

// Logger defines the structured logging contract shared by every pipeline stage.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithError returns a child logger carrying err on every entry.
	WithError(err error) Logger

	// WithField returns a child logger carrying a single field.
	WithField(key string, value interface{}) Logger

	// WithFields returns a child logger carrying the given fields.
	WithFields(fields ...Field) Logger

	// Fatal logs and exits the process. Only command handlers call it.
	Fatal(msg string, fields ...Field)

	// Fatalf is the formatted variant of Fatal.
	Fatalf(msg string, args ...interface{})
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field inline.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// OrDefault returns logger, or an info-level text logger when logger is nil.
func OrDefault(logger Logger) Logger {
	if logger == nil {
		return NewLogrusAdapter("info", "text")
	}
	return logger
}
