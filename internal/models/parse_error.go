package models

import "fmt"

// Severity grades a ParseError.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseError is a diagnostic attached to a result. Per-line problems are
// collected as ParseErrors; they are never returned as Go errors.
type ParseError struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
}

// NewLineError builds a medium-severity error for a 1-based source line.
func NewLineError(line int, format string, args ...interface{}) ParseError {
	return ParseError{
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityMedium,
		Line:     line,
	}
}

// NewFatalError builds a high-severity error not tied to a line.
func NewFatalError(format string, args ...interface{}) ParseError {
	return ParseError{
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityHigh,
	}
}

// HasLine reports whether the error references a source line.
func (e ParseError) HasLine() bool {
	return e.Line > 0
}

func (e ParseError) String() string {
	if e.HasLine() {
		return fmt.Sprintf("line %d: %s (%s)", e.Line, e.Message, e.Severity)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Severity)
}
