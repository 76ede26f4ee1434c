// Package parsererror holds the typed errors pipeline stages return to the
// orchestrator. None of them reach the caller of a parse: the orchestrator
// converts them into ParseError entries on the result.
package parsererror

import (
	"errors"
	"fmt"
)

var (
	// ErrPasswordRequired signals an encrypted PDF read without a password.
	ErrPasswordRequired = errors.New("password required")
	// ErrPasswordIncorrect signals an encrypted PDF read with a wrong password.
	ErrPasswordIncorrect = errors.New("incorrect password")
	// ErrFormatNotRecognized is returned when no registry format matches.
	ErrFormatNotRecognized = errors.New("bank format not recognized")
	// ErrCancelled is returned when the user backs out of a picker or password prompt.
	ErrCancelled = errors.New("cancelled by user")
)

// SourceError reports a document that could not be read at all.
type SourceError struct {
	URI    string
	Format string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("unable to read %s source '%s': %v", e.Format, e.URI, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// InvalidFormatError represents content that does not match the declared format.
type InvalidFormatError struct {
	FilePath             string
	ExpectedFormat       string
	ActualContentSnippet string
	Msg                  string
}

func (e *InvalidFormatError) Error() string {
	if e.ActualContentSnippet != "" {
		return fmt.Sprintf("invalid format in file '%s': %s. Expected: %s. Content snippet: '%s'",
			e.FilePath, e.Msg, e.ExpectedFormat, e.ActualContentSnippet)
	}
	return fmt.Sprintf("invalid format in file '%s': %s. Expected: %s",
		e.FilePath, e.Msg, e.ExpectedFormat)
}

// DecryptionError is an encrypted document the PDF library cannot open even
// with the right password (unsupported cipher, corrupt trailer).
type DecryptionError struct {
	FilePath string
	Err      error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("cannot decrypt '%s': %v", e.FilePath, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// OptionsError is a caller mistake in ParseOptions, such as an image upload
// with OCR disabled. It is the only error class a parse returns directly.
type OptionsError struct {
	Option string
	Reason string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Option, e.Reason)
}

// Snippet shortens content for error messages.
func Snippet(content string, max int) string {
	r := []rune(content)
	if len(r) <= max {
		return content
	}
	return string(r[:max]) + "..."
}
