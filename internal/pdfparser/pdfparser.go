// Package pdfparser extracts the text layer of PDF statements and resolves
// password protection. An encrypted statement is not an error here: it is an
// Outcome telling the caller to ask for a password.
package pdfparser

import (
	"bytes"
	"context"
	"fmt"

	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/parsererror"
)

// Status classifies a read attempt.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusPasswordRequired  Status = "passwordRequired"
	StatusPasswordIncorrect Status = "passwordIncorrect"
)

// Outcome is the result of one read attempt. Text is set only on success.
type Outcome struct {
	Status Status
	Text   string
	Pages  int
}

var pdfMagic = []byte("%PDF-")

// Reader reads PDF statements through a PDFExtractor.
type Reader struct {
	extractor PDFExtractor
	logger    logging.Logger
}

// NewReader returns a Reader. A nil extractor selects the ledongthuc/pdf one.
func NewReader(logger logging.Logger, extractor PDFExtractor) *Reader {
	logger = logging.OrDefault(logger)
	if extractor == nil {
		extractor = NewRealPDFExtractor(logger)
	}
	return &Reader{extractor: extractor, logger: logger}
}

// ReadWithPassword attempts to read data, decrypting with password when the
// document is encrypted. An empty password on an encrypted document yields
// StatusPasswordRequired; a wrong one yields StatusPasswordIncorrect.
func (r *Reader) ReadWithPassword(ctx context.Context, name string, data []byte, password string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return Outcome{}, &parsererror.InvalidFormatError{
			FilePath:             name,
			ExpectedFormat:       "PDF",
			ActualContentSnippet: parsererror.Snippet(string(data), 16),
			Msg:                  "missing %PDF- header",
		}
	}

	outcome, err := r.extractor.Extract(ctx, data, password)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read PDF %s: %w", name, err)
	}

	r.logger.Debug("PDF read attempt finished",
		logging.F(logging.FieldFile, name),
		logging.F(logging.FieldStatus, string(outcome.Status)),
		logging.F(logging.FieldCount, outcome.Pages))
	return outcome, nil
}
