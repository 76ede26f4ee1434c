package pdfparser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/parsererror"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts the text layer of a PDF held in memory.
type PDFExtractor interface {
	Extract(ctx context.Context, data []byte, password string) (Outcome, error)
}

// RealPDFExtractor reads PDFs with ledongthuc/pdf and falls back to the
// pdftotext command when the library yields no text.
type RealPDFExtractor struct {
	logger logging.Logger
	// PdftotextPath overrides the pdftotext binary; empty looks it up on PATH.
	PdftotextPath string
}

// NewRealPDFExtractor creates a RealPDFExtractor.
func NewRealPDFExtractor(logger logging.Logger) *RealPDFExtractor {
	return &RealPDFExtractor{logger: logging.OrDefault(logger)}
}

// Extract implements PDFExtractor.
func (e *RealPDFExtractor) Extract(ctx context.Context, data []byte, password string) (Outcome, error) {
	reader, err := openReader(data, password)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			if password == "" {
				return Outcome{Status: StatusPasswordRequired}, nil
			}
			return Outcome{Status: StatusPasswordIncorrect}, nil
		}
		if strings.Contains(err.Error(), "encrypt") {
			return Outcome{}, &parsererror.DecryptionError{FilePath: "PDF", Err: err}
		}
		return Outcome{}, err
	}

	pages := reader.NumPage()
	text, err := textByRow(reader)
	if err != nil {
		e.logger.WithError(err).Warn("PDF library text extraction failed")
	}
	if strings.TrimSpace(text) == "" {
		if fallback, ferr := e.pdftotext(ctx, data, password); ferr == nil {
			text = fallback
		} else {
			e.logger.Debug("pdftotext fallback unavailable", logging.F(logging.FieldError, ferr.Error()))
		}
	}

	return Outcome{Status: StatusSuccess, Text: text, Pages: pages}, nil
}

// openReader wraps pdf.NewReaderEncrypted, which tries the empty password
// first and then asks the callback until it returns "".
func openReader(data []byte, password string) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("PDF library crashed: %v", rec)
		}
	}()

	var prompt func() string
	if password != "" {
		offered := false
		prompt = func() string {
			if offered {
				return ""
			}
			offered = true
			return password
		}
	}
	return pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), prompt)
}

func textByRow(r *pdf.Reader) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("PDF library crashed: %v", rec)
		}
	}()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			pieces := make([]piece, 0, len(row.Content))
			for _, t := range row.Content {
				pieces = append(pieces, piece{X: t.X, S: t.S})
			}
			if line := joinPieces(pieces); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return strings.Join(pages, "\n"), nil
}

func (e *RealPDFExtractor) pdftotext(ctx context.Context, data []byte, password string) (string, error) {
	bin := e.PdftotextPath
	if bin == "" {
		var err error
		if bin, err = exec.LookPath("pdftotext"); err != nil {
			return "", fmt.Errorf("pdftotext not available: %w", err)
		}
	}

	tempFile, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary PDF file: %w", err)
	}
	defer func() {
		if err := os.Remove(tempFile.Name()); err != nil {
			e.logger.WithError(err).Warn("Failed to remove temporary file",
				logging.F(logging.FieldFile, tempFile.Name()))
		}
	}()
	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return "", fmt.Errorf("failed to write temporary PDF file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temporary PDF file: %w", err)
	}

	args := []string{"-layout"}
	if password != "" {
		args = append(args, "-upw", password)
	}
	args = append(args, tempFile.Name(), "-")

	out, err := exec.CommandContext(ctx, bin, args...).Output() // #nosec G204 -- fixed binary, temp file argument
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

// MockPDFExtractor simulates a document for tests. When Password is set the
// document behaves as encrypted with that user password.
type MockPDFExtractor struct {
	Text     string
	Pages    int
	Password string
	Err      error

	Attempts []string
}

// NewMockPDFExtractor returns a mock yielding text, encrypted when password != "".
func NewMockPDFExtractor(text, password string) *MockPDFExtractor {
	return &MockPDFExtractor{Text: text, Pages: 1, Password: password}
}

// Extract implements PDFExtractor.
func (m *MockPDFExtractor) Extract(ctx context.Context, _ []byte, password string) (Outcome, error) {
	m.Attempts = append(m.Attempts, password)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if m.Err != nil {
		return Outcome{}, m.Err
	}
	if m.Password != "" && password != m.Password {
		if password == "" {
			return Outcome{Status: StatusPasswordRequired}, nil
		}
		return Outcome{Status: StatusPasswordIncorrect}, nil
	}
	return Outcome{Status: StatusSuccess, Text: m.Text, Pages: m.Pages}, nil
}
