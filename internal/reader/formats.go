package reader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/parsererror"
	"fjacquet/statement-ingest/internal/pdfparser"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
)

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}

func (r *Reader) readBytes(ctx context.Context, file *LocalFile) ([]byte, error) {
	encoded, err := r.fs.ReadAsBase64(ctx, file.URI)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func (r *Reader) readPDF(ctx context.Context, file *LocalFile, password string) (RawContent, error) {
	data, err := r.readBytes(ctx, file)
	if err != nil {
		return RawContent{}, r.sourceError(file, models.FormatPDF, err)
	}

	outcome, err := r.pdf.ReadWithPassword(ctx, file.Name, data, password)
	if err != nil {
		var decryptErr *parsererror.DecryptionError
		if errors.As(err, &decryptErr) {
			return RawContent{}, err
		}
		return RawContent{}, r.sourceError(file, models.FormatPDF, err)
	}

	switch outcome.Status {
	case pdfparser.StatusPasswordRequired:
		return RawContent{}, parsererror.ErrPasswordRequired
	case pdfparser.StatusPasswordIncorrect:
		return RawContent{}, parsererror.ErrPasswordIncorrect
	}
	return RawContent{Format: models.FormatPDF, Text: normalizeNewlines(outcome.Text), Pages: outcome.Pages}, nil
}

// readExcel emits each row of the first sheet as one CSV-encoded line.
// Rows are padded to the sheet width because excelize drops trailing
// empty cells.
func (r *Reader) readExcel(ctx context.Context, file *LocalFile, password string) (RawContent, error) {
	data, err := r.readBytes(ctx, file)
	if err != nil {
		return RawContent{}, r.sourceError(file, models.FormatExcel, err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{Password: password})
	if err != nil {
		return RawContent{}, r.sourceError(file, models.FormatExcel, fmt.Errorf("failed to open workbook: %w", err))
	}
	defer func() { _ = wb.Close() }()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return RawContent{}, r.sourceError(file, models.FormatExcel, errors.New("workbook has no sheets"))
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return RawContent{}, r.sourceError(file, models.FormatExcel, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err))
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if isBlankRow(row) {
			lines = append(lines, "")
			continue
		}
		padded := make([]string, width)
		copy(padded, row)
		line, err := encodeRow(padded)
		if err != nil {
			return RawContent{}, r.sourceError(file, models.FormatExcel, err)
		}
		lines = append(lines, line)
	}
	return RawContent{Format: models.FormatExcel, Rows: lines, Pages: 1}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func encodeRow(cells []string) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(cells); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\r\n"), nil
}

// readCSV decodes the file to UTF-8 and splits it into lines, keeping empty ones.
func (r *Reader) readCSV(ctx context.Context, file *LocalFile) (RawContent, error) {
	raw, err := r.fs.ReadAsText(ctx, file.URI)
	if err != nil {
		return RawContent{}, r.sourceError(file, models.FormatCSV, err)
	}

	text, err := decodeText([]byte(raw))
	if err != nil {
		return RawContent{}, r.sourceError(file, models.FormatCSV, err)
	}
	text = normalizeNewlines(text)
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return RawContent{Format: models.FormatCSV, Rows: []string{}, Pages: 1}, nil
	}
	return RawContent{Format: models.FormatCSV, Rows: strings.Split(text, "\n"), Pages: 1}, nil
}

// decodeText returns data as UTF-8. Input that is valid UTF-8 as a whole is
// kept as is; the charset sniffer only sees the first KB, so it is consulted
// for BOMs and legacy encodings only.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, "text/csv")
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s text: %w", name, err)
	}
	return strings.TrimPrefix(string(decoded), "\ufeff"), nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}

// readImage checks the image exists; its text comes from OCR only.
func (r *Reader) readImage(ctx context.Context, file *LocalFile) (RawContent, error) {
	if _, err := r.fs.Stat(ctx, file.URI); err != nil {
		return RawContent{}, r.sourceError(file, models.FormatImage, err)
	}
	return RawContent{Format: models.FormatImage, Pages: 1}, nil
}
