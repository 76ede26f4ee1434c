package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DocumentFormat is the format the caller declares for an upload.
type DocumentFormat string

const (
	FormatPDF   DocumentFormat = "pdf"
	FormatExcel DocumentFormat = "excel"
	FormatCSV   DocumentFormat = "csv"
	FormatImage DocumentFormat = "image"
)

// ParseDocumentFormat validates a declared format name.
func ParseDocumentFormat(s string) (DocumentFormat, error) {
	switch f := DocumentFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatExcel, FormatCSV, FormatImage:
		return f, nil
	case "xlsx", "xls":
		return FormatExcel, nil
	case "png", "jpg", "jpeg", "tiff":
		return FormatImage, nil
	default:
		return "", fmt.Errorf("unsupported document format %q", s)
	}
}

// FormatFromFileName guesses the declared format from a file extension.
func FormatFromFileName(name string) (DocumentFormat, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer format of %q: no extension", name)
	}
	return ParseDocumentFormat(ext)
}

// HasTextLayer reports whether documents of this format carry reliable text.
func (f DocumentFormat) HasTextLayer() bool {
	return f == FormatExcel || f == FormatCSV
}

// RowBased reports whether the reader yields rows rather than a text blob.
func (f DocumentFormat) RowBased() bool {
	return f == FormatExcel || f == FormatCSV
}

// ParseOptions is the caller's request for one pipeline invocation.
type ParseOptions struct {
	Format     DocumentFormat `json:"format"`
	OCREnabled bool           `json:"ocrEnabled"`
	// Bank forces a registry format by slug instead of detection.
	Bank string `json:"bank,omitempty"`
	// Currency applies to formats that do not declare one.
	Currency Currency `json:"currency,omitempty"`
}
