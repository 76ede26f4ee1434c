package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"fjacquet/statement-ingest/internal/models"
)

// allowedDetectedTypes lists the sniffed content types accepted per declared
// format. Encrypted workbooks are OLE containers and sniff as octet-stream.
var allowedDetectedTypes = map[models.DocumentFormat]map[string]bool{
	models.FormatPDF: {
		"application/pdf": true,
	},
	models.FormatExcel: {
		"application/zip":          true,
		"application/vnd.ms-excel": true,
		"application/octet-stream": true,
	},
	models.FormatCSV: {
		"text/plain":               true,
		"text/csv":                 true,
		"application/csv":          true,
		"application/octet-stream": true,
	},
	models.FormatImage: {
		"image/png":                true,
		"image/jpeg":               true,
		"image/gif":                true,
		"image/webp":               true,
		"image/bmp":                true,
		"application/octet-stream": true,
	},
}

// ValidateFileContentByMagicBytes checks that the first bytes of file are
// consistent with format and rewinds it. It returns the detected type.
func ValidateFileContentByMagicBytes(file io.ReadSeeker, format models.DocumentFormat) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}

	detected := http.DetectContentType(buffer[:n])
	detected = strings.ToLower(strings.TrimSpace(strings.Split(detected, ";")[0]))

	if !allowedDetectedTypes[format][detected] {
		return detected, fmt.Errorf("detected file content type '%s' is not consistent with a %s file", detected, format)
	}
	return detected, nil
}
