package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fjacquet/statement-ingest/internal/formats"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/parsererror"
	"fjacquet/statement-ingest/internal/pipeline"
	"fjacquet/statement-ingest/internal/source"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// PasswordResponse is the 423 body of a password challenge.
type PasswordResponse struct {
	Status   string `json:"status"`
	Attempt  int    `json:"attempt"`
	FileName string `json:"fileName"`
	Message  string `json:"message"`
}

// FormatInfo describes one registry entry.
type FormatInfo struct {
	Slug     string `json:"slug"`
	BankName string `json:"bankName"`
	Currency string `json:"currency,omitempty"`
	Layout   string `json:"layout"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": Version,
	})
}

func (s *Server) handleFormats(c *fiber.Ctx) error {
	registry := formats.Registry()
	out := make([]FormatInfo, 0, len(registry))
	for _, f := range registry {
		out = append(out, FormatInfo{
			Slug:     f.Slug,
			BankName: f.BankName,
			Currency: string(f.Currency),
			Layout:   f.Layout.String(),
		})
	}
	return c.JSON(out)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Success: false, Error: msg})
}

// uploadOptions reads the form fields of a statement upload.
func uploadOptions(c *fiber.Ctx, fileName string) (models.ParseOptions, string, int, error) {
	var opts models.ParseOptions

	rawFormat := c.FormValue("format")
	var err error
	if rawFormat != "" {
		opts.Format, err = models.ParseDocumentFormat(rawFormat)
	} else {
		opts.Format, err = models.FormatFromFileName(fileName)
	}
	if err != nil {
		return opts, "", 0, err
	}

	if raw := c.FormValue("ocr"); raw != "" {
		if opts.OCREnabled, err = strconv.ParseBool(raw); err != nil {
			return opts, "", 0, fmt.Errorf("invalid ocr value %q", raw)
		}
	}
	opts.Bank = c.FormValue("bank")
	if raw := c.FormValue("currency"); raw != "" {
		opts.Currency = models.Currency(strings.ToUpper(strings.TrimSpace(raw)))
	}

	password := c.FormValue("password")
	attempt := 0
	if raw := c.FormValue("attempt"); raw != "" {
		if attempt, err = strconv.Atoi(raw); err != nil || attempt < 0 {
			return opts, "", 0, fmt.Errorf("invalid attempt value %q", raw)
		}
	}
	if password != "" && attempt == 0 {
		attempt = 1
	}
	return opts, password, attempt, nil
}

func (s *Server) handleStatement(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded. Use form field 'file'.")
	}

	opts, password, attempt, err := uploadOptions(c, fh.Filename)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.service.ValidateOptions(opts); err != nil {
		return badRequest(c, err.Error())
	}

	file, err := fh.Open()
	if err != nil {
		return badRequest(c, fmt.Sprintf("Failed to read upload: %v", err))
	}
	detected, err := ValidateFileContentByMagicBytes(file, opts.Format)
	_ = file.Close()
	if err != nil {
		s.logger.Warn("Rejected upload", logging.F(logging.FieldFile, fh.Filename), logging.F("detected", detected))
		return badRequest(c, err.Error())
	}

	path := filepath.Join(s.uploadDir(), "upload-"+uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveFile(fh, path); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to save uploaded file.")
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).Warn("Failed to remove upload", logging.F(logging.FieldFile, path))
		}
	}()

	selection := source.Selection{
		Outcome:     source.OutcomeSelected,
		URI:         path,
		DisplayName: fh.Filename,
		ByteSize:    fh.Size,
		MimeType:    detected,
	}
	result, err := s.service.ParseSelection(requestContext(c), selection, opts, password, attempt)
	if challenge, ok := pipeline.AsPasswordChallenge(err); ok {
		status := "passwordRequired"
		if challenge.Incorrect() {
			status = "passwordIncorrect"
		}
		return c.Status(fiber.StatusLocked).JSON(PasswordResponse{
			Status:   status,
			Attempt:  challenge.Attempt.AttemptNumber,
			FileName: challenge.Attempt.FileName,
			Message:  challenge.Prompt(),
		})
	}
	var optErr *parsererror.OptionsError
	if errors.As(err, &optErr) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return err
	}

	if c.Query("output") == "csv" && result.Success {
		var buf bytes.Buffer
		if err := s.exporter.Write(&buf, result.Transactions, result.Metadata.Currency); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q",
			strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))+".csv"))
		return c.Send(buf.Bytes())
	}
	return c.JSON(result)
}

func (s *Server) uploadDir() string {
	if s.tempDir != "" {
		return s.tempDir
	}
	return os.TempDir()
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
