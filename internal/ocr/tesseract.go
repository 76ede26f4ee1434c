package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/logging"
)

// CommandRunner runs an external program and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- fixed binaries, temp file arguments
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// TesseractRecognizer renders PDF pages with pdftoppm and reads them with
// tesseract. Images are passed to tesseract directly.
type TesseractRecognizer struct {
	cfg    config.OCRConfig
	logger logging.Logger
	run    CommandRunner
}

// NewTesseractRecognizer creates a recognizer using the poppler and tesseract binaries.
func NewTesseractRecognizer(cfg config.OCRConfig, logger logging.Logger) *TesseractRecognizer {
	return NewTesseractRecognizerWithRunner(cfg, logger, execRunner)
}

// NewTesseractRecognizerWithRunner is NewTesseractRecognizer with a custom runner.
func NewTesseractRecognizerWithRunner(cfg config.OCRConfig, logger logging.Logger, run CommandRunner) *TesseractRecognizer {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &TesseractRecognizer{cfg: cfg, logger: logging.OrDefault(logger), run: run}
}

// Recognize implements Recognizer.
func (t *TesseractRecognizer) Recognize(ctx context.Context, path string) (Result, error) {
	if t.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	images := []string{path}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		tmpDir, err := os.MkdirTemp("", "ocr-pages-*")
		if err != nil {
			return Result{}, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(tmpDir); err != nil {
				t.logger.WithError(err).Warn("Failed to remove OCR page directory")
			}
		}()

		if images, err = t.renderPages(ctx, path, tmpDir); err != nil {
			return Result{}, err
		}
	}

	var pages []string
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		out, err := t.run(ctx, "tesseract", img, "stdout", "--psm", "4", "-l", t.cfg.Language)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			t.logger.WithError(err).Warn("Tesseract failed on page, continuing",
				logging.F(logging.FieldFile, img))
			continue
		}
		if text := strings.TrimSpace(string(out)); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return Result{}, fmt.Errorf("tesseract produced no text from %d page images", len(images))
	}

	t.logger.Debug("OCR finished",
		logging.F(logging.FieldEngine, config.OCREngineTesseract),
		logging.F(logging.FieldCount, len(pages)))
	return Result{Text: strings.Join(pages, "\n"), Confidence: DefaultConfidence}, nil
}

func (t *TesseractRecognizer) renderPages(ctx context.Context, path, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	if _, err := t.run(ctx, "pdftoppm", "-r", strconv.Itoa(t.cfg.DPI), "-png", path, prefix); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read page directory: %w", err)
	}
	var images []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(images)
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}
	return images, nil
}
