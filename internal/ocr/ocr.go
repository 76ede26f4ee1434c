// Package ocr recognizes text in documents without a usable text layer.
// Engines are local (tesseract) or remote (Gemini); both sit behind
// Recognizer so the pipeline never knows which one ran.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/logging"
)

// DefaultConfidence is reported when an engine gives no score of its own.
const DefaultConfidence = 0.8

// ErrDisabled is returned by the recognizer of the "none" engine.
var ErrDisabled = errors.New("OCR engine disabled")

// Result is recognized text with the engine's confidence in [0, 1].
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer turns a local PDF or image file into text.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (Result, error)
}

// New builds the recognizer configured for cfg.OCR.Engine.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (Recognizer, error) {
	logger = logging.OrDefault(logger)
	switch strings.ToLower(cfg.OCR.Engine) {
	case config.OCREngineTesseract, "":
		return NewTesseractRecognizer(cfg.OCR, logger), nil
	case config.OCREngineGemini:
		return NewGeminiRecognizer(ctx, cfg.AI, logger)
	case config.OCREngineNone:
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.OCR.Engine)
	}
}

type disabled struct{}

func (disabled) Recognize(context.Context, string) (Result, error) {
	return Result{}, ErrDisabled
}

// MockRecognizer returns canned results and records the paths it saw.
type MockRecognizer struct {
	Text       string
	Confidence float64
	Err        error
	// Block makes Recognize wait for ctx cancellation.
	Block bool

	Calls []string
}

// Recognize implements Recognizer.
func (m *MockRecognizer) Recognize(ctx context.Context, path string) (Result, error) {
	m.Calls = append(m.Calls, path)
	if m.Block {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	confidence := m.Confidence
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	return Result{Text: m.Text, Confidence: confidence}, nil
}
