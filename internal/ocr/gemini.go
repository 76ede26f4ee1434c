package ocr

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/logging"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const transcribePrompt = `Transcribe this bank statement exactly as printed.
Output one statement line per line of text, keep the column order, and
separate columns with at least two spaces. Do not summarize or add text.`

// ContentGenerator is the part of *genai.GenerativeModel the recognizer uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiRecognizer sends the document to a Gemini model for transcription.
type GeminiRecognizer struct {
	model   ContentGenerator
	limiter *rate.Limiter
	timeout time.Duration
	logger  logging.Logger
	client  *genai.Client
}

// NewGeminiRecognizer creates a client for cfg.Model. The API key is mandatory.
func NewGeminiRecognizer(ctx context.Context, cfg config.AIConfig, logger logging.Logger) (*GeminiRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)

	r := NewGeminiRecognizerWithModel(model, cfg, logger)
	r.client = client
	return r, nil
}

// NewGeminiRecognizerWithModel wraps an existing generator.
func NewGeminiRecognizerWithModel(model ContentGenerator, cfg config.AIConfig, logger logging.Logger) *GeminiRecognizer {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}
	return &GeminiRecognizer{
		model:   model,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:  logging.OrDefault(logger),
	}
}

// Close releases the underlying client.
func (g *GeminiRecognizer) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Recognize implements Recognizer.
func (g *GeminiRecognizer) Recognize(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a pipeline-owned local copy
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("OCR rate limit wait: %w", err)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	blob := genai.Blob{MIMEType: documentMimeType(path), Data: data}
	resp, err := g.model.GenerateContent(ctx, blob, genai.Text(transcribePrompt))
	if err != nil {
		return Result{}, fmt.Errorf("Gemini API error: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return Result{}, fmt.Errorf("no response from Gemini API")
	}
	g.logger.Debug("OCR finished",
		logging.F(logging.FieldEngine, config.OCREngineGemini),
		logging.F(logging.FieldFile, filepath.Base(path)))
	return Result{Text: text, Confidence: DefaultConfidence}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func documentMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
