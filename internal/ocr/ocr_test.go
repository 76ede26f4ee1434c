package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/logging"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePoppler simulates pdftoppm writing page images and tesseract reading them.
type fakePoppler struct {
	pages    map[string]string
	failPage string
	calls    []string
}

func (f *fakePoppler) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name)
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for page := range f.pages {
			if err := os.WriteFile(prefix+"-"+page+".png", []byte("png"), 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		page := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(args[0]), "page-"), ".png")
		if page == f.failPage {
			return nil, errors.New("tesseract crashed")
		}
		return []byte(f.pages[page] + "\n"), nil
	}
	return nil, errors.New("unexpected command " + name)
}

func TestTesseractRecognizer_PDF(t *testing.T) {
	fake := &fakePoppler{pages: map[string]string{
		"1": "01/10/2025  Grocery Store  2,350.00",
		"2": "02/10/2025  Salary  5,00,000.00",
		"3": "",
	}}
	r := NewTesseractRecognizerWithRunner(config.OCRConfig{Language: "eng", DPI: 150}, logging.NewMockLogger(), fake.run)

	res, err := r.Recognize(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "01/10/2025  Grocery Store  2,350.00\n02/10/2025  Salary  5,00,000.00", res.Text)
	assert.Equal(t, DefaultConfidence, res.Confidence)
	assert.Equal(t, "pdftoppm", fake.calls[0])
}

func TestTesseractRecognizer_PageFailureContinues(t *testing.T) {
	fake := &fakePoppler{pages: map[string]string{"1": "Opening Balance  100.00", "2": "x"}, failPage: "2"}
	logger := logging.NewMockLogger()
	r := NewTesseractRecognizerWithRunner(config.OCRConfig{}, logger, fake.run)

	res, err := r.Recognize(context.Background(), "/tmp/scan.PDF")
	require.NoError(t, err)
	assert.Equal(t, "Opening Balance  100.00", res.Text)
	assert.True(t, logger.HasEntry("WARN", "Tesseract failed on page, continuing"))
}

func TestTesseractRecognizer_ImageSkipsRendering(t *testing.T) {
	var names []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		names = append(names, name)
		assert.Equal(t, "/tmp/receipt.png", args[0])
		assert.Contains(t, args, "deu")
		return []byte("Kontoauszug"), nil
	}
	r := NewTesseractRecognizerWithRunner(config.OCRConfig{Language: "deu"}, nil, run)

	res, err := r.Recognize(context.Background(), "/tmp/receipt.png")
	require.NoError(t, err)
	assert.Equal(t, "Kontoauszug", res.Text)
	assert.Equal(t, []string{"tesseract"}, names)
}

func TestTesseractRecognizer_NoText(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) { return []byte("  \n"), nil }
	r := NewTesseractRecognizerWithRunner(config.OCRConfig{}, logging.NewMockLogger(), run)
	_, err := r.Recognize(context.Background(), "/tmp/blank.png")
	assert.Error(t, err)
}

func TestTesseractRecognizer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := func(ctx context.Context, _ string, _ ...string) ([]byte, error) { return nil, ctx.Err() }
	r := NewTesseractRecognizerWithRunner(config.OCRConfig{}, logging.NewMockLogger(), run)
	_, err := r.Recognize(ctx, "/tmp/a.png")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeGenerator struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, 0, len(texts))
	for _, s := range texts {
		parts = append(parts, genai.Text(s))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func writeFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o600))
	return path
}

func TestGeminiRecognizer(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Date  Narration\n", "01/10/25  UPI-GROCERY  2,350.00")}
	r := NewGeminiRecognizerWithModel(gen, config.AIConfig{RequestsPerMinute: 600}, logging.NewMockLogger())

	res, err := r.Recognize(context.Background(), writeFile(t, "scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Date  Narration\n01/10/25  UPI-GROCERY  2,350.00", res.Text)
	assert.Equal(t, DefaultConfidence, res.Confidence)

	require.Len(t, gen.parts, 2)
	blob, ok := gen.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", blob.MIMEType)
	assert.NoError(t, r.Close())
}

func TestGeminiRecognizer_Errors(t *testing.T) {
	path := writeFile(t, "scan.png")

	r := NewGeminiRecognizerWithModel(&fakeGenerator{err: errors.New("quota")}, config.AIConfig{}, nil)
	_, err := r.Recognize(context.Background(), path)
	assert.ErrorContains(t, err, "quota")

	r = NewGeminiRecognizerWithModel(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, config.AIConfig{}, nil)
	_, err = r.Recognize(context.Background(), path)
	assert.ErrorContains(t, err, "no response")

	_, err = r.Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}

	cfg.OCR.Engine = config.OCREngineTesseract
	r, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &TesseractRecognizer{}, r)

	cfg.OCR.Engine = config.OCREngineNone
	r, err = New(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = r.Recognize(ctx, "/tmp/a.pdf")
	assert.ErrorIs(t, err, ErrDisabled)

	cfg.OCR.Engine = config.OCREngineGemini
	_, err = New(ctx, cfg, nil)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	cfg.OCR.Engine = "abbyy"
	_, err = New(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestMockRecognizer(t *testing.T) {
	m := &MockRecognizer{Text: "scanned"}
	res, err := m.Recognize(context.Background(), "/tmp/x.png")
	require.NoError(t, err)
	assert.Equal(t, Result{Text: "scanned", Confidence: DefaultConfidence}, res)
	assert.Equal(t, []string{"/tmp/x.png"}, m.Calls)
}
