package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/metrics"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/ocr"
	"fjacquet/statement-ingest/internal/parsererror"
	"fjacquet/statement-ingest/internal/pdfparser"
	"fjacquet/statement-ingest/internal/reader"
	"fjacquet/statement-ingest/internal/source"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genericCSV = "2025-10-01,Grocery Store,2350,,97650\n2025-10-02,Salary,,500000,597650\n2025-10-03,not a date at all"

var hdfcText = strings.Join([]string{
	"HDFC BANK LIMITED",
	"Statement of account",
	"Opening Balance  1,00,000.00",
	"Date  Narration  Chq./Ref.No.  Value Dt  Withdrawal Amt.  Deposit Amt.  Closing Balance",
	"01/10/25  UPI-GROCERY STORE  0000412345  01/10/25  2,350.00  97,650.00",
	"02/10/25  NEFT-ACME SALARY  N275250012  02/10/25  5,00,000.00  5,97,650.00",
	"03/10/25  ATM WDL  0000999  03/10/25  1,000.00  0.00  5,96,650.00",
}, "\n")

var fakePDF = []byte("%PDF-1.4\n% test document\n")

type fixture struct {
	fs      *fileutils.MemFS
	pdf     *pdfparser.MockPDFExtractor
	ocr     *ocr.MockRecognizer
	metrics *metrics.Metrics
	logger  *logging.MockLogger
	svc     *Service
}

func newFixture(t *testing.T, pdfPassword string) *fixture {
	t.Helper()
	f := &fixture{
		fs:      fileutils.NewMemFS(),
		pdf:     pdfparser.NewMockPDFExtractor(hdfcText, pdfPassword),
		ocr:     &ocr.MockRecognizer{},
		metrics: metrics.New(),
		logger:  logging.NewMockLogger(),
	}
	rd := reader.New(f.fs, pdfparser.NewReader(f.logger, f.pdf), "/tmp", f.logger)
	f.svc = NewService(Dependencies{
		FS:         f.fs,
		Reader:     rd,
		Recognizer: f.ocr,
		Metrics:    f.metrics,
		Logger:     f.logger,
	})
	return f
}

func csvOptions() models.ParseOptions {
	return models.ParseOptions{Format: models.FormatCSV}
}

func pdfOptions() models.ParseOptions {
	return models.ParseOptions{Format: models.FormatPDF}
}

func TestParseDocument_CSVEndToEnd(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/statement.csv", []byte(genericCSV))

	result, err := f.svc.ParseDocument(context.Background(), "/docs/statement.csv", csvOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, "statement.csv", result.Metadata.FileName)
	assert.Equal(t, int64(len(genericCSV)), result.Metadata.FileSize)
	assert.Equal(t, 2, result.Metadata.TotalTransactions)
	assert.Equal(t, "Generic ISO CSV", result.Metadata.BankDetected)
	assert.Equal(t, models.INR, result.Metadata.Currency)
	assert.NotEmpty(t, result.Metadata.InvocationID)
	require.NotNil(t, result.Metadata.ClosingBalance)
	assert.True(t, decimal.NewFromInt(597650).Equal(result.Metadata.ClosingBalance.Amount))

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Equal(t, models.SeverityMedium, result.Errors[0].Severity)
	assert.Empty(t, result.Warnings)

	count, err := testutil.GatherAndCount(f.metrics.Registry(), "statement_ingest_parses_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestParseDocument_InvocationIDsAreUnique(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/statement.csv", []byte(genericCSV))

	first, err := f.svc.ParseDocument(context.Background(), "/docs/statement.csv", csvOptions())
	require.NoError(t, err)
	second, err := f.svc.ParseDocument(context.Background(), "/docs/statement.csv", csvOptions())
	require.NoError(t, err)
	assert.NotEqual(t, first.Metadata.InvocationID, second.Metadata.InvocationID)
}

func TestParseDocument_OpaqueURIIsCopiedAndReleased(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("content://downloads/statement.csv", []byte(genericCSV))

	result, err := f.svc.ParseDocument(context.Background(), "content://downloads/statement.csv", csvOptions())
	require.NoError(t, err)
	assert.True(t, result.Success)

	deleted := f.fs.Deleted()
	require.Len(t, deleted, 1)
	assert.True(t, strings.HasPrefix(deleted[0], "/tmp/statement-"))
	assert.True(t, strings.HasSuffix(deleted[0], ".csv"))
	assert.Equal(t, []string{"content://downloads/statement.csv"}, f.fs.URIs())
}

func TestParseDocument_FatalFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		uri     string
		message string
	}{
		{"format not recognized", "hello\nworld", "/docs/notes.csv", "bank format not recognized"},
		{"unreadable source", "", "/docs/missing.csv", "unable to read document"},
		{"no transactions", "2025-10-01,Coffee,abc,,10", "/docs/empty.csv", "no transactions found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			if tt.content != "" {
				f.fs.Put(tt.uri, []byte(tt.content))
			}

			result, err := f.svc.ParseDocument(context.Background(), tt.uri, csvOptions())
			require.NoError(t, err)

			assert.False(t, result.Success)
			assert.Empty(t, result.Transactions)
			assert.Equal(t, 0, result.Metadata.TotalTransactions)
			fatal, ok := result.FatalError()
			require.True(t, ok)
			assert.Equal(t, models.SeverityHigh, fatal.Severity)
			assert.Contains(t, fatal.Message, tt.message)
		})
	}
}

func TestParseDocument_DecryptionFailureIsFatal(t *testing.T) {
	f := newFixture(t, "")
	f.pdf.Err = &parsererror.DecryptionError{FilePath: "x.pdf", Err: errors.New("unsupported cipher")}
	f.fs.Put("/docs/locked.pdf", fakePDF)

	result, err := f.svc.ParseDocument(context.Background(), "/docs/locked.pdf", pdfOptions())
	require.NoError(t, err)
	fatal, ok := result.FatalError()
	require.True(t, ok)
	assert.Equal(t, "unable to decrypt document: unsupported cipher", fatal.Message)
}

func TestParseDocument_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		opts   models.ParseOptions
		option string
	}{
		{"missing format", models.ParseOptions{}, "format"},
		{"unknown format", models.ParseOptions{Format: "docx"}, "format"},
		{"image without OCR", models.ParseOptions{Format: models.FormatImage}, "ocrEnabled"},
		{"unknown bank", models.ParseOptions{Format: models.FormatCSV, Bank: "nope"}, "bank"},
		{"unknown currency", models.ParseOptions{Format: models.FormatCSV, Currency: "CHF"}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			result, err := f.svc.ParseDocument(context.Background(), "/docs/a", tt.opts)
			assert.Nil(t, result)
			var optErr *parsererror.OptionsError
			require.ErrorAs(t, err, &optErr)
			assert.Equal(t, tt.option, optErr.Option)
		})
	}
}

func TestParseDocument_ForcedBank(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/umsaetze.csv", []byte(strings.Join([]string{
		"Alter Kontostand;;;;1.000,00;EUR",
		"01.10.2025;01.10.2025;Lastschrift;REWE Markt;Einkauf;-23,50;;EUR",
		"02.10.2025;02.10.2025;Gutschrift;Arbeitgeber GmbH;Gehalt;;2.500,00;EUR",
	}, "\n")))

	opts := csvOptions()
	opts.Bank = "deutsche-bank"
	result, err := f.svc.ParseDocument(context.Background(), "/docs/umsaetze.csv", opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Deutsche Bank", result.Metadata.BankDetected)
	assert.Equal(t, models.EUR, result.Metadata.Currency)
	require.NotNil(t, result.Metadata.ClosingBalance)
	assert.True(t, decimal.RequireFromString("3476.50").Equal(result.Metadata.ClosingBalance.Amount))
}

func TestParseDocument_CurrencyOption(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/statement.csv", []byte(genericCSV))

	opts := csvOptions()
	opts.Currency = models.AED
	result, err := f.svc.ParseDocument(context.Background(), "/docs/statement.csv", opts)
	require.NoError(t, err)
	assert.Equal(t, models.AED, result.Metadata.Currency)
	assert.Equal(t, models.AED, result.Metadata.ClosingBalance.Currency)
}

func TestParseDocument_PasswordChallenge(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)

	result, err := f.svc.ParseDocument(context.Background(), "/docs/hdfc.pdf", pdfOptions())
	assert.Nil(t, result)
	challenge, ok := AsPasswordChallenge(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, parsererror.ErrPasswordRequired)
	assert.Equal(t, 1, challenge.Attempt.AttemptNumber)
	assert.Equal(t, "hdfc.pdf", challenge.Attempt.FileName)
	assert.Equal(t, "/docs/hdfc.pdf", challenge.Attempt.FileURI)

	_, err = f.svc.ParseDocumentWithPassword(context.Background(), "/docs/hdfc.pdf", pdfOptions(), "wrong")
	challenge, ok = AsPasswordChallenge(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, parsererror.ErrPasswordIncorrect)
	assert.Equal(t, 2, challenge.Attempt.AttemptNumber)

	result, err = f.svc.ParseDocumentWithPassword(context.Background(), "/docs/hdfc.pdf", pdfOptions(), "secret")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "HDFC Bank", result.Metadata.BankDetected)
	assert.Len(t, result.Transactions, 3)
}

func TestSession_PasswordStateMachine(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)
	observer := NewChannelObserver(64)

	session, err := f.svc.NewSession("/docs/hdfc.pdf", pdfOptions(), observer)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, session.State())

	_, err = session.Start(context.Background())
	require.ErrorIs(t, err, parsererror.ErrPasswordRequired)
	assert.Equal(t, StatePasswordRequired, session.State())
	assert.Equal(t, 1, session.Attempt())

	for attempt := 2; attempt <= 4; attempt++ {
		_, err = session.SubmitPassword(context.Background(), "wrong")
		challenge, ok := AsPasswordChallenge(err)
		require.True(t, ok)
		assert.True(t, challenge.Incorrect())
		assert.Equal(t, attempt, session.Attempt())
		assert.Equal(t, StatePasswordRequired, session.State())
	}
	challenge, _ := AsPasswordChallenge(err)
	assert.Equal(t, "Incorrect password. Please try again. (Attempt 4)", challenge.Prompt())

	result, err := session.SubmitPassword(context.Background(), "secret")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, StateComplete, session.State())
	assert.Equal(t, 0, session.Attempt())
	assert.Same(t, result, session.Result())
	assert.Equal(t, []string{"", "wrong", "wrong", "wrong", "secret"}, f.pdf.Attempts)

	observer.Close()
	var events []Event
	for e := range observer.C {
		events = append(events, e)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StateComplete, last.State)
	assert.Equal(t, models.StageComplete, last.Progress.Stage)
	assert.Equal(t, 100, last.Progress.Progress)
	assert.Equal(t, TotalSteps, last.Progress.CurrentStepIndex)

	var sawUnlock bool
	for i, e := range events {
		assert.Equal(t, TotalSteps, e.Progress.TotalSteps)
		if i > 0 {
			assert.GreaterOrEqual(t, e.Progress.Progress, events[i-1].Progress.Progress)
			assert.GreaterOrEqual(t, e.Progress.CurrentStepIndex, events[i-1].Progress.CurrentStepIndex)
		}
		if e.Progress.CurrentStep == "Unlocking PDF with password" {
			sawUnlock = true
		}
	}
	assert.True(t, sawUnlock)
}

func TestSession_CancelFromPasswordRequired(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)
	var events []Event
	session, err := f.svc.NewSession("/docs/hdfc.pdf", pdfOptions(), ObserverFunc(func(e Event) {
		events = append(events, e)
	}))
	require.NoError(t, err)

	_, err = session.Start(context.Background())
	require.Error(t, err)

	session.Cancel()
	assert.Equal(t, StateIdle, session.State())
	assert.Equal(t, 0, session.Attempt())
	assert.Equal(t, StateIdle, events[len(events)-1].State)
	assert.Equal(t, 0, events[len(events)-1].Progress.Progress)

	_, err = session.SubmitPassword(context.Background(), "secret")
	assert.Error(t, err)

	// A fresh invocation starts from scratch.
	_, err = session.Start(context.Background())
	require.ErrorIs(t, err, parsererror.ErrPasswordRequired)
	assert.Equal(t, 1, session.Attempt())
}

func TestSession_StartIsRejectedWhilePasswordPending(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)
	session, err := f.svc.NewSession("/docs/hdfc.pdf", pdfOptions(), nil)
	require.NoError(t, err)

	_, err = session.Start(context.Background())
	require.Error(t, err)
	_, err = session.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatePasswordRequired, session.State())
}

func TestSession_RestartAfterCompletionGetsNewInvocation(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/statement.csv", []byte(genericCSV))
	session, err := f.svc.NewSession("/docs/statement.csv", csvOptions(), nil)
	require.NoError(t, err)

	first, err := session.Start(context.Background())
	require.NoError(t, err)
	second, err := session.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Metadata.InvocationID, second.Metadata.InvocationID)
	assert.Equal(t, StateComplete, session.State())
}

func TestSession_RestartForgetsPreviousMetadata(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/statement.csv", []byte(genericCSV))
	session, err := f.svc.NewSession("/docs/statement.csv", csvOptions(), nil)
	require.NoError(t, err)

	first, err := session.Start(context.Background())
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, "Generic ISO CSV", first.Metadata.BankDetected)

	f.fs.Put("/docs/statement.csv", []byte("hello"))
	second, err := session.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Empty(t, second.Metadata.BankDetected)
	assert.Equal(t, int64(len("hello")), second.Metadata.FileSize)
	assert.Equal(t, "statement.csv", second.Metadata.FileName)
}

// stateChanges collapses consecutive events of the same state.
func stateChanges(events []Event) []State {
	var states []State
	for _, e := range events {
		if len(states) == 0 || states[len(states)-1] != e.State {
			states = append(states, e.State)
		}
	}
	return states
}

func TestSession_PasswordResumeSkipsUploading(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)
	var events []Event
	var transitions []State
	session, err := f.svc.NewSession("/docs/hdfc.pdf", pdfOptions(), ObserverFunc(func(e Event) {
		events = append(events, e)
	}))
	require.NoError(t, err)
	record := func() { transitions = append(transitions, session.State()) }

	_, err = session.Start(context.Background())
	require.ErrorIs(t, err, parsererror.ErrPasswordRequired)
	record()
	assert.Equal(t, []State{StateUploading, StateParsing, StatePasswordRequired}, stateChanges(events))

	events = nil
	_, err = session.SubmitPassword(context.Background(), "wrong")
	require.ErrorIs(t, err, parsererror.ErrPasswordIncorrect)
	record()
	assert.Equal(t, []State{StateParsing, StatePasswordRequired}, stateChanges(events))
	assert.Equal(t, "Unlocking PDF with password", events[0].Progress.CurrentStep)

	events = nil
	result, err := session.SubmitPassword(context.Background(), "secret")
	require.NoError(t, err)
	require.True(t, result.Success)
	record()
	assert.Equal(t, []State{StateParsing, StateComplete}, stateChanges(events))
	for _, e := range events {
		assert.NotEqual(t, StateUploading, e.State)
	}

	assert.Equal(t, []State{StatePasswordRequired, StatePasswordRequired, StateComplete}, transitions)
	assert.Equal(t, "hdfc.pdf", result.Metadata.FileName)
	assert.Equal(t, int64(len(fakePDF)), result.Metadata.FileSize)
}

func TestSession_FailureEndsInErrorState(t *testing.T) {
	f := newFixture(t, "")
	f.fs.Put("/docs/notes.csv", []byte("hello"))
	var last Event
	session, err := f.svc.NewSession("/docs/notes.csv", csvOptions(), ObserverFunc(func(e Event) { last = e }))
	require.NoError(t, err)

	result, err := session.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, StateError, session.State())
	assert.Equal(t, models.StageError, last.Progress.Stage)
}

func TestSession_Run(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)
	session, err := f.svc.NewSession("/docs/hdfc.pdf", pdfOptions(), nil)
	require.NoError(t, err)

	var prompts []string
	answers := []string{"wrong", "secret"}
	result, err := session.Run(context.Background(), PrompterFunc(func(_ context.Context, c *PasswordChallenge) (string, bool, error) {
		prompts = append(prompts, c.Prompt())
		answer := answers[0]
		answers = answers[1:]
		return answer, true, nil
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "password protected")
	assert.Equal(t, "Incorrect password. Please try again. (Attempt 2)", prompts[1])
}

func TestSession_RunDeclinedPrompt(t *testing.T) {
	f := newFixture(t, "secret")
	f.fs.Put("/docs/hdfc.pdf", fakePDF)
	session, err := f.svc.NewSession("/docs/hdfc.pdf", pdfOptions(), nil)
	require.NoError(t, err)

	result, err := session.Run(context.Background(), PrompterFunc(func(context.Context, *PasswordChallenge) (string, bool, error) {
		return "", false, nil
	}))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, parsererror.ErrCancelled)
	assert.Equal(t, StateIdle, session.State())
}

func TestParseDocument_CancellationRemovesTemporaryCopy(t *testing.T) {
	f := newFixture(t, "")
	f.pdf.Text = ""
	f.ocr.Block = true
	f.fs.Put("content://downloads/hdfc.pdf", fakePDF)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	opts := pdfOptions()
	opts.OCREnabled = true
	result, err := f.svc.ParseDocument(ctx, "content://downloads/hdfc.pdf", opts)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, f.ocr.Calls, 1)
	assert.Equal(t, []string{f.ocr.Calls[0]}, f.fs.Deleted())
	assert.Equal(t, []string{"content://downloads/hdfc.pdf"}, f.fs.URIs())
}

func TestSession_CancelDuringRunReturnsToIdle(t *testing.T) {
	f := newFixture(t, "")
	f.pdf.Text = ""
	f.ocr.Block = true
	f.fs.Put("content://downloads/hdfc.pdf", fakePDF)
	opts := pdfOptions()
	opts.OCREnabled = true
	session, err := f.svc.NewSession("content://downloads/hdfc.pdf", opts, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := session.Start(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return session.State() == StateParsing }, time.Second, 5*time.Millisecond)
	session.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after Cancel")
	}
	assert.Equal(t, StateIdle, session.State())
	assert.Len(t, f.fs.Deleted(), 1)
}

func TestParseDocument_OCR(t *testing.T) {
	t.Run("failure becomes a warning", func(t *testing.T) {
		f := newFixture(t, "")
		f.pdf.Text = ""
		f.ocr.Err = errors.New("engine unavailable")
		f.fs.Put("/docs/scan.pdf", fakePDF)

		opts := pdfOptions()
		opts.OCREnabled = true
		result, err := f.svc.ParseDocument(context.Background(), "/docs/scan.pdf", opts)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, []string{"OCR failed: engine unavailable"}, result.Warnings)
		assert.True(t, f.logger.HasEntry("WARN", "OCR failed, continuing with native text"))
	})

	t.Run("scanned pdf text comes from OCR", func(t *testing.T) {
		f := newFixture(t, "")
		f.pdf.Text = ""
		f.ocr.Text = hdfcText
		f.fs.Put("/docs/scan.pdf", fakePDF)

		opts := pdfOptions()
		opts.OCREnabled = true
		result, err := f.svc.ParseDocument(context.Background(), "/docs/scan.pdf", opts)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "HDFC Bank", result.Metadata.BankDetected)
		assert.Len(t, f.ocr.Calls, 1)
	})

	t.Run("pdf text layer is not recognized twice", func(t *testing.T) {
		f := newFixture(t, "")
		f.ocr.Text = hdfcText
		f.fs.Put("/docs/hdfc.pdf", fakePDF)

		opts := pdfOptions()
		opts.OCREnabled = true
		result, err := f.svc.ParseDocument(context.Background(), "/docs/hdfc.pdf", opts)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Empty(t, f.ocr.Calls)
		assert.Len(t, result.Transactions, 3)
		assert.Empty(t, result.Warnings)
	})

	t.Run("image text comes from OCR", func(t *testing.T) {
		f := newFixture(t, "")
		f.ocr.Text = hdfcText
		f.fs.Put("/docs/scan.png", []byte("\x89PNG\r\n"))

		result, err := f.svc.ParseDocument(context.Background(), "/docs/scan.png",
			models.ParseOptions{Format: models.FormatImage, OCREnabled: true})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "HDFC Bank", result.Metadata.BankDetected)
		assert.Equal(t, []string{"/docs/scan.png"}, f.ocr.Calls)
	})

	t.Run("row formats skip OCR", func(t *testing.T) {
		f := newFixture(t, "")
		f.fs.Put("/docs/statement.csv", []byte(genericCSV))

		opts := csvOptions()
		opts.OCREnabled = true
		_, err := f.svc.ParseDocument(context.Background(), "/docs/statement.csv", opts)
		require.NoError(t, err)
		assert.Empty(t, f.ocr.Calls)
	})
}

func TestPickAndParse(t *testing.T) {
	t.Run("cancelled pick", func(t *testing.T) {
		f := newFixture(t, "")
		result, err := f.svc.PickAndParse(context.Background(),
			source.StaticPicker{Response: source.PickerResponse{Canceled: true}}, csvOptions(), nil)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, parsererror.ErrCancelled)
	})

	t.Run("selected document", func(t *testing.T) {
		f := newFixture(t, "")
		f.fs.Put("content://picker/42", []byte(genericCSV))
		picker := source.StaticPicker{Response: source.PickerResponse{
			Assets: []source.Asset{{URI: "content://picker/42", Name: "october.csv", Size: 99, MimeType: "text/csv"}},
		}}

		result, err := f.svc.PickAndParse(context.Background(), picker, csvOptions(), nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "october.csv", result.Metadata.FileName)
		assert.Equal(t, int64(99), result.Metadata.FileSize)
		assert.Equal(t, "text/csv", result.Metadata.MimeType)
	})
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	o := NewChannelObserver(1)
	o.OnProgress(Event{State: StateUploading})
	o.OnProgress(Event{State: StateParsing})
	assert.Equal(t, 1, o.Dropped())
	o.Close()
	o.OnProgress(Event{State: StateComplete})
	assert.Equal(t, StateUploading, (<-o.C).State)
}

func TestTracker_ClampsAndResets(t *testing.T) {
	var got []int
	tr := newTracker(ObserverFunc(func(e Event) { got = append(got, e.Progress.Progress) }))
	tr.emit(StateParsing, models.StageParsing, stepDetect)
	tr.emit(StateUploading, models.StageUploading, stepSelect)
	tr.reset()
	tr.emit(StateUploading, models.StageUploading, stepSelect)
	assert.Equal(t, []int{70, 70, 10}, got)
}
