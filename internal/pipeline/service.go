// Package pipeline sequences source acquisition, reading, password
// resolution, OCR, format detection and extraction into one cancellable
// invocation that yields a DocumentParsingResult.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fjacquet/statement-ingest/internal/extractor"
	"fjacquet/statement-ingest/internal/fileutils"
	"fjacquet/statement-ingest/internal/formats"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/metrics"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/ocr"
	"fjacquet/statement-ingest/internal/parsererror"
	"fjacquet/statement-ingest/internal/reader"
	"fjacquet/statement-ingest/internal/source"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fjacquet/statement-ingest/pipeline"

// Dependencies are the collaborators of a Service. Only FS is required.
type Dependencies struct {
	FS         fileutils.FileSystem
	Reader     *reader.Reader
	Recognizer ocr.Recognizer
	Detector   *formats.Detector
	Extractor  *extractor.Extractor
	Metrics    *metrics.Metrics
	Logger     logging.Logger
	// DefaultCurrency applies when neither the format nor the options name one.
	DefaultCurrency models.Currency
	// Observer receives progress of PickAndParse sessions.
	Observer Observer
}

// Service runs parsing invocations. It holds no per-invocation state and is
// safe for concurrent use.
type Service struct {
	fs              fileutils.FileSystem
	reader          *reader.Reader
	recognizer      ocr.Recognizer
	detector        *formats.Detector
	extractor       *extractor.Extractor
	metrics         *metrics.Metrics
	logger          logging.Logger
	tracer          trace.Tracer
	defaultCurrency models.Currency
	observer        Observer
}

// NewService creates a Service, filling unset collaborators with defaults.
func NewService(deps Dependencies) *Service {
	logger := logging.OrDefault(deps.Logger)
	if deps.FS == nil {
		deps.FS = fileutils.NewLocalFS("")
	}
	if deps.Reader == nil {
		deps.Reader = reader.New(deps.FS, nil, "", logger)
	}
	if deps.Detector == nil {
		deps.Detector = formats.NewDetector()
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(logger)
	}
	if !deps.DefaultCurrency.Valid() {
		deps.DefaultCurrency = models.INR
	}
	return &Service{
		fs:              deps.FS,
		reader:          deps.Reader,
		recognizer:      deps.Recognizer,
		detector:        deps.Detector,
		extractor:       deps.Extractor,
		metrics:         deps.Metrics,
		logger:          logger,
		tracer:          otel.Tracer(tracerName),
		defaultCurrency: deps.DefaultCurrency,
		observer:        deps.Observer,
	}
}

// invocation is the immutable input of one parse plus the metadata gathered
// for it.
type invocation struct {
	uri    string
	opts   models.ParseOptions
	forced *formats.Format
	meta   models.DocumentMetadata
	// origin is what is known before reading: the name and any picker details.
	origin models.DocumentMetadata
}

// restart discards what a previous pass learned and assigns a new invocation ID.
func (inv *invocation) restart() {
	inv.meta = inv.origin
	inv.meta.InvocationID = uuid.NewString()
}

// ValidateOptions checks an options combination before any I/O happens.
func (s *Service) ValidateOptions(opts models.ParseOptions) error {
	_, err := s.validate(opts)
	return err
}

func (s *Service) validate(opts models.ParseOptions) (*formats.Format, error) {
	if opts.Format == "" {
		return nil, &parsererror.OptionsError{Option: "format", Reason: "a document format is required"}
	}
	switch opts.Format {
	case models.FormatPDF, models.FormatExcel, models.FormatCSV, models.FormatImage:
	default:
		return nil, &parsererror.OptionsError{Option: "format", Reason: fmt.Sprintf("unsupported document format %q", opts.Format)}
	}
	if opts.Format == models.FormatImage && !opts.OCREnabled {
		return nil, &parsererror.OptionsError{Option: "ocrEnabled", Reason: "image documents require OCR"}
	}
	if opts.OCREnabled && s.recognizer == nil && opts.Format == models.FormatImage {
		return nil, &parsererror.OptionsError{Option: "ocrEnabled", Reason: "no OCR engine is configured"}
	}
	if opts.Currency != "" && !opts.Currency.Valid() {
		return nil, &parsererror.OptionsError{Option: "currency", Reason: fmt.Sprintf("unsupported currency %q", opts.Currency)}
	}
	if opts.Bank == "" {
		return nil, nil
	}
	f, ok := formats.Lookup(opts.Bank)
	if !ok {
		return nil, &parsererror.OptionsError{Option: "bank", Reason: fmt.Sprintf("unknown bank format %q", opts.Bank)}
	}
	return &f, nil
}

func (s *Service) newInvocation(uri string, opts models.ParseOptions) (*invocation, error) {
	forced, err := s.validate(opts)
	if err != nil {
		return nil, err
	}
	inv := &invocation{
		uri:    uri,
		opts:   opts,
		forced: forced,
		origin: models.DocumentMetadata{FileName: fileutils.DisplayName(uri)},
	}
	inv.restart()
	return inv, nil
}

// ParseDocument parses uri without a password. Encrypted PDFs yield a
// *PasswordChallenge for attempt 1.
func (s *Service) ParseDocument(ctx context.Context, uri string, opts models.ParseOptions) (*models.DocumentParsingResult, error) {
	return s.ParseDocumentAttempt(ctx, uri, opts, "", 0)
}

// ParseDocumentWithPassword parses uri with password, counting it as the
// first submitted password.
func (s *Service) ParseDocumentWithPassword(ctx context.Context, uri string, opts models.ParseOptions, password string) (*models.DocumentParsingResult, error) {
	return s.ParseDocumentAttempt(ctx, uri, opts, password, 1)
}

// ParseDocumentAttempt is the stateless form of a session step for callers
// that carry the attempt counter themselves, such as the HTTP API. attempt
// is the number of the challenge the password answers (0 when none).
func (s *Service) ParseDocumentAttempt(ctx context.Context, uri string, opts models.ParseOptions, password string, attempt int) (*models.DocumentParsingResult, error) {
	inv, err := s.newInvocation(uri, opts)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, inv, password, attempt, false, newTracker(nil), nil)
}

// ParseSelection is ParseDocumentAttempt for a document whose name, size and
// MIME type are already known, such as an HTTP upload stored under a
// temporary name.
func (s *Service) ParseSelection(ctx context.Context, selection source.Selection, opts models.ParseOptions, password string, attempt int) (*models.DocumentParsingResult, error) {
	if !selection.Selected() {
		return nil, parsererror.ErrCancelled
	}
	inv, err := s.newInvocation(selection.URI, opts)
	if err != nil {
		return nil, err
	}
	inv.describeSelection(selection)
	return s.run(ctx, inv, password, attempt, false, newTracker(nil), nil)
}

func (inv *invocation) describeSelection(selection source.Selection) {
	if selection.DisplayName != "" {
		inv.origin.FileName = selection.DisplayName
	}
	inv.origin.FileSize = selection.ByteSize
	inv.origin.MimeType = selection.MimeType
	inv.meta.FileName = inv.origin.FileName
	inv.meta.FileSize = inv.origin.FileSize
	inv.meta.MimeType = inv.origin.MimeType
}

// PickAndParse lets the picker choose a document and runs an interactive
// session on it. A cancelled pick returns (nil, parsererror.ErrCancelled).
func (s *Service) PickAndParse(ctx context.Context, picker source.Picker, opts models.ParseOptions, prompter Prompter) (*models.DocumentParsingResult, error) {
	if err := s.ValidateOptions(opts); err != nil {
		return nil, err
	}
	selection := source.Pick(ctx, picker, s.logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !selection.Selected() {
		s.metrics.ObserveParse(string(opts.Format), metrics.OutcomeCancelled)
		return nil, parsererror.ErrCancelled
	}

	session, err := s.NewSession(selection.URI, opts, s.observer)
	if err != nil {
		return nil, err
	}
	session.inv.describeSelection(selection)
	return session.Run(ctx, prompter)
}

// nextAttempt numbers the challenge raised after the given attempt.
func nextAttempt(previous int, err error) int {
	if errors.Is(err, parsererror.ErrPasswordIncorrect) && previous > 0 {
		return previous + 1
	}
	if previous > 0 && errors.Is(err, parsererror.ErrPasswordRequired) {
		return previous
	}
	return 1
}

// run executes one pass of the pipeline. It returns a result for completed
// and failed documents, a *PasswordChallenge when a password is needed, and
// ctx.Err() on cancellation. A resumed pass answers a pending password
// challenge: the document was already selected, so it goes straight to parsing.
func (s *Service) run(ctx context.Context, inv *invocation, password string, attempt int, resume bool, tr *tracker, setState func(State)) (result *models.DocumentParsingResult, err error) {
	if setState == nil {
		setState = func(State) {}
	}
	log := s.logger.WithFields(
		logging.F(logging.FieldInvocationID, inv.meta.InvocationID),
		logging.F(logging.FieldFormat, string(inv.opts.Format)))

	ctx, span := s.tracer.Start(ctx, "pipeline.parse", trace.WithAttributes(
		attribute.String("document.format", string(inv.opts.Format)),
		attribute.String("invocation.id", inv.meta.InvocationID),
		attribute.Bool("ocr.enabled", inv.opts.OCREnabled),
		attribute.Int("password.attempt", attempt),
	))
	defer func() {
		s.finish(span, inv, result, err)
		span.End()
	}()

	if !resume {
		setState(StateUploading)
		tr.emit(StateUploading, models.StageUploading, stepSelect)
		s.describe(ctx, inv, log)
		tr.emit(StateUploading, models.StageUploading, stepRead)
	}
	file, err := s.acquire(ctx, inv)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("Failed to acquire document")
		return s.fail(tr, setState, inv, models.NewFatalError("unable to read document: %v", err), nil), nil
	}
	defer func() { _ = file.Release() }()

	setState(StateParsing)
	if inv.opts.Format == models.FormatPDF {
		if password != "" {
			tr.emit(StateParsing, models.StageParsing, stepUnlockPW)
		} else {
			tr.emit(StateParsing, models.StageParsing, stepUnlock)
		}
	}

	content, err := s.read(ctx, inv, file, password)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, parsererror.ErrPasswordRequired) || errors.Is(err, parsererror.ErrPasswordIncorrect) {
			challenge := &PasswordChallenge{
				Err: err,
				Attempt: models.PasswordAttemptState{
					FileURI:       inv.uri,
					FileName:      inv.meta.FileName,
					AttemptNumber: nextAttempt(attempt, err),
				},
			}
			setState(StatePasswordRequired)
			tr.emit(StatePasswordRequired, models.StageParsing, stepPassword)
			log.Info("Document requires a password",
				logging.F(logging.FieldAttempt, challenge.Attempt.AttemptNumber))
			return nil, challenge
		}
		var decryptErr *parsererror.DecryptionError
		if errors.As(err, &decryptErr) {
			log.WithError(err).Warn("Failed to decrypt document")
			return s.fail(tr, setState, inv, models.NewFatalError("unable to decrypt document: %v", decryptErr.Err), nil), nil
		}
		log.WithError(err).Warn("Failed to read document")
		return s.fail(tr, setState, inv, models.NewFatalError("unable to read document: %v", err), nil), nil
	}

	var warnings []string
	if s.wantsOCR(inv.opts, content) {
		tr.emit(StateParsing, models.StageParsing, stepRecognize)
		warning, err := s.recognize(ctx, file, &content, log)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	tr.emit(StateParsing, models.StageParsing, stepDetect)
	format, ok := s.detect(ctx, inv, content)
	if !ok {
		log.Warn("Bank format not recognized")
		return s.fail(tr, setState, inv, models.NewFatalError("%s", parsererror.ErrFormatNotRecognized.Error()), warnings), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv.meta.BankDetected = format.BankName
	inv.meta.Currency = format.Currency

	tr.emit(StateParsing, models.StageParsing, stepExtract)
	extraction := s.extract(ctx, content, format)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.metrics.ObserveExtraction(format.Slug, len(extraction.Transactions), len(extraction.Errors), len(extraction.Warnings))

	result = s.assemble(inv, extraction, append(warnings, extraction.Warnings...))
	if result.Success {
		setState(StateComplete)
		tr.emit(StateComplete, models.StageComplete, stepDone)
	} else {
		setState(StateError)
		tr.emit(StateError, models.StageError, stepFailed)
	}
	log.Info("Document parsed",
		logging.F(logging.FieldBank, format.Slug),
		logging.F(logging.FieldCount, len(result.Transactions)),
		logging.F("errors", len(result.Errors)),
		logging.F("warnings", len(result.Warnings)))
	return result, nil
}

// describe fills file name, size and MIME type from the filesystem. A failed
// stat is not fatal: reading reports the real problem.
func (s *Service) describe(ctx context.Context, inv *invocation, log logging.Logger) {
	if inv.meta.FileSize > 0 || inv.meta.MimeType != "" {
		return
	}
	info, err := s.fs.Stat(ctx, inv.uri)
	if err != nil {
		log.WithError(err).Debug("Could not stat document")
		return
	}
	if info.Name != "" {
		inv.meta.FileName = info.Name
	}
	inv.meta.FileSize = info.Size
	inv.meta.MimeType = info.MimeType
}

func (s *Service) acquire(ctx context.Context, inv *invocation) (*reader.LocalFile, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.acquire")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveStage("acquire", time.Since(start)) }()

	file, err := s.reader.Acquire(ctx, inv.uri, inv.opts.Format)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire failed")
	}
	return file, err
}

func (s *Service) read(ctx context.Context, inv *invocation, file *reader.LocalFile, password string) (reader.RawContent, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.read")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveStage("read", time.Since(start)) }()

	content, err := s.reader.ReadLocal(ctx, file, inv.opts.Format, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return content, err
	}
	span.SetAttributes(attribute.Int("document.pages", content.Pages))
	return content, nil
}

// wantsOCR reports whether recognized text should be merged. PDFs with a
// text layer are not recognized again: the same rows would be read twice.
func (s *Service) wantsOCR(opts models.ParseOptions, content reader.RawContent) bool {
	if !opts.OCREnabled || s.recognizer == nil {
		return false
	}
	switch opts.Format {
	case models.FormatImage:
		return true
	case models.FormatPDF:
		return strings.TrimSpace(content.Text) == ""
	default:
		return false
	}
}

// recognize merges OCR text into content. Engine failures become a warning;
// only cancellation is returned as an error.
func (s *Service) recognize(ctx context.Context, file *reader.LocalFile, content *reader.RawContent, log logging.Logger) (string, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.ocr")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveStage("ocr", time.Since(start)) }()

	path, err := file.Path()
	if err == nil {
		var res ocr.Result
		res, err = s.recognizer.Recognize(ctx, path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err == nil {
			content.AppendRecognized(res.Text)
			span.SetAttributes(attribute.Float64("ocr.confidence", res.Confidence))
			log.Debug("OCR text merged", logging.F(logging.FieldConfidence, res.Confidence))
		}
	}
	s.metrics.ObserveOCR(err)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Warn("OCR failed, continuing with native text")
		return fmt.Sprintf("OCR failed: %v", err), nil
	}
	return "", nil
}

func (s *Service) detect(ctx context.Context, inv *invocation, content reader.RawContent) (formats.Format, bool) {
	_, span := s.tracer.Start(ctx, "pipeline.detect")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveStage("detect", time.Since(start)) }()

	var (
		format formats.Format
		ok     bool
	)
	if inv.forced != nil {
		format, ok = *inv.forced, true
	} else {
		format, ok = s.detector.Detect(content.String())
	}
	if !ok {
		span.SetStatus(codes.Error, parsererror.ErrFormatNotRecognized.Error())
		return formats.Format{}, false
	}
	if format.Currency == "" {
		currency := inv.opts.Currency
		if currency == "" {
			currency = s.defaultCurrency
		}
		format = format.WithCurrency(currency)
	}
	span.SetAttributes(attribute.String("bank", format.Slug))
	return format, true
}

func (s *Service) extract(ctx context.Context, content reader.RawContent, format formats.Format) extractor.Extraction {
	_, span := s.tracer.Start(ctx, "pipeline.extract")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveStage("extract", time.Since(start)) }()

	extraction := s.extractor.Extract(content.Lines(), format)
	span.SetAttributes(
		attribute.Int("transactions", len(extraction.Transactions)),
		attribute.Int("line_errors", len(extraction.Errors)),
		attribute.Int("warnings", len(extraction.Warnings)))
	return extraction
}

func (s *Service) assemble(inv *invocation, extraction extractor.Extraction, warnings []string) *models.DocumentParsingResult {
	meta := inv.meta
	meta.TotalTransactions = len(extraction.Transactions)
	if extraction.ClosingBalance != nil {
		if closing, err := models.NewMoney(*extraction.ClosingBalance, meta.Currency); err == nil {
			meta.ClosingBalance = &closing
		}
	}
	if warnings == nil {
		warnings = []string{}
	}

	errs := append([]models.ParseError{}, extraction.Errors...)
	success := len(extraction.Transactions) > 0
	if !success {
		errs = append(errs, models.NewFatalError("no transactions found"))
	}
	return &models.DocumentParsingResult{
		Success:      success,
		Transactions: extraction.Transactions,
		Metadata:     meta,
		Errors:       errs,
		Warnings:     warnings,
	}
}

func (s *Service) fail(tr *tracker, setState func(State), inv *invocation, parseErr models.ParseError, warnings []string) *models.DocumentParsingResult {
	setState(StateError)
	tr.emit(StateError, models.StageError, stepFailed)
	return models.NewFailedResult(inv.meta, parseErr, warnings)
}

// finish records the outcome of one pass on the span and in metrics.
func (s *Service) finish(span trace.Span, inv *invocation, result *models.DocumentParsingResult, err error) {
	format := string(inv.opts.Format)
	var challenge *PasswordChallenge
	switch {
	case errors.As(err, &challenge):
		outcome := metrics.OutcomePasswordRequired
		if challenge.Incorrect() {
			outcome = metrics.OutcomePasswordIncorrect
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		s.metrics.ObserveParse(format, outcome)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveParse(format, metrics.OutcomeCancelled)
	case result != nil && result.Success:
		span.SetAttributes(attribute.Int("transactions", len(result.Transactions)))
		span.SetStatus(codes.Ok, "")
		s.metrics.ObserveParse(format, metrics.OutcomeSuccess)
	default:
		if result != nil {
			if fatal, ok := result.FatalError(); ok {
				span.SetStatus(codes.Error, fatal.Message)
			}
		}
		s.metrics.ObserveParse(format, metrics.OutcomeFailed)
	}
}
