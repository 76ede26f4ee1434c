// Package common contains shared functionality for command handlers
package common

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	internalcommon "fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/pipeline"
)

// Output modes.
const (
	OutputJSON = "json"
	OutputCSV  = "csv"
)

// BuildOptions turns command flags into parse options. The format falls back
// to the input file extension.
func BuildOptions(input, format string, ocr bool, bank, currency string) (models.ParseOptions, error) {
	var (
		opts models.ParseOptions
		err  error
	)
	if format != "" {
		opts.Format, err = models.ParseDocumentFormat(format)
	} else {
		opts.Format, err = models.FormatFromFileName(input)
	}
	if err != nil {
		return opts, err
	}
	opts.OCREnabled = ocr
	opts.Bank = strings.TrimSpace(bank)
	if currency != "" {
		opts.Currency = models.Currency(strings.ToUpper(strings.TrimSpace(currency)))
	}
	return opts, nil
}

// OutputMode picks json or csv: an explicit mode wins, then the output file
// extension. Stdout defaults to json.
func OutputMode(output, explicit string) (string, error) {
	switch strings.ToLower(explicit) {
	case OutputJSON, OutputCSV:
		return strings.ToLower(explicit), nil
	case "":
	default:
		return "", fmt.Errorf("unknown output type %q (must be json or csv)", explicit)
	}
	if strings.EqualFold(filepath.Ext(output), ".csv") {
		return OutputCSV, nil
	}
	return OutputJSON, nil
}

// TerminalPrompter asks for PDF passwords on a terminal. An empty answer
// declines the prompt.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// NewTerminalPrompter prompts on stderr and reads answers from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// PromptPassword implements pipeline.Prompter.
func (p *TerminalPrompter) PromptPassword(ctx context.Context, challenge *pipeline.PasswordChallenge) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	fmt.Fprintf(p.Out, "%s\nPassword (empty to cancel): ", challenge.Prompt())
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", false, fmt.Errorf("failed to read password: %w", err)
		}
		return "", false, nil
	}
	password := strings.TrimRight(p.scanner.Text(), "\r")
	if password == "" {
		return "", false, nil
	}
	return password, true, nil
}

// ProgressLogger reports pipeline progress at debug level.
func ProgressLogger(logger logging.Logger) pipeline.Observer {
	return pipeline.ObserverFunc(func(e pipeline.Event) {
		logger.Debug(e.Progress.CurrentStep,
			logging.F(logging.FieldState, e.State),
			logging.F(logging.FieldStep, e.Progress.CurrentStepIndex),
			logging.F(logging.FieldProgress, e.Progress.Progress))
	})
}

// WriteResult renders a result in the given mode. CSV carries transactions only.
func WriteResult(w io.Writer, result *models.DocumentParsingResult, mode string, exporter *internalcommon.Exporter) error {
	if result == nil {
		return fmt.Errorf("no result to write")
	}
	if mode == OutputCSV {
		return exporter.Write(w, result.Transactions, result.Metadata.Currency)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ProcessFile parses one statement through a session, prompting for a
// password when needed, and writes the outcome to output or w.
func ProcessFile(ctx context.Context, svc *pipeline.Service, input, output, mode string, opts models.ParseOptions,
	prompter pipeline.Prompter, exporter *internalcommon.Exporter, w io.Writer, logger logging.Logger) (*models.DocumentParsingResult, error) {
	if input == "" {
		return nil, fmt.Errorf("input file is required (use --input)")
	}
	session, err := svc.NewSession(input, opts, ProgressLogger(logger))
	if err != nil {
		return nil, err
	}
	result, err := session.Run(ctx, prompter)
	if err != nil {
		return nil, err
	}

	for _, warning := range result.Warnings {
		logger.Warn(warning, logging.F(logging.FieldFile, input))
	}
	for _, pe := range result.Errors {
		logger.Warn(pe.Message,
			logging.F(logging.FieldFile, input),
			logging.F(logging.FieldLine, pe.Line),
			logging.F(logging.FieldSeverity, pe.Severity))
	}

	if output == "" {
		return result, WriteResult(w, result, mode, exporter)
	}
	if mode == OutputCSV {
		return result, exporter.WriteFile(output, result.Transactions, result.Metadata.Currency)
	}
	f, err := os.Create(output)
	if err != nil {
		return result, fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteResult(f, result, mode, exporter); err != nil {
		_ = f.Close()
		return result, err
	}
	if err := f.Close(); err != nil {
		return result, fmt.Errorf("failed to close output file: %w", err)
	}
	logger.Info("Wrote result", logging.F(logging.FieldOutputFile, output))
	return result, nil
}
