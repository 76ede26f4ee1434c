package models

import (
	"fmt"
)

// DocumentMetadata describes the processed upload.
type DocumentMetadata struct {
	FileName          string   `json:"fileName"`
	FileSize          int64    `json:"fileSize"`
	MimeType          string   `json:"mimeType,omitempty"`
	TotalTransactions int      `json:"totalTransactions"`
	BankDetected      string   `json:"bankDetected,omitempty"`
	Currency          Currency `json:"currency,omitempty"`
	ClosingBalance    *Money   `json:"closingBalance,omitempty"`
	InvocationID      string   `json:"invocationId"`
}

// DocumentParsingResult is the terminal output of one pipeline invocation.
type DocumentParsingResult struct {
	Success      bool                `json:"success"`
	Transactions []ParsedTransaction `json:"transactions"`
	Metadata     DocumentMetadata    `json:"metadata"`
	Errors       []ParseError        `json:"errors"`
	Warnings     []string            `json:"warnings"`
}

// NewFailedResult builds the result of a pipeline-fatal condition.
func NewFailedResult(meta DocumentMetadata, err ParseError, warnings []string) *DocumentParsingResult {
	if warnings == nil {
		warnings = []string{}
	}
	meta.TotalTransactions = 0
	return &DocumentParsingResult{
		Success:      false,
		Transactions: []ParsedTransaction{},
		Metadata:     meta,
		Errors:       []ParseError{err},
		Warnings:     warnings,
	}
}

// FatalError returns the first high-severity error, if any.
func (r *DocumentParsingResult) FatalError() (ParseError, bool) {
	for _, e := range r.Errors {
		if e.Severity == SeverityHigh {
			return e, true
		}
	}
	return ParseError{}, false
}

// Summary is a one-line human description of the result.
func (r *DocumentParsingResult) Summary() string {
	bank := r.Metadata.BankDetected
	if bank == "" {
		bank = "unknown bank"
	}
	return fmt.Sprintf("%s: %d transactions (%s), %d errors, %d warnings",
		r.Metadata.FileName, r.Metadata.TotalTransactions, bank, len(r.Errors), len(r.Warnings))
}

// PasswordAttemptState is the parked state of an interactive password loop.
type PasswordAttemptState struct {
	FileURI       string `json:"fileUri"`
	FileName      string `json:"fileName"`
	AttemptNumber int    `json:"attemptNumber"`
}
