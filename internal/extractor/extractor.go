// Package extractor turns statement lines into transactions for a known
// format. One bad line never stops extraction: it becomes a ParseError and
// the next line is tried.
package extractor

import (
	"fmt"
	"strings"
	"time"

	"fjacquet/statement-ingest/internal/formats"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"

	"github.com/shopspring/decimal"
)

// Extraction is the outcome of extracting one document.
type Extraction struct {
	Transactions []models.ParsedTransaction
	Errors       []models.ParseError
	// Warnings are data-quality findings such as balance mismatches.
	Warnings       []string
	OpeningBalance *decimal.Decimal
	ClosingBalance *decimal.Decimal
}

// Extractor parses lines against a format.
type Extractor struct {
	logger logging.Logger
}

// New creates an Extractor.
func New(logger logging.Logger) *Extractor {
	return &Extractor{logger: logging.OrDefault(logger)}
}

// lineError aborts the current line only.
type lineError struct {
	msg string
}

func (e *lineError) Error() string { return e.msg }

func errorf(format string, args ...interface{}) error {
	return &lineError{msg: fmt.Sprintf(format, args...)}
}

// Extract parses lines in order. Line numbers are 1-based indexes into lines.
func (e *Extractor) Extract(lines []string, format formats.Format) Extraction {
	out := Extraction{
		Transactions: []models.ParsedTransaction{},
		Errors:       []models.ParseError{},
		Warnings:     []string{},
	}
	epsilon := decimal.New(1, -2)
	if format.Currency.Valid() {
		epsilon = format.Currency.MinorUnit()
	}
	chain := &balanceChain{epsilon: epsilon}

	var skipped int
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if len(out.Transactions) == 0 && format.OpeningBalancePattern != nil {
			if m := format.OpeningBalancePattern.FindStringSubmatch(line); len(m) > 1 {
				if opening, err := parseAmount(m[1], format); err == nil {
					out.OpeningBalance = &opening
					chain.seed(opening)
					continue
				}
			}
		}

		if format.CandidatePattern != nil && !format.CandidatePattern.MatchString(raw) {
			skipped++
			continue
		}

		fields, err := splitFields(line, format)
		if err != nil {
			out.Errors = append(out.Errors, models.NewLineError(lineNo, "%v", err))
			continue
		}
		if isHeader(fields, format) {
			skipped++
			continue
		}

		tx, warning, err := e.parseLine(lineNo, fields, format, chain)
		if err != nil {
			out.Errors = append(out.Errors, models.NewLineError(lineNo, "%v", err))
			continue
		}
		if warning != "" {
			out.Warnings = append(out.Warnings, models.NewLineError(lineNo, "%s", warning).String())
		}
		out.Transactions = append(out.Transactions, tx)
	}

	if closing, ok := chain.current(); ok {
		out.ClosingBalance = &closing
	}

	e.logger.Debug("Extraction finished",
		logging.F(logging.FieldBank, format.Slug),
		logging.F(logging.FieldCount, len(out.Transactions)),
		logging.F("errors", len(out.Errors)),
		logging.F("warnings", len(out.Warnings)),
		logging.F("skipped", skipped))
	return out
}

// parseLine builds one transaction. The balance chain advances only when
// the line is accepted.
func (e *Extractor) parseLine(lineNo int, fields []string, format formats.Format, chain *balanceChain) (models.ParsedTransaction, string, error) {
	cols, err := mapColumns(fields, format)
	if err != nil {
		return models.ParsedTransaction{}, "", err
	}

	rawDate := cols.get(formats.RoleDate)
	date, err := parseDate(rawDate, format.DateLayouts)
	if err != nil {
		return models.ParsedTransaction{}, "", err
	}

	stated, hasStated, err := cols.balance(format)
	if err != nil {
		return models.ParsedTransaction{}, "", err
	}

	debit, credit, err := cols.amounts(format, chain, stated, hasStated)
	if err != nil {
		return models.ParsedTransaction{}, "", err
	}

	tx := models.ParsedTransaction{
		Line:         lineNo,
		RawDate:      rawDate,
		Date:         date,
		ValueDate:    cols.get(formats.RoleValueDate),
		Description:  collapseSpaces(cols.get(formats.RoleDescription)),
		Reference:    cols.get(formats.RoleReference),
		DebitAmount:  debit,
		CreditAmount: credit,
	}

	warning := ""
	if hasStated {
		tx.Balance = stated
		warning = chain.check(tx.SignedAmount(), stated)
	} else {
		tx.Balance = chain.advance(tx.SignedAmount())
	}
	return tx, warning, nil
}

func parseDate(raw string, layouts []string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errorf("unparseable date %q", raw)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
