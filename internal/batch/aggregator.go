// Package batch provides batch processing and aggregation of statement files
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
)

// DateRange represents a date range with start and end dates
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String returns the date range in the format "YYYY-MM-DD_YYYY-MM-DD"
func (dr DateRange) String() string {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s_%s", dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
}

// Merge combines this date range with another, returning the overall range
func (dr DateRange) Merge(other DateRange) DateRange {
	start := dr.Start
	end := dr.End

	if dr.Start.IsZero() {
		start = other.Start
	} else if !other.Start.IsZero() && other.Start.Before(start) {
		start = other.Start
	}

	if dr.End.IsZero() {
		end = other.End
	} else if !other.End.IsZero() && other.End.After(end) {
		end = other.End
	}

	return DateRange{Start: start, End: end}
}

// FileGroup represents a group of statements that belong to the same account
type FileGroup struct {
	AccountID string
	Files     []string
	// DateRange is taken from file names; zero when they carry no dates.
	DateRange DateRange
}

// ParseFunc parses one statement file.
type ParseFunc func(ctx context.Context, path string) (*models.DocumentParsingResult, error)

// AccountBatch is the consolidated outcome of one account group.
type AccountBatch struct {
	AccountID    string
	Currency     models.Currency
	Transactions []models.ParsedTransaction
	SourceFiles  []string
	// Skipped maps files that produced nothing to the reason.
	Skipped    map[string]string
	Duplicates int
	// Latest is the parsed statement whose last transaction is the most
	// recent; its closing balance is the account balance.
	Latest *models.DocumentParsingResult
}

// Aggregator handles the aggregation of multiple statements by account
type Aggregator struct {
	logger logging.Logger
}

// NewAggregator creates a new Aggregator instance
func NewAggregator(logger logging.Logger) *Aggregator {
	return &Aggregator{logger: logging.OrDefault(logger)}
}

// CollectFiles lists the statements of dir whose extension maps to a
// document format, sorted by name. Hidden files and subdirectories are ignored.
func (a *Aggregator) CollectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, err := models.FormatFromFileName(name); err != nil {
			a.logger.Debug("Skipping unsupported file", logging.F(logging.FieldFile, name))
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// GroupFilesByAccount groups files by the account identifier in their names.
func (a *Aggregator) GroupFilesByAccount(files []string) []FileGroup {
	accountGroups := make(map[string]*FileGroup)

	for _, file := range files {
		accountID := common.AccountFromFileName(file)

		a.logger.Debug("File mapped to account",
			logging.F(logging.FieldFile, filepath.Base(file)),
			logging.F(logging.FieldAccount, accountID.ID),
			logging.F("source", accountID.Source))

		group, exists := accountGroups[accountID.ID]
		if !exists {
			group = &FileGroup{AccountID: accountID.ID}
			accountGroups[accountID.ID] = group
		}
		group.Files = append(group.Files, file)
		group.DateRange = group.DateRange.Merge(DateRangeFromFileName(file))
	}

	groups := make([]FileGroup, 0, len(accountGroups))
	for _, group := range accountGroups {
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].AccountID < groups[j].AccountID
	})

	a.logger.Info("Grouped files into account groups",
		logging.F(logging.FieldCount, len(files)),
		logging.F("account_groups", len(groups)))
	return groups
}

var isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// DateRangeFromFileName reads a statement period from names such as
// "Acct_50100012345678_2025-10-01_2025-10-31.pdf". A single date yields a
// one-day range; no date yields the zero range.
func DateRangeFromFileName(filename string) DateRange {
	var dr DateRange
	for _, m := range isoDatePattern.FindAllString(filepath.Base(filename), -1) {
		d, err := time.Parse(time.DateOnly, m)
		if err != nil {
			continue
		}
		dr = dr.Merge(DateRange{Start: d, End: d})
	}
	return dr
}

// Aggregate parses every file of group and consolidates the transactions in
// chronological order. Files that fail to parse, are password protected or
// are in another currency than the first parsed statement are skipped.
// Only context errors abort the group.
func (a *Aggregator) Aggregate(ctx context.Context, group FileGroup, parse ParseFunc) (*AccountBatch, error) {
	batch := &AccountBatch{AccountID: group.AccountID, Skipped: map[string]string{}}
	var latestDate time.Time

	a.logger.Info("Aggregating transactions for account",
		logging.F(logging.FieldAccount, group.AccountID),
		logging.F(logging.FieldCount, len(group.Files)))

	for _, file := range group.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := filepath.Base(file)

		result, err := parse(ctx, file)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.logger.WithError(err).Warn("Failed to parse file", logging.F(logging.FieldFile, name))
			batch.Skipped[name] = err.Error()
			continue
		}
		if !result.Success {
			reason := "no transactions found"
			if len(result.Errors) > 0 {
				reason = result.Errors[0].Message
			}
			a.logger.Warn("Statement produced no transactions",
				logging.F(logging.FieldFile, name),
				logging.F(logging.FieldError, reason))
			batch.Skipped[name] = reason
			continue
		}
		if batch.Currency == "" {
			batch.Currency = result.Metadata.Currency
		} else if result.Metadata.Currency != batch.Currency {
			reason := fmt.Sprintf("currency %s differs from %s", result.Metadata.Currency, batch.Currency)
			a.logger.Warn("Skipping statement in another currency", logging.F(logging.FieldFile, name), logging.F("reason", reason))
			batch.Skipped[name] = reason
			continue
		}

		a.logger.Debug("Loaded transactions from file",
			logging.F(logging.FieldCount, len(result.Transactions)),
			logging.F(logging.FieldFile, name))

		batch.Transactions = append(batch.Transactions, result.Transactions...)
		batch.SourceFiles = append(batch.SourceFiles, name)
		if last := DateRangeOf(result.Transactions).End; batch.Latest == nil || !last.Before(latestDate) {
			batch.Latest = result
			latestDate = last
		}
	}

	SortChronologically(batch.Transactions)
	batch.Duplicates = a.detectAndLogDuplicates(batch.Transactions, group.AccountID)

	a.logger.Info("Aggregated transactions for account",
		logging.F(logging.FieldCount, len(batch.Transactions)),
		logging.F(logging.FieldAccount, group.AccountID),
		logging.F("source_files", strings.Join(batch.SourceFiles, ", ")))
	return batch, nil
}

// SortChronologically orders transactions by date. Same-day transactions
// keep their statement order so running balances stay readable.
func SortChronologically(transactions []models.ParsedTransaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.Before(transactions[j].Date)
	})
}

// detectAndLogDuplicates counts transactions that look like an earlier one.
// Overlapping statements are common; duplicates are reported, never removed.
func (a *Aggregator) detectAndLogDuplicates(transactions []models.ParsedTransaction, accountID string) int {
	duplicateCount := 0
	for i := 0; i < len(transactions)-1; i++ {
		for j := i + 1; j < len(transactions) && transactions[j].Date.Equal(transactions[i].Date); j++ {
			if !arePotentialDuplicates(transactions[i], transactions[j]) {
				continue
			}
			duplicateCount++
			a.logger.Warn("Potential duplicate transaction",
				logging.F(logging.FieldAccount, accountID),
				logging.F("date", transactions[i].Date.Format(time.DateOnly)),
				logging.F("amount", transactions[i].SignedAmount().String()),
				logging.F("description", transactions[i].Description))
			break
		}
	}

	if duplicateCount > 0 {
		a.logger.Warn("Found potential duplicate transactions",
			logging.F(logging.FieldCount, duplicateCount),
			logging.F(logging.FieldAccount, accountID))
	}
	return duplicateCount
}

func arePotentialDuplicates(tx1, tx2 models.ParsedTransaction) bool {
	if !tx1.Date.Equal(tx2.Date) {
		return false
	}
	if !tx1.SignedAmount().Equal(tx2.SignedAmount()) {
		return false
	}
	d1 := strings.ToLower(strings.TrimSpace(tx1.Description))
	d2 := strings.ToLower(strings.TrimSpace(tx2.Description))
	return d1 == d2
}

// OutputFilename creates the name of the consolidated CSV:
// {account_id}_{start_date}_{end_date}.csv, or {account_id}.csv without a range.
func OutputFilename(accountID string, dateRange DateRange) string {
	sanitized := common.SanitizeAccountID(accountID)
	if s := dateRange.String(); s != "" {
		return fmt.Sprintf("%s_%s.csv", sanitized, s)
	}
	return sanitized + ".csv"
}

// SourceFileHeader creates a comment block listing the consolidated files.
func SourceFileHeader(sourceFiles []string, generated time.Time) string {
	if len(sourceFiles) == 0 {
		return ""
	}

	var header strings.Builder
	header.WriteString("# Consolidated from source files:\n")
	for _, file := range sourceFiles {
		fmt.Fprintf(&header, "# - %s\n", file)
	}
	header.WriteString("# Generated on: ")
	header.WriteString(generated.Format(time.DateTime))
	header.WriteString("\n#\n")
	return header.String()
}

// DateRangeOf returns the range spanned by the transaction dates.
func DateRangeOf(transactions []models.ParsedTransaction) DateRange {
	if len(transactions) == 0 {
		return DateRange{}
	}
	start := transactions[0].Date
	end := transactions[0].Date
	for _, tx := range transactions {
		if tx.Date.Before(start) {
			start = tx.Date
		}
		if tx.Date.After(end) {
			end = tx.Date
		}
	}
	return DateRange{Start: start, End: end}
}
