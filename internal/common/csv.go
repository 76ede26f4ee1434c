// Package common holds the export helpers shared by the CLI and the HTTP API.
package common

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"

	"github.com/gocarina/gocsv"
)

// TransactionRow is the flat CSV form of a ParsedTransaction. Amounts use
// two decimals; Amount is signed (debits negative).
type TransactionRow struct {
	Line        int    `csv:"Line"`
	Date        string `csv:"Date"`
	ValueDate   string `csv:"ValueDate"`
	Description string `csv:"Description"`
	Reference   string `csv:"Reference"`
	Debit       string `csv:"Debit"`
	Credit      string `csv:"Credit"`
	Amount      string `csv:"Amount"`
	Balance     string `csv:"Balance"`
	Currency    string `csv:"Currency"`
}

// ToRows converts transactions for export.
func ToRows(transactions []models.ParsedTransaction, currency models.Currency) []TransactionRow {
	rows := make([]TransactionRow, 0, len(transactions))
	for _, tx := range transactions {
		row := TransactionRow{
			Line:        tx.Line,
			Date:        tx.Date.Format("2006-01-02"),
			ValueDate:   tx.ValueDate,
			Description: tx.Description,
			Reference:   tx.Reference,
			Amount:      tx.SignedAmount().StringFixed(2),
			Balance:     tx.Balance.StringFixed(2),
			Currency:    string(currency),
		}
		if tx.DebitAmount != nil {
			row.Debit = tx.DebitAmount.StringFixed(2)
		}
		if tx.CreditAmount != nil {
			row.Credit = tx.CreditAmount.StringFixed(2)
		}
		rows = append(rows, row)
	}
	return rows
}

// Exporter writes transactions as delimited text.
type Exporter struct {
	delimiter rune
	logger    logging.Logger
}

// NewExporter returns an Exporter. A zero delimiter means ','.
func NewExporter(delimiter rune, logger logging.Logger) *Exporter {
	if delimiter == 0 {
		delimiter = ','
	}
	return &Exporter{delimiter: delimiter, logger: logging.OrDefault(logger)}
}

// Write encodes transactions to w with a header row.
func (e *Exporter) Write(w io.Writer, transactions []models.ParsedTransaction, currency models.Currency) error {
	if transactions == nil {
		return fmt.Errorf("cannot write nil transactions to CSV")
	}
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = e.delimiter

	rows := ToRows(transactions, currency)
	if len(rows) == 0 {
		// gocsv writes no header for an empty slice.
		if err := csvWriter.Write(header()); err != nil {
			return fmt.Errorf("error writing CSV data: %w", err)
		}
		csvWriter.Flush()
		return csvWriter.Error()
	}
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		e.logger.WithError(err).Error("Failed to marshal transactions to CSV")
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

// WriteFile writes transactions to path, creating parent directories.
func (e *Exporter) WriteFile(path string, transactions []models.ParsedTransaction, currency models.Currency) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			e.logger.WithError(err).Warn("Failed to close file")
		}
	}()

	if err := e.Write(file, transactions, currency); err != nil {
		return err
	}
	e.logger.Info("Wrote transactions to CSV file",
		logging.F(logging.FieldOutputFile, path),
		logging.F(logging.FieldCount, len(transactions)))
	return nil
}

// ReadCSVFile reads delimited rows into structs tagged for gocsv.
func ReadCSVFile[TCSVRow any](path string, delimiter rune) ([]TCSVRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	var rows []TCSVRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing CSV file: %w", err)
	}
	return rows, nil
}

func header() []string {
	return []string{"Line", "Date", "ValueDate", "Description", "Reference", "Debit", "Credit", "Amount", "Balance", "Currency"}
}
