// Package batch handles batch processing of statement directories
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fjacquet/statement-ingest/cmd/common"
	"fjacquet/statement-ingest/cmd/root"
	"fjacquet/statement-ingest/internal/batch"
	internalcommon "fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/pipeline"
	"fjacquet/statement-ingest/internal/store"
	"fjacquet/statement-ingest/internal/validation"

	"github.com/spf13/cobra"
)

var updateAccounts bool

// Cmd represents the batch command
var Cmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch process statements from a directory",
	Long: `Parse every statement of an input directory and write one consolidated CSV per account.

Statements are grouped by the account number in their file names. Password
protected PDFs cannot be answered in batch mode and are skipped.

Example:
  statement-ingest batch -i statements/ -o out/ --update-accounts`,
	RunE: batchFunc,
}

func init() {
	Cmd.Flags().BoolVar(&updateAccounts, "update-accounts", false, "Save the latest closing balance of each account")
}

func batchFunc(cmd *cobra.Command, args []string) error {
	appContainer := root.GetContainer()
	if appContainer == nil {
		return errors.New("container not initialized")
	}
	logger := appContainer.GetLogger()

	inputDir := root.SharedFlags.Input
	outputDir := root.SharedFlags.Output
	if inputDir == "" || outputDir == "" {
		return errors.New("input and output directories must be specified")
	}
	if err := validation.IsValidDirectory(inputDir); err != nil {
		return fmt.Errorf("invalid input directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	count, err := Run(ctx, appContainer.GetService(), appContainer.GetExporter(), appContainer.GetAccounts(),
		inputDir, outputDir, appContainer.GetConfig().OCR.Enabled, updateAccounts, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Batch processing completed. %d consolidated files created.\n", count)
	return nil
}

// Run consolidates the statements of inputDir into outputDir and returns the
// number of files written. A nil accounts repository disables balance updates.
func Run(ctx context.Context, svc *pipeline.Service, exporter *internalcommon.Exporter, accounts store.Repository,
	inputDir, outputDir string, ocr, update bool, logger logging.Logger) (int, error) {
	aggregator := batch.NewAggregator(logger)

	files, err := aggregator.CollectFiles(inputDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		logger.Warn("No supported files found in input directory", logging.F(logging.FieldFile, inputDir))
		return 0, nil
	}
	logger.Info("Found files for processing", logging.F(logging.FieldCount, len(files)))

	parse := func(ctx context.Context, path string) (*models.DocumentParsingResult, error) {
		opts, err := common.BuildOptions(path, "", ocr, "", "")
		if err != nil {
			return nil, err
		}
		return svc.ParseDocument(ctx, path, opts)
	}

	consolidated := 0
	for _, group := range aggregator.GroupFilesByAccount(files) {
		result, err := aggregator.Aggregate(ctx, group, parse)
		if err != nil {
			return consolidated, err
		}
		if len(result.Transactions) == 0 {
			logger.Warn("No transactions found for account group", logging.F(logging.FieldAccount, group.AccountID))
			continue
		}

		dateRange := group.DateRange
		if dateRange.Start.IsZero() || dateRange.End.IsZero() {
			dateRange = batch.DateRangeOf(result.Transactions)
		}
		outputPath := filepath.Join(outputDir, batch.OutputFilename(group.AccountID, dateRange))
		header := batch.SourceFileHeader(result.SourceFiles, time.Now())
		if err := writeConsolidatedCSV(outputPath, header, result, exporter, logger); err != nil {
			logger.WithError(err).Error("Failed to write consolidated CSV",
				logging.F(logging.FieldAccount, group.AccountID),
				logging.F(logging.FieldOutputFile, outputPath))
			continue
		}
		consolidated++

		if update && accounts != nil && result.Latest != nil && result.Latest.Metadata.ClosingBalance != nil {
			account, err := store.ApplyClosingBalance(ctx, accounts, group.AccountID, result.Latest, time.Now())
			if err != nil {
				logger.WithError(err).Warn("Failed to update account", logging.F(logging.FieldAccount, group.AccountID))
				continue
			}
			logger.Info("Account balance updated",
				logging.F(logging.FieldAccount, account.ID),
				logging.F("balance", account.Balance.String()))
		}
	}
	return consolidated, nil
}

// writeConsolidatedCSV writes the source file header followed by the transactions.
func writeConsolidatedCSV(outputPath, header string, result *batch.AccountBatch, exporter *internalcommon.Exporter, logger logging.Logger) error {
	file, err := os.Create(outputPath) // #nosec G304 -- CLI tool writes to user-provided paths
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close output file")
		}
	}()

	if header != "" {
		if _, err := file.WriteString(header); err != nil {
			return fmt.Errorf("failed to write header comment: %w", err)
		}
	}
	if err := exporter.Write(file, result.Transactions, result.Currency); err != nil {
		return err
	}
	logger.Info("Created consolidated file",
		logging.F(logging.FieldAccount, result.AccountID),
		logging.F(logging.FieldCount, len(result.Transactions)),
		logging.F(logging.FieldOutputFile, outputPath))
	return nil
}
