// Package parse handles the statement parsing command
package parse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fjacquet/statement-ingest/cmd/common"
	"fjacquet/statement-ingest/cmd/root"
	internalcommon "fjacquet/statement-ingest/internal/common"
	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/pipeline"
	"fjacquet/statement-ingest/internal/store"

	"github.com/spf13/cobra"
)

// AutoAccount derives the account ID from the input file name.
const AutoAccount = "auto"

var (
	bank       string
	currency   string
	account    string
	outputType string

	// Prompter answers password challenges; tests replace it.
	Prompter pipeline.Prompter = common.NewTerminalPrompter()
)

// Cmd represents the parse command
var Cmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract transactions from a statement",
	Long: `Extract transactions from a PDF, Excel, CSV or image statement.

The bank is detected from the document content unless --bank names one.
Password protected PDFs prompt for the password on the terminal.
With --account the closing balance is saved to the accounts file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: parseFunc,
}

func init() {
	Cmd.Flags().StringVar(&bank, "bank", "", "Force a bank format by slug (see the formats command)")
	Cmd.Flags().StringVar(&currency, "currency", "", "Currency for formats that do not declare one")
	Cmd.Flags().StringVar(&account, "account", "", "Account ID to update with the closing balance ('auto' derives it from the file name)")
	Cmd.Flags().StringVarP(&outputType, "type", "t", "", "Output type: json or csv (default: from the output extension, json on stdout)")
}

func parseFunc(cmd *cobra.Command, args []string) error {
	appContainer := root.GetContainer()
	if appContainer == nil {
		return errors.New("container not initialized")
	}
	logger := appContainer.GetLogger()

	input := root.SharedFlags.Input
	if input == "" && len(args) == 1 {
		input = args[0]
	}
	opts, err := common.BuildOptions(input, root.SharedFlags.Format, appContainer.GetConfig().OCR.Enabled, bank, currency)
	if err != nil {
		return err
	}
	mode, err := common.OutputMode(root.SharedFlags.Output, outputType)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Parsing statement",
		logging.F(logging.FieldFile, input),
		logging.F(logging.FieldFormat, opts.Format))

	result, err := common.ProcessFile(ctx, appContainer.GetService(), input, root.SharedFlags.Output, mode, opts,
		Prompter, appContainer.GetExporter(), cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	if !result.Success {
		msg := "no transactions extracted"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		return fmt.Errorf("parsing %s failed: %s", input, msg)
	}

	if account == "" {
		return nil
	}
	id := account
	if id == AutoAccount {
		id = internalcommon.AccountFromFileName(input).ID
	}
	if result.Metadata.ClosingBalance == nil {
		logger.Warn("Statement has no closing balance, account not updated", logging.F(logging.FieldAccount, id))
		return nil
	}
	updated, err := store.ApplyClosingBalance(ctx, appContainer.GetAccounts(), id, result, time.Now())
	if err != nil {
		return err
	}
	logger.Info("Account balance updated",
		logging.F(logging.FieldAccount, updated.ID),
		logging.F("balance", updated.Balance.String()))
	return nil
}
