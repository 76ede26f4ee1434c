// Package detect handles the command reporting which bank issued a statement
package detect

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"fjacquet/statement-ingest/cmd/common"
	"fjacquet/statement-ingest/cmd/root"
	"fjacquet/statement-ingest/internal/pipeline"

	"github.com/spf13/cobra"
)

// Prompter answers password challenges; tests replace it.
var Prompter pipeline.Prompter = common.NewTerminalPrompter()

// Cmd represents the detect command
var Cmd = &cobra.Command{
	Use:   "detect [file]",
	Short: "Detect the bank of a statement",
	Long:  `Run the pipeline on a statement and print the detected bank and a summary instead of the transactions.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  detectFunc,
}

func detectFunc(cmd *cobra.Command, args []string) error {
	appContainer := root.GetContainer()
	if appContainer == nil {
		return errors.New("container not initialized")
	}
	input := root.SharedFlags.Input
	if input == "" && len(args) == 1 {
		input = args[0]
	}
	if input == "" {
		return fmt.Errorf("input file is required (use --input)")
	}
	opts, err := common.BuildOptions(input, root.SharedFlags.Format, appContainer.GetConfig().OCR.Enabled, "", "")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	session, err := appContainer.GetService().NewSession(input, opts, common.ProgressLogger(appContainer.GetLogger()))
	if err != nil {
		return err
	}
	result, err := session.Run(ctx, Prompter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	bank := result.Metadata.BankDetected
	if bank == "" {
		bank = "not recognized"
	}
	fmt.Fprintf(w, "File:\t%s\n", result.Metadata.FileName)
	fmt.Fprintf(w, "Bank:\t%s\n", bank)
	if result.Metadata.Currency != "" {
		fmt.Fprintf(w, "Currency:\t%s\n", result.Metadata.Currency)
	}
	fmt.Fprintf(w, "Transactions:\t%d\n", result.Metadata.TotalTransactions)
	if result.Metadata.ClosingBalance != nil {
		fmt.Fprintf(w, "Closing balance:\t%s\n", result.Metadata.ClosingBalance.String())
	}
	fmt.Fprintf(w, "Errors:\t%d\n", len(result.Errors))
	fmt.Fprintf(w, "Warnings:\t%d\n", len(result.Warnings))
	return w.Flush()
}
