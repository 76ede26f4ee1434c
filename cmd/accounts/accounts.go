// Package accounts handles the command listing tracked account balances
package accounts

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"fjacquet/statement-ingest/cmd/root"

	"github.com/spf13/cobra"
)

// Cmd represents the accounts command
var Cmd = &cobra.Command{
	Use:   "accounts",
	Short: "List account balances",
	Long:  `List the balances saved by "parse --account", from the configured accounts file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appContainer := root.GetContainer()
		if appContainer == nil {
			return errors.New("container not initialized")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		accounts, err := appContainer.GetAccounts().List(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No accounts.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBANK\tBALANCE\tUPDATED")
		for _, a := range accounts {
			updated := "-"
			if !a.UpdatedAt.IsZero() {
				updated = a.UpdatedAt.Format(time.DateOnly)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.BankName, a.Balance.String(), updated)
		}
		return w.Flush()
	},
}
