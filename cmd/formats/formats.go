// Package formats handles the command listing supported bank formats
package formats

import (
	"fmt"
	"text/tabwriter"

	"fjacquet/statement-ingest/internal/formats"

	"github.com/spf13/cobra"
)

// Cmd represents the formats command
var Cmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported bank formats",
	Long:  `List the bank formats in detection order. Slugs are accepted by --bank.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tBANK\tCURRENCY\tLAYOUT")
		for _, f := range formats.Registry() {
			cur := string(f.Currency)
			if cur == "" {
				cur = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Slug, f.BankName, cur, f.Layout)
		}
		return w.Flush()
	},
}
