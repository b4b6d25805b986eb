package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write validation runs to a results workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := validationFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		runs, err := st.ListValidations(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		if err := export.WriteWorkbook(args[0], runs); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d validation runs to %s\n", len(runs), args[0])
		return nil
	},
}

func init() {
	exportCmd.Flags().String("status", "", "filter by status (approved, under_review)")
	exportCmd.Flags().String("vendor", "", "filter by vendor name")
	exportCmd.Flags().String("contract", "", "filter by contract ID")
	exportCmd.Flags().Bool("latest", true, "keep only the newest run per invoice/contract pair")
	exportCmd.Flags().Int("limit", 10000, "max number of runs to export")
	rootCmd.AddCommand(exportCmd)
}
