package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/report"
	"github.com/sells-group/contract-validator/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Analyze the latest validation runs across vendors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		vendor, _ := cmd.Flags().GetString("vendor")
		contract, _ := cmd.Flags().GetString("contract")
		runs, err := st.ListValidations(ctx, store.ValidationFilter{
			VendorName: vendor,
			ContractID: contract,
			Latest:     true,
			Limit:      10000,
		})
		if err != nil {
			return eris.Wrap(err, "report")
		}

		rep := report.Analyze(runs)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, rep)
		}
		formatReport(os.Stdout, rep)
		return nil
	},
}

// formatReport writes the analysis report to w.
func formatReport(out io.Writer, rep report.AnalysisReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Invoices processed:\t%d\n", rep.Summary.InvoicesProcessed)
	_, _ = fmt.Fprintf(w, "Total exceptions:\t%d\n", rep.Summary.TotalExceptions)
	_, _ = fmt.Fprintf(w, "Potential savings:\t$%.2f\n", rep.Summary.TotalSavings)
	_, _ = fmt.Fprintf(w, "Avg confidence:\t%.0f%%\n", rep.Summary.AverageConfidence*100)
	_ = w.Flush()

	if len(rep.TopVendorIssues) > 0 {
		_, _ = fmt.Fprintln(out, "\nTop vendor issues:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "VENDOR\tINVOICES\tEXCEPTIONS\tOVERCHARGES\tVARIANCE")
		for _, v := range rep.TopVendorIssues {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.2f\n",
				truncate(v.VendorName, 30), v.Invoices, v.ExceptionCount, v.Overcharges, v.TotalVariance)
		}
		_ = w.Flush()
	}

	if len(rep.Breakdown) > 0 {
		_, _ = fmt.Fprintln(out, "\nBy exception type:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TYPE\tCATEGORY\tCOUNT\tVARIANCE")
		for _, b := range rep.Breakdown {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t$%.2f\n", b.Type.Label(), b.Category, b.Count, b.Variance)
		}
		_ = w.Flush()
	}

	if len(rep.Recommendations) > 0 {
		_, _ = fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range rep.Recommendations {
			_, _ = fmt.Fprintf(out, "  - %s\n", r)
		}
	}
}

func init() {
	reportCmd.Flags().String("vendor", "", "limit to one vendor")
	reportCmd.Flags().String("contract", "", "limit to one contract")
	reportCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}
