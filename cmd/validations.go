package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/store"
)

var validationsCmd = &cobra.Command{
	Use:   "validations",
	Short: "Inspect validation run history",
	Long:  "Commands for listing, viewing, and summarizing validation runs.",
}

// -- validations list --

var validationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List validation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
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
			return eris.Wrap(err, "validations list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No validation runs found.")
			return nil
		}

		formatValidationsList(os.Stdout, runs)
		return nil
	},
}

// -- validations show --

var validationsShowCmd = &cobra.Command{
	Use:   "show <validation-id>",
	Short: "Show full details of a validation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetValidation(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "validations show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(os.Stdout, run)
		}
		formatComparison(os.Stdout, run.Result)
		return nil
	},
}

// -- validations stats --

var validationsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate validation statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
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
		filter.Limit = 10000 // high limit for stats

		runs, err := st.ListValidations(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "validations stats")
		}

		formatValidationStats(os.Stdout, computeValidationStats(runs))
		return nil
	},
}

func validationFilterFromFlags(cmd *cobra.Command) (store.ValidationFilter, error) {
	status, _ := cmd.Flags().GetString("status")
	vendor, _ := cmd.Flags().GetString("vendor")
	contract, _ := cmd.Flags().GetString("contract")
	latest, _ := cmd.Flags().GetBool("latest")
	limit, _ := cmd.Flags().GetInt("limit")

	switch model.ValidationStatus(status) {
	case "", model.ValidationApproved, model.ValidationUnderReview:
	default:
		return store.ValidationFilter{}, eris.Errorf("unknown validation status %q", status)
	}
	return store.ValidationFilter{
		Status:     model.ValidationStatus(status),
		VendorName: vendor,
		ContractID: contract,
		Latest:     latest,
		Limit:      limit,
	}, nil
}

// validationStats holds aggregate statistics computed from a set of runs.
type validationStats struct {
	Total       int
	Approved    int
	UnderReview int
	Exceptions  int
	Critical    int
	Warning     int
	Variance    float64
	Savings     float64
	AvgConf     float64
}

// computeValidationStats computes aggregate statistics from a list of runs.
func computeValidationStats(runs []model.ValidationRun) validationStats {
	var s validationStats
	s.Total = len(runs)

	var confSum float64
	for i := range runs {
		r := &runs[i]
		switch r.Status {
		case model.ValidationApproved:
			s.Approved++
		case model.ValidationUnderReview:
			s.UnderReview++
		}
		s.Exceptions += len(r.Result.Exceptions)
		sev := r.Result.CountBySeverity()
		s.Critical += sev[model.SeverityCritical]
		s.Warning += sev[model.SeverityWarning]
		s.Variance += r.Result.TotalVariance
		s.Savings += r.Result.PotentialSavings
		confSum += r.Result.Confidence
	}
	if s.Total > 0 {
		s.AvgConf = confSum / float64(s.Total)
	}
	return s
}

// formatValidationsList writes a tabular list of validation runs to w.
func formatValidationsList(out io.Writer, runs []model.ValidationRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINVOICE\tCONTRACT\tVENDOR\tSTATUS\tEXCEPTIONS\tVARIANCE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t--------\t------\t------\t----------\t--------\t-------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t$%.2f\t%s\n",
			truncateID(r.ID),
			r.InvoiceID,
			r.ContractID,
			truncate(r.VendorName, 30),
			r.Status,
			len(r.Result.Exceptions),
			r.Result.TotalVariance,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatValidationStats writes aggregate stats to w.
func formatValidationStats(out io.Writer, s validationStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Approved:\t%d\n", s.Approved)
	_, _ = fmt.Fprintf(w, "Under review:\t%d\n", s.UnderReview)
	_, _ = fmt.Fprintf(w, "Exceptions:\t%d\n", s.Exceptions)
	_, _ = fmt.Fprintf(w, "  Critical:\t%d\n", s.Critical)
	_, _ = fmt.Fprintf(w, "  Warning:\t%d\n", s.Warning)
	_, _ = fmt.Fprintf(w, "Total variance:\t$%.2f\n", s.Variance)
	_, _ = fmt.Fprintf(w, "Potential savings:\t$%.2f\n", s.Savings)
	if s.Total > 0 {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.0f%%\n", s.AvgConf*100)
	}
	_ = w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{validationsListCmd, validationsStatsCmd} {
		c.Flags().String("status", "", "filter by status (approved, under_review)")
		c.Flags().String("vendor", "", "filter by vendor name")
		c.Flags().String("contract", "", "filter by contract ID")
		c.Flags().Bool("latest", false, "keep only the newest run per invoice/contract pair")
	}
	validationsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	validationsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	validationsCmd.AddCommand(validationsListCmd)
	validationsCmd.AddCommand(validationsShowCmd)
	validationsCmd.AddCommand(validationsStatsCmd)
	rootCmd.AddCommand(validationsCmd)
}
