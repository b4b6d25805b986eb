package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing health and any alerts the thresholds would raise",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return err
		}
		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, struct {
				Metrics *monitoring.MetricsSnapshot `json:"metrics"`
				Alerts  []monitoring.Alert          `json:"alerts"`
			}{snap, alerts})
		}
		formatStatus(os.Stdout, snap, alerts)
		return nil
	},
}

// formatStatus writes a health snapshot and its alerts to w.
func formatStatus(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Documents:\t%d (%d completed, %d failed, %d processing)\n",
		snap.DocumentsTotal, snap.DocumentsCompleted, snap.DocumentsFailed, snap.DocumentsProcessing)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.DocumentFailRate*100)

	cats := make([]string, 0, len(snap.FailuresByCategory))
	for c := range snap.FailuresByCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", c, snap.FailuresByCategory[model.ErrorCategory(c)])
	}

	_, _ = fmt.Fprintf(w, "Validations:\t%d (%d flagged)\n", snap.ValidationsTotal, snap.ValidationsFlagged)
	_, _ = fmt.Fprintf(w, "Critical exceptions:\t%d\n", snap.CriticalExceptions)
	_, _ = fmt.Fprintf(w, "Total variance:\t$%.2f\n", snap.TotalVariance)
	_, _ = fmt.Fprintf(w, "Pending approvals:\t%d\n", snap.PendingApprovals)
	_, _ = fmt.Fprintf(w, "Dead letter queue:\t%d\n", snap.DLQDepth)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintln(out, "\nAlerts:")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s\n", a.Severity, a.Message)
	}
}

func init() {
	statusCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	statusCmd.Flags().Bool("json", false, "print metrics and alerts as JSON")
	rootCmd.AddCommand(statusCmd)
}
