package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/contract-validator/internal/model"
)

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatComparison writes a human summary of a comparison result to w.
func formatComparison(out io.Writer, r model.ComparisonResult) {
	status := "MATCH"
	if !r.OverallMatch {
		status = "EXCEPTIONS FOUND"
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Invoice:\t%s\n", r.InvoiceID)
	_, _ = fmt.Fprintf(w, "Contract:\t%s\n", r.ContractID)
	_, _ = fmt.Fprintf(w, "Result:\t%s\n", status)
	_, _ = fmt.Fprintf(w, "Compliant lines:\t%d/%d\n", r.CompliantLineItems, r.TotalLineItems)
	_, _ = fmt.Fprintf(w, "Total variance:\t$%.2f\n", r.TotalVariance)
	_, _ = fmt.Fprintf(w, "Potential savings:\t$%.2f\n", r.PotentialSavings)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.0f%%\n", r.Confidence*100)
	_ = w.Flush()

	if len(r.Exceptions) == 0 && len(r.Notices) == 0 {
		return
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LINE\tTYPE\tSEVERITY\tITEM\tVARIANCE\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t----\t--------\t-----------")
	for _, ex := range r.Exceptions {
		formatExceptionRow(w, ex)
	}
	for _, ex := range r.Notices {
		formatExceptionRow(w, ex)
	}
	_ = w.Flush()
}

func formatExceptionRow(w io.Writer, ex model.ValidationException) {
	line := "-"
	if ex.LineIndex >= 0 {
		line = fmt.Sprintf("%d", ex.LineIndex+1)
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%.2f\t%s\n",
		line,
		ex.Type.Label(),
		ex.Severity,
		truncate(ex.LineItem.Description, 30),
		ex.Variance,
		truncate(ex.Description, 60),
	)
}
