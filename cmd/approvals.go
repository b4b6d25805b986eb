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

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review exception approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		validationID, _ := cmd.Flags().GetString("validation")
		limit, _ := cmd.Flags().GetInt("limit")

		approvals, err := st.ListApprovals(ctx, store.ApprovalFilter{
			Status:       model.ApprovalStatus(status),
			ValidationID: validationID,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "approvals list")
		}
		if len(approvals) == 0 {
			fmt.Fprintln(os.Stderr, "No approval requests found.")
			return nil
		}

		formatApprovalsList(os.Stdout, approvals)
		return nil
	},
}

var approvalsDecideCmd = &cobra.Command{
	Use:   "decide <approval-id> <approved|rejected>",
	Short: "Record a decision on a pending approval request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := parseDecision(args[1])
		if err != nil {
			return err
		}
		by, _ := cmd.Flags().GetString("by")
		if by == "" {
			return eris.New("approvals decide: --by is required")
		}
		note, _ := cmd.Flags().GetString("note")

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.DecideApproval(ctx, args[0], status, by, note)
		if err != nil {
			return eris.Wrap(err, "approvals decide")
		}
		formatApprovalsList(os.Stdout, []model.ApprovalRequest{*a})
		return nil
	},
}

func parseDecision(s string) (model.ApprovalStatus, error) {
	switch model.ApprovalStatus(s) {
	case model.ApprovalApproved, model.ApprovalRejected:
		return model.ApprovalStatus(s), nil
	case "approve":
		return model.ApprovalApproved, nil
	case "reject":
		return model.ApprovalRejected, nil
	}
	return "", eris.Errorf("unknown decision %q (want approved or rejected)", s)
}

// formatApprovalsList writes a tabular list of approval requests to w.
func formatApprovalsList(out io.Writer, approvals []model.ApprovalRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVALIDATION\tINVOICE\tVENDOR\tTYPE\tAMOUNT\tSTATUS\tDECIDED_BY")
	_, _ = fmt.Fprintln(w, "--\t----------\t-------\t------\t----\t------\t------\t----------")
	for _, a := range approvals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t$%.2f\t%s\t%s\n",
			truncateID(a.ID),
			truncateID(a.ValidationID),
			a.InvoiceID,
			truncate(a.VendorName, 30),
			a.ExceptionType.Label(),
			a.Amount,
			a.Status,
			a.DecidedBy,
		)
	}
	_ = w.Flush()
}

func init() {
	approvalsListCmd.Flags().String("status", "pending", "filter by status (pending, approved, rejected); empty for all")
	approvalsListCmd.Flags().String("validation", "", "filter by validation run ID")
	approvalsListCmd.Flags().Int("limit", 50, "max number of requests to display")

	approvalsDecideCmd.Flags().String("by", "", "reviewer recording the decision")
	approvalsDecideCmd.Flags().String("note", "", "optional note")

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsDecideCmd)
	rootCmd.AddCommand(approvalsCmd)
}
