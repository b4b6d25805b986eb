package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/extract"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/validation"
)

var compareJSON bool

var compareCmd = &cobra.Command{
	Use:   "compare <invoice.json> <contract.json>",
	Short: "Compare an invoice with a contract from JSON files, without storing anything",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := compareFiles(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if compareJSON {
			return writeJSON(os.Stdout, result)
		}
		formatComparison(os.Stdout, result)
		return nil
	},
}

// compareFiles decodes both records with the JSON extractor, so the same
// shape checks apply as for ingested documents, and compares them under the
// configured policy.
func compareFiles(ctx context.Context, invoicePath, contractPath string) (model.ComparisonResult, error) {
	var x extract.JSONExtractor

	invText, err := os.ReadFile(invoicePath)
	if err != nil {
		return model.ComparisonResult{}, eris.Wrap(err, "compare: read invoice")
	}
	inv, err := x.ExtractInvoice(ctx, string(invText))
	if err != nil {
		return model.ComparisonResult{}, eris.Wrap(err, "compare: invoice")
	}

	contractText, err := os.ReadFile(contractPath)
	if err != nil {
		return model.ComparisonResult{}, eris.Wrap(err, "compare: read contract")
	}
	contract, err := x.ExtractContract(ctx, string(contractText))
	if err != nil {
		return model.ComparisonResult{}, eris.Wrap(err, "compare: contract")
	}

	policies, err := cfg.Validation.Policies()
	if err != nil {
		return model.ComparisonResult{}, err
	}
	matcher, err := cfg.Validation.Matcher()
	if err != nil {
		return model.ComparisonResult{}, err
	}

	c := validation.NewComparator(
		validation.WithPolicy(policies.For(inv.VendorName)),
		validation.WithMatchStrategy(matcher),
	)
	return c.Compare(inv, contract, nil, nil), nil
}

func init() {
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "print the comparison result as JSON")
	rootCmd.AddCommand(compareCmd)
}
