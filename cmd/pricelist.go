package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/pricelist"
)

var pricelistCmd = &cobra.Command{
	Use:   "pricelist",
	Short: "Manage contract rate sheets",
}

var pricelistImportCmd = &cobra.Command{
	Use:   "import <sheet.xlsx>",
	Short: "Import a contract rate sheet as a stored contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := pricelistOptionsFromFlags(cmd)
		if err != nil {
			return err
		}

		data, err := pricelist.Load(args[0], opts)
		if err != nil {
			return eris.Wrap(err, "pricelist import")
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveContract(ctx, &model.StoredContract{Data: *data}); err != nil {
			return eris.Wrap(err, "pricelist import: save contract")
		}
		fmt.Fprintf(os.Stdout, "Imported contract %s (%s): %d billable items\n",
			data.ContractID, data.VendorName, len(data.BillableItems))
		return nil
	},
}

func pricelistOptionsFromFlags(cmd *cobra.Command) (pricelist.Options, error) {
	contractID, _ := cmd.Flags().GetString("contract-id")
	vendor, _ := cmd.Flags().GetString("vendor")
	effective, _ := cmd.Flags().GetString("effective")
	expires, _ := cmd.Flags().GetString("expires")
	terms, _ := cmd.Flags().GetString("payment-terms")
	sheet, _ := cmd.Flags().GetString("sheet")
	skip, _ := cmd.Flags().GetInt("skip-rows")

	opts := pricelist.Options{
		ContractID:   contractID,
		VendorName:   vendor,
		PaymentTerms: terms,
		SheetName:    sheet,
		SkipRows:     skip,
	}
	var err error
	if effective != "" {
		if opts.EffectiveDate, err = model.ParseDate(effective); err != nil {
			return opts, eris.Wrap(err, "--effective")
		}
	}
	if expires != "" {
		if opts.ExpirationDate, err = model.ParseDate(expires); err != nil {
			return opts, eris.Wrap(err, "--expires")
		}
	}
	return opts, nil
}

func init() {
	f := pricelistImportCmd.Flags()
	f.String("contract-id", "", "contract ID for the imported rate sheet (required)")
	f.String("vendor", "", "vendor name")
	f.String("effective", "", "effective date (YYYY-MM-DD)")
	f.String("expires", "", "expiration date (YYYY-MM-DD)")
	f.String("payment-terms", "", "payment terms")
	f.String("sheet", "", "sheet name (default first sheet)")
	f.Int("skip-rows", 0, "rows to skip before the header")
	_ = pricelistImportCmd.MarkFlagRequired("contract-id")

	pricelistCmd.AddCommand(pricelistImportCmd)
	rootCmd.AddCommand(pricelistCmd)
}
