package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
)

var (
	batchContractID  string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Revalidate every invoice linked to a contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchContractID == "" {
			return eris.New("batch: --contract is required")
		}

		ctx := cmd.Context()
		env, err := initPipeline(ctx, config.ModeOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		summary, err := env.Pipeline.RevalidateContract(ctx, batchContractID, concurrency)
		if err != nil {
			return eris.Wrap(err, "batch")
		}

		zap.L().Info("batch complete",
			zap.String("contract_id", batchContractID),
			zap.Int("total", summary.Total),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		if len(summary.Runs) > 0 {
			formatValidationsList(os.Stdout, summary.Runs)
		}
		fmt.Fprintf(os.Stderr, "%d invoices, %d validated, %d failed\n", summary.Total, summary.Succeeded, summary.Failed)

		if summary.Failed > 0 {
			return eris.Errorf("batch: %d invoices failed to validate", summary.Failed)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchContractID, "contract", "", "contract ID whose invoices are revalidated")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel validations (default from config)")
	rootCmd.AddCommand(batchCmd)
}
