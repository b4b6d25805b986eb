package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/config"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run ingestion for documents in the dead letter queue that are due",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, config.ModeIngest)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.RetryFailed(ctx)
		if err != nil {
			return eris.Wrap(err, "retry")
		}

		remaining, err := env.Store.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "retry: count dlq")
		}
		fmt.Fprintf(os.Stdout, "Attempted: %d\nRecovered: %d\nFailed: %d\nRemaining in queue: %d\n",
			summary.Attempted, summary.Recovered, summary.Failed, remaining)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
