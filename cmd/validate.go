package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-validator/internal/config"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <invoice-id> <contract-id>",
	Short: "Validate a stored invoice against a stored contract",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initPipeline(ctx, config.ModeOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Validate(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		if validateJSON {
			return writeJSON(os.Stdout, run)
		}
		formatComparison(os.Stdout, run.Result)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the validation run as JSON")
	rootCmd.AddCommand(validateCmd)
}
