package cmd

import (
	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/token"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Enumerate readers and PIV tokens",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		tokens, err := token.Enumerate(ctx, newLogger())
		if err != nil {
			return err
		}
		output.PrintTokenSummary(tokens)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
