package cmd

import (
	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/token"
)

var infoGUID string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show a token's fixed objects and populated slots",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, infoGUID)
		if err != nil {
			return err
		}

		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		if err := token.ReadAllCerts(ctx, t); err != nil {
			output.PrintWarning(err.Error())
		}

		output.PrintToken(t)

		slots := make(map[byte]*token.Slot)
		for _, id := range []byte{0x9A, 0x9C, 0x9D, 0x9E} {
			if s := t.GetSlot(id); s != nil {
				slots[id] = s
			}
		}
		output.PrintSlots(slots)
		return nil
	},
}

func init() {
	infoCmd.Flags().StringVar(&infoGUID, "guid", "", "hex GUID prefix to select a specific token")
	rootCmd.AddCommand(infoCmd)
}
