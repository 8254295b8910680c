package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/piv"
)

var attestSlot string

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Fetch a YubicoPIV attestation certificate for a slot",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		s, card, err := connectAndSelect(ctx)
		if err != nil {
			return err
		}
		defer card.Disconnect(false)

		slot, err := parseSlotID(attestSlot)
		if err != nil {
			return err
		}

		cert, meta, err := piv.Attest(ctx, s, slot)
		if err != nil {
			return err
		}
		output.PrintSuccess(fmt.Sprintf("attestation subject: %s", cert.Subject))
		output.PrintSuccess(fmt.Sprintf("algorithm=%s pin_required=%v touch_required=%v",
			meta.Algorithm, meta.PINRequired, meta.TouchRequired))
		return nil
	},
}

func init() {
	attestCmd.Flags().StringVar(&attestSlot, "slot", "9a", "key slot, hex")
	rootCmd.AddCommand(attestCmd)
}
