package cmd

import (
	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/token"
)

var resetGUID string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory-reset a YubicoPIV card (requires every retry counter exhausted)",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, resetGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		if err := token.ResetYubico(ctx, t); err != nil {
			return err
		}
		output.PrintSuccess("card reset to factory defaults")
		return nil
	},
}

var (
	setAdminKeyHex   string
	setAdminAlg      string
	setAdminTouchPol string
	setAdminGUID     string
)

var setAdminCmd = &cobra.Command{
	Use:   "set-admin",
	Short: "Replace the 9B admin key (requires a prior admin-auth in the same transaction)",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, setAdminGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		key, err := parseHexGUID(setAdminKeyHex)
		if err != nil {
			return err
		}
		alg := algByAdminName(setAdminAlg)
		touchpol, err := touchPolicyByName(setAdminTouchPol)
		if err != nil {
			return err
		}
		if err := token.SetAdminKey(ctx, t, alg, key, touchpol); err != nil {
			return err
		}
		output.PrintSuccess("admin key updated")
		return nil
	},
}

var (
	setRetriesPIN  string
	setRetriesPUK  string
	setRetriesGUID string
)

var setRetriesCmd = &cobra.Command{
	Use:   "set-retries",
	Short: "Reprogram the PIN/PUK retry counters (also resets the PIN and PUK themselves to their factory defaults)",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, setRetriesGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		pinTries, err := parseSlotID(setRetriesPIN)
		if err != nil {
			return err
		}
		pukTries, err := parseSlotID(setRetriesPUK)
		if err != nil {
			return err
		}
		if err := token.SetPINRetries(ctx, t, pinTries, pukTries); err != nil {
			return err
		}
		output.PrintSuccess("PIN/PUK retry counters updated")
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetGUID, "guid", "", "hex GUID prefix to select a specific token")

	setAdminCmd.Flags().StringVar(&setAdminKeyHex, "key", "", "new admin key, hex-encoded")
	setAdminCmd.Flags().StringVar(&setAdminAlg, "alg", "3des", "3des|aes128|aes192|aes256")
	setAdminCmd.Flags().StringVar(&setAdminTouchPol, "touch-policy", "default", "default|never|always")
	setAdminCmd.Flags().StringVar(&setAdminGUID, "guid", "", "hex GUID prefix to select a specific token")

	setRetriesCmd.Flags().StringVar(&setRetriesPIN, "pin-retries", "", "new PIN retry counter, e.g. 0a for 10")
	setRetriesCmd.Flags().StringVar(&setRetriesPUK, "puk-retries", "", "new PUK retry counter, e.g. 0a for 10")
	setRetriesCmd.Flags().StringVar(&setRetriesGUID, "guid", "", "hex GUID prefix to select a specific token")

	rootCmd.AddCommand(resetCmd, setAdminCmd, setRetriesCmd)
}
