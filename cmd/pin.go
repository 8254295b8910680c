package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/piv"
	"pivcard/token"
)

var (
	pinValue    string
	pinNewValue string
	pukValue    string
	pinGUID     string
)

var pinVerifyCmd = &cobra.Command{
	Use:   "pin-verify",
	Short: "Verify the application PIN",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, pinGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		var retries int
		err = token.VerifyPIN(ctx, t, piv.PINTypeApplication, pinValue, nil, &retries)
		if err != nil {
			return fmt.Errorf("PIN verify failed (%d retries remaining): %w", retries, err)
		}
		output.PrintSuccess("PIN verified")
		return nil
	},
}

var pinChangeCmd = &cobra.Command{
	Use:   "pin-change",
	Short: "Change the application PIN",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, pinGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		if err := token.ChangePIN(ctx, t, piv.PINTypeApplication, pinValue, pinNewValue); err != nil {
			return err
		}
		output.PrintSuccess("PIN changed")
		return nil
	},
}

var pinResetCmd = &cobra.Command{
	Use:   "pin-reset",
	Short: "Reset the application PIN using the PUK",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, pinGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		if err := token.ResetPIN(ctx, t, pukValue, pinNewValue); err != nil {
			return err
		}
		output.PrintSuccess("PIN reset")
		return nil
	},
}

var (
	adminKeyHex string
	adminAlg    string
	adminGUID   string
)

var adminAuthCmd = &cobra.Command{
	Use:   "admin-auth",
	Short: "Authenticate as card administrator (9B challenge-response)",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, adminGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		key, err := parseHexGUID(adminKeyHex)
		if err != nil {
			return err
		}
		alg := algByAdminName(adminAlg)
		if err := token.AuthenticateAdmin(ctx, t, alg, key); err != nil {
			return err
		}
		output.PrintSuccess("admin authenticated")
		return nil
	},
}

func algByAdminName(name string) piv.Algorithm {
	switch name {
	case "aes128":
		return piv.AlgAES128
	case "aes192":
		return piv.AlgAES192
	case "aes256":
		return piv.AlgAES256
	default:
		return piv.AlgThreeDES
	}
}

func init() {
	pinVerifyCmd.Flags().StringVar(&pinValue, "pin", "", "application PIN")
	pinVerifyCmd.Flags().StringVar(&pinGUID, "guid", "", "hex GUID prefix to select a specific token")
	pinChangeCmd.Flags().StringVar(&pinValue, "pin", "", "current PIN")
	pinChangeCmd.Flags().StringVar(&pinNewValue, "new-pin", "", "new PIN")
	pinChangeCmd.Flags().StringVar(&pinGUID, "guid", "", "hex GUID prefix to select a specific token")
	pinResetCmd.Flags().StringVar(&pukValue, "puk", "", "PUK")
	pinResetCmd.Flags().StringVar(&pinNewValue, "new-pin", "", "new PIN")
	pinResetCmd.Flags().StringVar(&pinGUID, "guid", "", "hex GUID prefix to select a specific token")
	adminAuthCmd.Flags().StringVar(&adminKeyHex, "key", "", "admin key, hex-encoded")
	adminAuthCmd.Flags().StringVar(&adminAlg, "alg", "3des", "3des|aes128|aes192|aes256")
	adminAuthCmd.Flags().StringVar(&adminGUID, "guid", "", "hex GUID prefix to select a specific token")

	rootCmd.AddCommand(pinVerifyCmd, pinChangeCmd, pinResetCmd, adminAuthCmd)
}
