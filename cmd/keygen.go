package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"pivcard/cryptoutil"
	"pivcard/output"
	"pivcard/piv"
	"pivcard/token"
)

var (
	keygenSlot     string
	keygenAlg      string
	keygenPINPol   string
	keygenTouchPol string
	keygenGUID     string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new asymmetric key pair in a slot",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		t, err := findToken(ctx, keygenGUID)
		if err != nil {
			return err
		}
		if err := t.BeginTransaction(ctx); err != nil {
			return err
		}
		defer t.EndTransaction(ctx)

		slot, err := parseSlotID(keygenSlot)
		if err != nil {
			return err
		}
		alg, err := algByName(keygenAlg)
		if err != nil {
			return err
		}
		pinpol, err := pinPolicyByName(keygenPINPol)
		if err != nil {
			return err
		}
		touchpol, err := touchPolicyByName(keygenTouchPol)
		if err != nil {
			return err
		}

		key, err := token.GenerateAsymmetric(ctx, t, slot, alg, pinpol, touchpol)
		if err != nil {
			return err
		}
		output.PrintSuccess(fmt.Sprintf("generated %s key in slot 0x%02X", key.Algorithm, slot))
		if key.ECPublic != nil {
			output.PrintSuccess("public key: " + hex.EncodeToString(cryptoutil.SerializeUncompressedPoint(key.ECPublic)))
		}
		return nil
	},
}

func algByName(name string) (piv.Algorithm, error) {
	switch name {
	case "rsa1024":
		return piv.AlgRSA1024, nil
	case "rsa2048":
		return piv.AlgRSA2048, nil
	case "rsa3072":
		return piv.AlgRSA3072, nil
	case "rsa4096":
		return piv.AlgRSA4096, nil
	case "eccp256":
		return piv.AlgECCP256, nil
	case "eccp384":
		return piv.AlgECCP384, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q", name)
}

func pinPolicyByName(name string) (piv.PINPolicy, error) {
	switch name {
	case "", "default":
		return piv.PINPolicyDefault, nil
	case "never":
		return piv.PINPolicyNever, nil
	case "once":
		return piv.PINPolicyOnce, nil
	case "always":
		return piv.PINPolicyAlways, nil
	}
	return 0, fmt.Errorf("unknown PIN policy %q", name)
}

func touchPolicyByName(name string) (piv.TouchPolicy, error) {
	switch name {
	case "", "default":
		return piv.TouchPolicyDefault, nil
	case "never":
		return piv.TouchPolicyNever, nil
	case "always":
		return piv.TouchPolicyAlways, nil
	case "cached":
		return piv.TouchPolicyCached, nil
	}
	return 0, fmt.Errorf("unknown touch policy %q", name)
}

func init() {
	keygenCmd.Flags().StringVar(&keygenSlot, "slot", "9a", "key slot, hex (e.g. 9a, 9c, 9d, 9e)")
	keygenCmd.Flags().StringVar(&keygenAlg, "alg", "eccp256", "rsa1024|rsa2048|rsa3072|rsa4096|eccp256|eccp384")
	keygenCmd.Flags().StringVar(&keygenPINPol, "pin-policy", "default", "default|never|once|always")
	keygenCmd.Flags().StringVar(&keygenTouchPol, "touch-policy", "default", "default|never|always|cached")
	keygenCmd.Flags().StringVar(&keygenGUID, "guid", "", "hex GUID prefix to select a specific token")
	rootCmd.AddCommand(keygenCmd)
}
