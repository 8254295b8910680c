package cmd

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pivcard/box"
	"pivcard/cryptoutil"
	"pivcard/output"
	"pivcard/piv"
	"pivcard/token"
)

var (
	boxRecipPoint string
	boxCurve      string
	boxPlaintext  string
	boxOutPath    string
	boxInPath     string
	boxKeyPath    string
	boxGUID       string
	boxSlot       string
)

var boxSealCmd = &cobra.Command{
	Use:   "box-seal",
	Short: "Seal plaintext into a box for an offline recipient public key",
	RunE: func(c *cobra.Command, args []string) error {
		curve, err := cryptoutil.CurveByName(boxCurve)
		if err != nil {
			return err
		}
		pointBytes, err := hex.DecodeString(boxRecipPoint)
		if err != nil {
			return fmt.Errorf("invalid hex recipient point: %w", err)
		}
		recipPub, err := cryptoutil.ParseUncompressedPoint(curve, pointBytes)
		if err != nil {
			return err
		}

		b, err := box.SealOffline(recipPub, []byte(boxPlaintext), box.SealOptions{})
		if err != nil {
			return err
		}
		if boxGUID != "" {
			guid, err := parseHexGUID(boxGUID)
			if err != nil {
				return err
			}
			slot, err := parseSlotID(boxSlot)
			if err != nil {
				return err
			}
			b.GUIDValid = true
			b.GUID = guid
			b.SlotID = slot
		}

		enc, err := box.Encode(b)
		if err != nil {
			return err
		}
		if err := os.WriteFile(boxOutPath, enc, 0o600); err != nil {
			return err
		}
		output.PrintSuccess("sealed box written to " + boxOutPath)
		return nil
	},
}

var boxOpenOfflineCmd = &cobra.Command{
	Use:   "box-open",
	Short: "Open a box using a locally-held recipient EC private key (PEM)",
	RunE: func(c *cobra.Command, args []string) error {
		enc, err := os.ReadFile(boxInPath)
		if err != nil {
			return err
		}
		b, err := box.Decode(enc)
		if err != nil {
			return err
		}

		keyPEM, err := os.ReadFile(boxKeyPath)
		if err != nil {
			return err
		}
		block, _ := pem.Decode(keyPEM)
		if block == nil {
			return fmt.Errorf("no PEM block found in %s", boxKeyPath)
		}
		recipPriv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse EC private key: %w", err)
		}

		if err := box.OpenOffline(b, recipPriv); err != nil {
			return err
		}
		defer b.Zeroize()
		fmt.Println(string(b.Plaintext))
		return nil
	},
}

var boxOpenOnCardCmd = &cobra.Command{
	Use:   "box-open-oncard",
	Short: "Open a box by routing the ECDH step through a matching token",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		enc, err := os.ReadFile(boxInPath)
		if err != nil {
			return err
		}
		b, err := box.Decode(enc)
		if err != nil {
			return err
		}

		tokens, err := token.Enumerate(ctx, newLogger())
		if err != nil {
			return err
		}
		pool := token.NewPool(tokens)

		found, err := box.FindToken(ctx, pool, b)
		if err != nil {
			return err
		}

		if err := found.Token.BeginTransaction(ctx); err != nil {
			return err
		}
		defer found.Token.EndTransaction(ctx)

		slot := found.Token.GetSlot(found.Slot)
		var alg piv.Algorithm = piv.AlgECCP256
		if slot != nil {
			alg = slot.Algorithm
		}
		if err := box.OpenOnCard(ctx, found.Token.Session, found.Slot, alg, b); err != nil {
			return err
		}
		found.Token.MarkMutated()
		defer b.Zeroize()
		fmt.Println(string(b.Plaintext))
		return nil
	},
}

var boxInfoCmd = &cobra.Command{
	Use:   "box-info",
	Short: "Print a box's metadata without opening it",
	RunE: func(c *cobra.Command, args []string) error {
		enc, err := os.ReadFile(boxInPath)
		if err != nil {
			return err
		}
		b, err := box.Decode(enc)
		if err != nil {
			return err
		}
		output.PrintBox(b)
		return nil
	},
}

func init() {
	boxSealCmd.Flags().StringVar(&boxRecipPoint, "recip-point", "", "recipient's uncompressed EC point, hex-encoded")
	boxSealCmd.Flags().StringVar(&boxCurve, "curve", "p256", "p256|p384")
	boxSealCmd.Flags().StringVar(&boxPlaintext, "plaintext", "", "plaintext to seal")
	boxSealCmd.Flags().StringVar(&boxOutPath, "out", "box.bin", "output file path")
	boxSealCmd.Flags().StringVar(&boxGUID, "guid", "", "stamp the box with this token GUID (hex)")
	boxSealCmd.Flags().StringVar(&boxSlot, "slot", "9d", "stamp the box with this slot id (hex)")

	boxOpenOfflineCmd.Flags().StringVar(&boxInPath, "in", "box.bin", "box file path")
	boxOpenOfflineCmd.Flags().StringVar(&boxKeyPath, "key", "", "PEM-encoded recipient EC private key")

	boxOpenOnCardCmd.Flags().StringVar(&boxInPath, "in", "box.bin", "box file path")

	boxInfoCmd.Flags().StringVar(&boxInPath, "in", "box.bin", "box file path")

	rootCmd.AddCommand(boxSealCmd, boxOpenOfflineCmd, boxOpenOnCardCmd, boxInfoCmd)
}
