package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/piv"
)

var (
	signSlot      string
	signAlg       string
	signMessage   string
	signPrehashed bool
	signHash      string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a message (or digest) with a slot's private key",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		s, card, err := connectAndSelect(ctx)
		if err != nil {
			return err
		}
		defer card.Disconnect(false)

		slot, err := parseSlotID(signSlot)
		if err != nil {
			return err
		}
		alg, err := algByName(signAlg)
		if err != nil {
			return err
		}
		message, err := hex.DecodeString(signMessage)
		if err != nil {
			return fmt.Errorf("invalid hex message: %w", err)
		}

		sig, err := piv.Sign(ctx, s, slot, alg, alg.RSAModulusBytes(), message, piv.SignOptions{
			Hash:      signHash,
			Prehashed: signPrehashed,
		})
		if err != nil {
			return err
		}
		output.PrintSuccess("signature: " + hex.EncodeToString(sig))
		return nil
	},
}

var (
	ecdhSlot      string
	ecdhAlg       string
	ecdhPeerPoint string
)

var ecdhCmd = &cobra.Command{
	Use:   "ecdh",
	Short: "Perform an ECDH key agreement against a slot's private key",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		s, card, err := connectAndSelect(ctx)
		if err != nil {
			return err
		}
		defer card.Disconnect(false)

		slot, err := parseSlotID(ecdhSlot)
		if err != nil {
			return err
		}
		alg, err := algByName(ecdhAlg)
		if err != nil {
			return err
		}
		peerPoint, err := hex.DecodeString(ecdhPeerPoint)
		if err != nil {
			return fmt.Errorf("invalid hex peer point: %w", err)
		}

		z, err := piv.ECDH(ctx, s, slot, alg, peerPoint)
		if err != nil {
			return err
		}
		output.PrintSuccess("shared secret: " + hex.EncodeToString(z))
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signSlot, "slot", "9c", "key slot, hex")
	signCmd.Flags().StringVar(&signAlg, "alg", "eccp256", "rsa2048|rsa4096|eccp256|eccp384")
	signCmd.Flags().StringVar(&signMessage, "message", "", "message or digest, hex-encoded")
	signCmd.Flags().BoolVar(&signPrehashed, "prehashed", false, "message is already a digest")
	signCmd.Flags().StringVar(&signHash, "hash", "", "digest algorithm (default chosen per key algorithm)")

	ecdhCmd.Flags().StringVar(&ecdhSlot, "slot", "9d", "key slot, hex")
	ecdhCmd.Flags().StringVar(&ecdhAlg, "alg", "eccp256", "eccp256|eccp384")
	ecdhCmd.Flags().StringVar(&ecdhPeerPoint, "peer-point", "", "peer's uncompressed EC point, hex-encoded")

	rootCmd.AddCommand(signCmd, ecdhCmd)
}
