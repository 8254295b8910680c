// Package cmd implements the pivcard CLI: cobra subcommands over the
// token/piv/box packages, sharing a persistent-flag, connect-then-dispatch
// convention.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pivcard/output"
	"pivcard/pcsc"
	"pivcard/piv"
	"pivcard/token"
)

var (
	version = "1.0.0"

	readerName string
	verbose    bool
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "pivcard",
	Short: "PIV smartcard driver + ECDH sealed box",
	Long: `pivcard v` + version + `
Drive PIV (NIST SP 800-73-4) smartcards plus YubicoPIV extensions, and seal
or open ECDH sealed boxes against a card's key management slot.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&readerName, "reader", "r", "",
		"PC/SC reader name for attest, sign, ecdh and script (default: auto-select if exactly one is present); other commands select a token with --guid")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug-level logging (skipped readers; recent APDU exchanges on parse errors)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"accepted but not used: all output is plain text and tables")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connectAndSelect opens the named (or auto-selected) reader, selects the
// PIV applet, and returns a ready-to-use Session plus its underlying card.
func connectAndSelect(ctx context.Context) (*piv.Session, *pcsc.Card, error) {
	name := readerName
	if name == "" {
		readers, err := pcsc.ListReaders()
		if err != nil {
			return nil, nil, fmt.Errorf("list readers: %w", err)
		}
		switch len(readers) {
		case 0:
			return nil, nil, fmt.Errorf("no smart card readers found")
		case 1:
			name = readers[0]
		default:
			output.PrintReaderList(readers)
			return nil, nil, fmt.Errorf("multiple readers found, use -r <name> to select one")
		}
	}

	card, err := pcsc.Connect(name)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %q: %w", name, err)
	}

	s := piv.NewSession(card, newLogger())
	if _, err := piv.Select(ctx, s); err != nil {
		card.Disconnect(false)
		return nil, nil, fmt.Errorf("select PIV applet: %w", err)
	}
	return s, card, nil
}

// findToken enumerates all readers and returns the one matching guidPrefix,
// or the sole enumerated token if guidPrefix is empty and exactly one exists.
func findToken(ctx context.Context, guidPrefix string) (*token.Token, error) {
	logger := newLogger()
	if guidPrefix != "" {
		prefix, err := parseHexGUID(guidPrefix)
		if err != nil {
			return nil, err
		}
		return token.Find(ctx, logger, prefix)
	}

	tokens, err := token.Enumerate(ctx, logger)
	if err != nil {
		return nil, err
	}
	switch len(tokens) {
	case 0:
		return nil, fmt.Errorf("no PIV tokens found")
	case 1:
		return tokens[0], nil
	default:
		output.PrintTokenSummary(tokens)
		return nil, fmt.Errorf("multiple tokens found, use --guid <prefix> to select one")
	}
}
