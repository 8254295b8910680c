package cmd

import (
	"bufio"
	"encoding/hex"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pivcard/output"
)

var scriptPath string

// scriptCmd replays a file of raw hex APDUs, one per line, against the
// selected reader and reports each exchange's status word, modeled on the
// teacher's scripted test-suite runner shape.
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Replay a file of raw hex APDUs against a card",
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		_, card, err := connectAndSelect(ctx)
		if err != nil {
			return err
		}
		defer card.Disconnect(false)

		f, err := os.Open(scriptPath)
		if err != nil {
			return err
		}
		defer f.Close()

		var results []output.ScriptResult
		scanner := bufio.NewScanner(f)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			cmdBytes, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
			if err != nil {
				results = append(results, output.ScriptResult{LineNum: lineNum, APDU: line, Error: err.Error()})
				continue
			}
			resp, err := card.Transmit(ctx, cmdBytes)
			r := output.ScriptResult{LineNum: lineNum, APDU: line}
			if err != nil {
				r.Error = err.Error()
			} else if len(resp) >= 2 {
				r.Response = hex.EncodeToString(resp[:len(resp)-2])
				r.SW = hex.EncodeToString(resp[len(resp)-2:])
				r.Success = resp[len(resp)-2] == 0x90 && resp[len(resp)-1] == 0x00
			}
			results = append(results, r)
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		output.PrintScriptResults(results)
		return nil
	},
}

func init() {
	scriptCmd.Flags().StringVar(&scriptPath, "file", "", "path to a file of raw hex APDUs, one per line")
	rootCmd.AddCommand(scriptCmd)
}
