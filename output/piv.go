// Package output renders tokens, slots, certificates, and box metadata as
// go-pretty tables.
package output

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pivcard/box"
	"pivcard/token"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// PrintReaderList prints the available PC/SC reader names.
func PrintReaderList(readers []string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AVAILABLE SMART CARD READERS")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 8},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	if len(readers) == 0 {
		t.AppendRow(table.Row{"Status", colorWarn.Sprint("No readers found")})
	} else {
		for i, r := range readers {
			t.AppendRow(table.Row{fmt.Sprintf("[%d]", i), r})
		}
	}
	t.Render()
}

// PrintTokenSummary prints a one-line-per-token overview table.
func PrintTokenSummary(tokens []*token.Token) {
	fmt.Println()
	t := newTable()
	t.SetTitle("PIV TOKENS")
	t.AppendHeader(table.Row{"Reader", "GUID", "Label", "Yubico", "Firmware", "Serial"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 20},
		{Number: 2, Colors: colorValue, WidthMin: 34},
		{Number: 3, Colors: colorValue, WidthMin: 15},
		{Number: 4, WidthMin: 8},
		{Number: 5, WidthMin: 10},
		{Number: 6, WidthMin: 10},
	})
	if len(tokens) == 0 {
		t.AppendRow(table.Row{"-", "(no tokens found)", "-", "-", "-", "-"})
	}
	for _, tk := range tokens {
		yubico := colorError.Sprint("no")
		firmware := "-"
		serial := "-"
		if tk.IsYubicoPIV {
			yubico = colorSuccess.Sprint("yes")
			firmware = fmt.Sprintf("%d.%d.%d", tk.Firmware[0], tk.Firmware[1], tk.Firmware[2])
			if tk.HasSerial {
				serial = fmt.Sprintf("%d", tk.Serial)
			}
		}
		label := tk.AppLabel
		if label == "" {
			label = "(no label)"
		}
		t.AppendRow(table.Row{tk.ReaderName, hex.EncodeToString(tk.GUID), label, yubico, firmware, serial})
	}
	t.Render()
}

// PrintToken prints one token's fixed-object detail.
func PrintToken(tk *token.Token) {
	fmt.Println()
	t := newTable()
	t.SetTitle("TOKEN DETAIL")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 20},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	t.AppendRow(table.Row{"Reader", tk.ReaderName})
	t.AppendRow(table.Row{"GUID", hex.EncodeToString(tk.GUID)})
	t.AppendRow(table.Row{"App Label", tk.AppLabel})
	t.AppendRow(table.Row{"App URI", tk.AppURI})
	t.AppendRow(table.Row{"App PIN Available", tk.AppPINAvailable})
	t.AppendRow(table.Row{"Global PIN Available", tk.GlobalPINAvailable})
	t.AppendRow(table.Row{"OCC Available", tk.OCCAvailable})
	t.AppendRow(table.Row{"VCI Available", tk.VCIAvailable})
	if tk.IsYubicoPIV {
		t.AppendRow(table.Row{"Firmware", fmt.Sprintf("%d.%d.%d", tk.Firmware[0], tk.Firmware[1], tk.Firmware[2])})
		if tk.HasSerial {
			t.AppendRow(table.Row{"Serial", fmt.Sprintf("%d", tk.Serial)})
		}
	}
	t.Render()
}

// PrintSlots prints every populated slot on a token.
func PrintSlots(slots map[byte]*token.Slot) {
	fmt.Println()
	t := newTable()
	t.SetTitle("SLOTS")
	t.AppendHeader(table.Row{"Slot", "Algorithm", "Subject", "PIN Req.", "Touch Req."})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 6},
		{Number: 2, Colors: colorValue, WidthMin: 20},
		{Number: 3, Colors: colorValue, WidthMin: 40},
		{Number: 4, WidthMin: 10},
		{Number: 5, WidthMin: 10},
	})

	var ids []int
	for id := range slots {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	if len(ids) == 0 {
		t.AppendRow(table.Row{"-", "(no slots populated)", "-", "-", "-"})
	}
	for _, id := range ids {
		s := slots[byte(id)]
		subject := s.Subject
		if subject == "" {
			subject = "-"
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("0x%02X", s.ID),
			s.Algorithm.String(),
			subject,
			boolMark(s.PINRequired),
			boolMark(s.TouchRequired),
		})
	}
	t.Render()
}

func boolMark(v bool) string {
	if v {
		return colorSuccess.Sprint("yes")
	}
	return colorError.Sprint("no")
}

// PrintBox prints a sealed or opened box's metadata.
func PrintBox(b *box.Box) {
	fmt.Println()
	t := newTable()
	t.SetTitle("BOX")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 55},
	})
	t.AppendRow(table.Row{"Version", b.Version})
	t.AppendRow(table.Row{"GUID Valid", b.GUIDValid})
	if b.GUIDValid {
		t.AppendRow(table.Row{"GUID", hex.EncodeToString(b.GUID)})
		t.AppendRow(table.Row{"Slot", fmt.Sprintf("0x%02X", b.SlotID)})
	}
	t.AppendRow(table.Row{"Cipher", b.CipherName})
	t.AppendRow(table.Row{"KDF", b.KDFName})
	t.AppendRow(table.Row{"Curve", b.Curve.Name()})
	t.AppendRow(table.Row{"Ciphertext Length", len(b.Ciphertext)})
	if !b.Sealed() {
		t.AppendRow(table.Row{"Plaintext Length", len(b.Plaintext)})
	}
	t.Render()
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(colorError.Sprintf("✗ Error: %s", msg))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprintf("✓ %s", msg))
}

// PrintWarning prints a warning message.
func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprintf("⚠ %s", msg))
}

// ScriptResult is one executed step of a scripted APDU-trace replay.
type ScriptResult struct {
	LineNum  int
	APDU     string
	Response string
	SW       string
	Success  bool
	Error    string
}

// PrintScriptResults prints a scripted-APDU replay's outcome table.
func PrintScriptResults(results []ScriptResult) {
	fmt.Println()
	t := newTable()
	t.SetTitle("SCRIPT EXECUTION RESULTS")
	t.AppendHeader(table.Row{"Line", "APDU", "Response", "SW", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 5},
		{Number: 2, Colors: colorValue, WidthMin: 40},
		{Number: 3, Colors: colorValue, WidthMin: 30},
		{Number: 4, Colors: colorValue, WidthMin: 6},
		{Number: 5, WidthMin: 10},
	})

	successCount := 0
	for _, r := range results {
		status := colorSuccess.Sprint("✓ OK")
		if r.Success {
			successCount++
		} else if r.Error != "" {
			status = colorError.Sprintf("✗ %s", r.Error)
		} else {
			status = colorError.Sprint("✗ FAIL")
		}
		t.AppendRow(table.Row{r.LineNum, r.APDU, r.Response, r.SW, status})
	}
	t.Render()
	fmt.Printf("\nExecuted: %d commands, Success: %d, Failed: %d\n",
		len(results), successCount, len(results)-successCount)
}
