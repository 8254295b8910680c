package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func parseHexGUID(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, " ", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex GUID %q: %w", s, err)
	}
	return b, nil
}

func parseSlotID(s string) (byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, fmt.Errorf("invalid slot id %q: %w", s, err)
	}
	return byte(v), nil
}
