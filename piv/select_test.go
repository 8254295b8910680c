package piv

import (
	"context"
	"testing"
)

// fixedCard returns the same raw wire reply for every Transmit call. It is
// enough for scenarios that only issue a single APDU exchange.
type fixedCard struct {
	reply []byte
}

func (f *fixedCard) Transmit(ctx context.Context, cmd []byte) ([]byte, error) {
	return f.reply, nil
}

func TestSelectParsesMinimalAPT(t *testing.T) {
	// APT body: 61 05 4F 01 AA 50 00 -- AID "AA", empty label (tag 50,
	// length 0), no algorithm list, no URI.
	card := &fixedCard{reply: []byte{0x61, 0x05, 0x4F, 0x01, 0xAA, 0x50, 0x00, 0x90, 0x00}}
	s := NewSession(card, nil)

	apt, err := Select(context.Background(), s)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if apt.Label != "" {
		t.Fatalf("label = %q, want empty", apt.Label)
	}
	if len(apt.Algorithms) != 0 {
		t.Fatalf("algorithms = %v, want none", apt.Algorithms)
	}
	if len(apt.AID) != 1 || apt.AID[0] != 0xAA {
		t.Fatalf("aid = %v, want [0xAA]", apt.AID)
	}
}
