package piv

import (
	"context"
	"errors"
	"testing"

	"pivcard/piverrors"
)

func TestVerifyPINEmptyQueryReportsRetries(t *testing.T) {
	card := &fixedCard{reply: []byte{0x63, 0xC2}}
	s := NewSession(card, nil)

	var retries int
	err := VerifyPIN(context.Background(), s, PINTypeApplication, "", nil, &retries)
	if err == nil {
		t.Fatalf("VerifyPIN: want error for unauthenticated status query, got nil")
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2", retries)
	}
}

func TestVerifyPINWrongPINReportsRetries(t *testing.T) {
	card := &fixedCard{reply: []byte{0x63, 0xC2}}
	s := NewSession(card, nil)

	var retries int
	err := VerifyPIN(context.Background(), s, PINTypeApplication, "123456", nil, &retries)
	if err == nil {
		t.Fatalf("VerifyPIN: want error for wrong PIN, got nil")
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2", retries)
	}
}

func TestVerifyPINBlockedSetsBlockedFlag(t *testing.T) {
	card := &fixedCard{reply: []byte{0x69, 0x83}}
	s := NewSession(card, nil)

	err := VerifyPIN(context.Background(), s, PINTypeApplication, "123456", nil, nil)
	if err == nil {
		t.Fatalf("VerifyPIN: want error for blocked PIN, got nil")
	}
	var perr *piverrors.Error
	if !errors.As(err, &perr) || !perr.Blocked {
		t.Fatalf("VerifyPIN: Blocked flag not set on %v", err)
	}
}
