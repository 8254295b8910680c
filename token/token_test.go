package token

import (
	"bytes"
	"context"
	"testing"

	"pivcard/piverrors"
)

func TestComputeGUIDPrefersCHUIDGUID(t *testing.T) {
	chuidGUID := bytes.Repeat([]byte{0x01}, 16)
	uuid := bytes.Repeat([]byte{0x02}, 16)
	fascn := []byte{0x03}

	got := computeGUID(chuidGUID, uuid, fascn)
	if !bytes.Equal(got, chuidGUID) {
		t.Fatalf("GUID = %x, want CHUID GUID %x", got, chuidGUID)
	}
}

func TestComputeGUIDFallsBackToCardholderUUIDWhenCHUIDGUIDAllZero(t *testing.T) {
	chuidGUID := bytes.Repeat([]byte{0x00}, 16)
	uuid := bytes.Repeat([]byte{0x02}, 16)
	fascn := []byte{0x03}

	got := computeGUID(chuidGUID, uuid, fascn)
	if !bytes.Equal(got, uuid) {
		t.Fatalf("GUID = %x, want cardholder UUID %x", got, uuid)
	}
}

func TestComputeGUIDFallsBackToFASCNHash(t *testing.T) {
	fascn := []byte{0xAA, 0xBB, 0xCC}

	got := computeGUID(nil, nil, fascn)
	if len(got) != 16 {
		t.Fatalf("GUID length = %d, want 16", len(got))
	}
	if bytes.Equal(got, bytes.Repeat([]byte{0}, 16)) {
		t.Fatalf("GUID is all-zero, want a SHA-256(FASC-N) derived value")
	}

	// deterministic: same FASC-N always yields the same GUID.
	again := computeGUID(nil, nil, fascn)
	if !bytes.Equal(got, again) {
		t.Fatalf("computeGUID not deterministic: %x != %x", got, again)
	}
}

// fakeProtocol is a transport.CardHandle plus the optional
// BeginTransaction/EndTransaction/Reconnect interfaces BeginTransaction and
// EndTransaction type-assert for.
type fakeProtocol struct {
	beginErrs    []error // consumed in order; last repeats
	beginCalls   int
	reconnectErr error
	reconnected  bool
	endCalls     int
	lastReset    bool
}

func (f *fakeProtocol) Transmit(ctx context.Context, cmd []byte) ([]byte, error) {
	return []byte{0x90, 0x00}, nil
}

func (f *fakeProtocol) BeginTransaction() error {
	idx := f.beginCalls
	if idx >= len(f.beginErrs) {
		idx = len(f.beginErrs) - 1
	}
	f.beginCalls++
	if idx < 0 {
		return nil
	}
	return f.beginErrs[idx]
}

func (f *fakeProtocol) EndTransaction(reset bool) error {
	f.endCalls++
	f.lastReset = reset
	return nil
}

func (f *fakeProtocol) Reconnect(cold bool) error {
	f.reconnected = true
	return f.reconnectErr
}

func TestBeginTransactionRetriesOnceAfterReconnect(t *testing.T) {
	pcscErr := piverrors.New(piverrors.KindPCSC, "reader reset")
	proto := &fakeProtocol{beginErrs: []error{pcscErr, nil}}
	tok := &Token{Protocol: proto}

	if err := tok.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if !proto.reconnected {
		t.Fatalf("expected Reconnect to be called after a KindPCSC BeginTransaction failure")
	}
	if proto.beginCalls != 2 {
		t.Fatalf("BeginTransaction calls = %d, want 2", proto.beginCalls)
	}
	if !tok.TransactionHeld() {
		t.Fatalf("TransactionHeld() = false, want true")
	}
}

func TestBeginTransactionDoesNotRetryOnNonPCSCError(t *testing.T) {
	otherErr := piverrors.New(piverrors.KindArgument, "bad state")
	proto := &fakeProtocol{beginErrs: []error{otherErr}}
	tok := &Token{Protocol: proto}

	err := tok.BeginTransaction(context.Background())
	if err == nil {
		t.Fatalf("BeginTransaction: want error, got nil")
	}
	if proto.reconnected {
		t.Fatalf("Reconnect should not be called for a non-KindPCSC error")
	}
}

func TestEndTransactionResetsOnlyWhenMutated(t *testing.T) {
	proto := &fakeProtocol{beginErrs: []error{nil}}
	tok := &Token{Protocol: proto}

	if err := tok.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := tok.EndTransaction(context.Background()); err != nil {
		t.Fatalf("EndTransaction: %v", err)
	}
	if proto.lastReset {
		t.Fatalf("EndTransaction reset a clean transaction")
	}
	if tok.TransactionHeld() {
		t.Fatalf("TransactionHeld() = true after EndTransaction")
	}

	proto2 := &fakeProtocol{beginErrs: []error{nil}}
	tok2 := &Token{Protocol: proto2}
	if err := tok2.BeginTransaction(context.Background()); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	tok2.MarkMutated()
	if err := tok2.EndTransaction(context.Background()); err != nil {
		t.Fatalf("EndTransaction: %v", err)
	}
	if !proto2.lastReset {
		t.Fatalf("EndTransaction did not reset a mutated transaction")
	}
}
