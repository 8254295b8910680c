// Package token implements the token registry: enumeration, per-reader
// connection lifecycle, transaction scoping, and the cached Token/Slot
// data model built from a piv.Session.
package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"log/slog"
	"sync"

	"pivcard/piv"
	"pivcard/piverrors"
	"pivcard/transport"
)

// Slot is one cached key/certificate container. Owned by exactly one Token; freed with it.
type Slot struct {
	ID              byte
	Algorithm       piv.Algorithm
	Certificate     *x509.Certificate
	Subject         string
	RSAPublicKey    *rsa.PublicKey
	ECPublicKey     *ecdsa.PublicKey
	PINRequired     bool
	TouchRequired   bool
	MetadataFetched bool
}

// Token is one selected PIV applet on one reader. All mutating operations require TransactionHeld == true.
type Token struct {
	ReaderName string
	Session    *piv.Session
	Protocol   transport.CardHandle

	GUID            []byte // 16 bytes, never all-zero once computed (unless !HasCHUID)
	HasCHUID        bool
	FASCN           []byte
	Expiry          []byte
	SignedCHUID     bool
	CardholderUUID  []byte

	AppPINAvailable    bool
	GlobalPINAvailable bool
	OCCAvailable       bool
	VCIAvailable       bool
	PreferredAuth      byte

	Algorithms []byte

	KeyHistoryOnCard  int
	KeyHistoryOffCard int
	KeyHistoryURL     string

	AppLabel string
	AppURI   string

	IsYubicoPIV bool
	Firmware    [3]byte
	HasSerial   bool
	Serial      uint32

	mu                sync.Mutex
	transactionHeld   bool
	resetOnTxnEnd     bool
	slots             map[byte]*Slot
	allSlotsRead      bool
}

// TransactionHeld reports whether this token currently owns the reader
// transaction.
func (t *Token) TransactionHeld() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transactionHeld
}

// MarkMutated records that a PIN, admin, or other mutating operation
// succeeded during the current transaction, so the next EndTransaction
// resets the card and privileged state never outlives the caller's lock.
func (t *Token) MarkMutated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetOnTxnEnd = true
}

// requireTransaction enforces the invariant that mutating operations
// require an active transaction.
func (t *Token) requireTransaction() error {
	if !t.TransactionHeld() {
		return piverrors.New(piverrors.KindArgument, "operation requires an active transaction")
	}
	return nil
}

// BeginTransaction acquires the reader transaction, retrying once via
// reconnect when the first attempt fails with a KindPCSC error.
func (t *Token) BeginTransaction(ctx context.Context) error {
	type beginner interface {
		BeginTransaction() error
	}
	type reconnector interface {
		Reconnect(cold bool) error
	}

	b, ok := t.Protocol.(beginner)
	if !ok {
		return piverrors.New(piverrors.KindPCSC, "reader handle does not support transactions")
	}
	err := b.BeginTransaction()
	if err != nil {
		if r, ok := t.Protocol.(reconnector); ok && piverrors.CausedBy(err, piverrors.KindPCSC) {
			if rerr := r.Reconnect(false); rerr == nil {
				err = b.BeginTransaction()
			}
		}
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.transactionHeld = true
	t.mu.Unlock()
	return nil
}

// EndTransaction releases the reader transaction, issuing a card reset iff
// resetOnTxnEnd is set, then clears both flags.
func (t *Token) EndTransaction(ctx context.Context) error {
	type ender interface {
		EndTransaction(reset bool) error
	}
	e, ok := t.Protocol.(ender)
	if !ok {
		return piverrors.New(piverrors.KindPCSC, "reader handle does not support transactions")
	}

	t.mu.Lock()
	reset := t.resetOnTxnEnd
	t.mu.Unlock()

	err := e.EndTransaction(reset)

	t.mu.Lock()
	t.transactionHeld = false
	t.resetOnTxnEnd = false
	t.mu.Unlock()
	return err
}

// HasCHUIDObject reports whether CHUID was readable, for the GUID
// fallback-chain exception.
func (t *Token) HasCHUIDObject() bool { return t.HasCHUID }

// computeGUID implements the GUID fallback chain: CHUID GUID, else
// Cardholder UUID (if the CHUID GUID is absent or all-zero), else
// SHA-256(FASC-N) truncated to 16 bytes.
func computeGUID(chuidGUID, cardholderUUID, fascn []byte) []byte {
	if len(chuidGUID) == 16 && !isAllZero(chuidGUID) {
		return chuidGUID
	}
	if len(cardholderUUID) == 16 && !isAllZero(cardholderUUID) {
		return cardholderUUID
	}
	sum := sha256.Sum256(fascn)
	return sum[:16]
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// GetSlot returns the cached slot for id, or nil if not yet read.
func (t *Token) GetSlot(id byte) *Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots == nil {
		return nil
	}
	return t.slots[id]
}

// ForceSlot creates (or returns the existing) cache entry for id with the
// given algorithm.
func (t *Token) ForceSlot(id byte, alg piv.Algorithm) *Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots == nil {
		t.slots = make(map[byte]*Slot)
	}
	if s, ok := t.slots[id]; ok {
		return s
	}
	s := &Slot{ID: id, Algorithm: alg, PINRequired: true}
	t.slots[id] = s
	return s
}

func (t *Token) setSlot(s *Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots == nil {
		t.slots = make(map[byte]*Slot)
	}
	t.slots[s.ID] = s
}

// AllSlotsRead reports whether ReadAllCerts has completed once for this
// token.
func (t *Token) AllSlotsRead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allSlotsRead
}

// defaultLogger returns slog.Default() when l is nil.
func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
