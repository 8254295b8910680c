package token

import (
	"context"

	"pivcard/piv"
)

// VerifyPIN authenticates pin against t's session, requiring an active
// transaction. A successful non-empty attempt marks t mutated so the next
// EndTransaction resets the card rather than leaving PIN-verified state for
// the next transaction holder; a status-only query (pin == "") never does.
func VerifyPIN(ctx context.Context, t *Token, pinType byte, pin string, minRetries *int, retriesOut *int) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	err := piv.VerifyPIN(ctx, t.Session, pinType, pin, minRetries, retriesOut)
	if err == nil && pin != "" {
		t.MarkMutated()
	}
	return err
}

// ChangePIN requires an active transaction and marks t mutated on success.
func ChangePIN(ctx context.Context, t *Token, pinType byte, oldPIN, newPIN string) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.ChangePIN(ctx, t.Session, pinType, oldPIN, newPIN); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// ResetPIN requires an active transaction and marks t mutated on success.
func ResetPIN(ctx context.Context, t *Token, puk, newPIN string) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.ResetPIN(ctx, t.Session, puk, newPIN); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// AuthenticateAdmin requires an active transaction and marks t mutated on
// success: a successful 9B challenge-response leaves the session
// administrator-authenticated, state that must not outlive the transaction.
func AuthenticateAdmin(ctx context.Context, t *Token, alg piv.Algorithm, key []byte) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.AuthenticateAdmin(ctx, t.Session, alg, key); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// GenerateAsymmetric requires an active transaction and marks t mutated on
// success.
func GenerateAsymmetric(ctx context.Context, t *Token, slot byte, alg piv.Algorithm, pinpol piv.PINPolicy, touchpol piv.TouchPolicy) (*piv.GeneratedKey, error) {
	if err := t.requireTransaction(); err != nil {
		return nil, err
	}
	key, err := piv.GenerateAsymmetric(ctx, t.Session, slot, alg, pinpol, touchpol, t.Firmware)
	if err != nil {
		return nil, err
	}
	t.MarkMutated()
	return key, nil
}

// ImportRSA requires an active transaction and marks t mutated on success.
func ImportRSA(ctx context.Context, t *Token, slot byte, alg piv.Algorithm, p, q, dmp1, dmq1, iqmp []byte, pinpol piv.PINPolicy, touchpol piv.TouchPolicy) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.ImportRSA(ctx, t.Session, slot, alg, p, q, dmp1, dmq1, iqmp, pinpol, touchpol); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// ImportECDSA requires an active transaction and marks t mutated on success.
func ImportECDSA(ctx context.Context, t *Token, slot byte, alg piv.Algorithm, scalar []byte, pinpol piv.PINPolicy, touchpol piv.TouchPolicy) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.ImportECDSA(ctx, t.Session, slot, alg, scalar, pinpol, touchpol); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// ResetYubico requires an active transaction and marks t mutated on success.
func ResetYubico(ctx context.Context, t *Token) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.Reset(ctx, t.Session); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// SetAdminKey requires an active transaction (and a prior AuthenticateAdmin
// in the same transaction) and marks t mutated on success.
func SetAdminKey(ctx context.Context, t *Token, alg piv.Algorithm, key []byte, touchpol piv.TouchPolicy) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.SetAdminKey(ctx, t.Session, alg, key, touchpol); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}

// SetPINRetries requires an active transaction and marks t mutated on
// success.
func SetPINRetries(ctx context.Context, t *Token, pinRetries, pukRetries byte) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}
	if err := piv.SetPINRetries(ctx, t.Session, pinRetries, pukRetries); err != nil {
		return err
	}
	t.MarkMutated()
	return nil
}
