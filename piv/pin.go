package piv

import (
	"context"
	"errors"

	"pivcard/apdu"
	"pivcard/piverrors"
)

// PIN reference bytes for VERIFY/CHANGE/RESET's P2.
const (
	PINTypeApplication byte = 0x80
	PINTypeGlobal      byte = 0x00
	PINTypeOCC         byte = 0x81
	PINTypePUK         byte = 0x9B
)

const pinFieldLen = 8

// padPIN pads an ASCII PIN to the fixed 8-byte VERIFY/CHANGE body field
// with trailing 0xFF.
func padPIN(pin string) ([]byte, error) {
	if len(pin) > pinFieldLen {
		return nil, piverrors.Newf(piverrors.KindArgument, "PIN longer than %d bytes", pinFieldLen)
	}
	out := make([]byte, pinFieldLen)
	copy(out, pin)
	for i := len(pin); i < pinFieldLen; i++ {
		out[i] = 0xFF
	}
	return out, nil
}

// VerifyStatus is the result of an empty VERIFY status query.
type VerifyStatus struct {
	Authenticated    bool
	RetriesRemaining int
	// EmptyVerifyUnsupported is set when the card rejects an empty VERIFY
	// with 6700/6A80, a known bug on some implementations; the caller's
	// fallback policy applies.
	EmptyVerifyUnsupported bool
}

// queryVerifyStatus issues an empty VERIFY to check PIN state without
// consuming a retry.
func queryVerifyStatus(ctx context.Context, s *Session, pinType byte) (VerifyStatus, error) {
	resp, err := verifyRaw(ctx, s, pinType, nil)
	if err != nil {
		if sw, ok := statusWordOf(err); ok {
			switch sw {
			case 0x6700, 0x6A80:
				return VerifyStatus{EmptyVerifyUnsupported: true}, nil
			}
			if sw&0xFFF0 == 0x63C0 {
				return VerifyStatus{RetriesRemaining: int(sw & 0xF)}, nil
			}
		}
		return VerifyStatus{}, err
	}
	_ = resp
	return VerifyStatus{Authenticated: true}, nil
}

func statusWordOf(err error) (uint16, bool) {
	var perr *piverrors.Error
	if !errors.As(err, &perr) {
		return 0, false
	}
	return perr.SW, perr.SW != 0
}

func verifyRaw(ctx context.Context, s *Session, pinType byte, body []byte) (apdu.Response, error) {
	return s.transceive(ctx, "VERIFY", apdu.Command{
		Class: 0x00, Ins: apdu.InsVerify, P1: 0x00, P2: pinType, Data: body,
	})
}

// VerifyPIN implements five PIN-verification use cases via three
// optional inputs:
//   - pin == "": query status only (no attempt).
//   - pin != "" and minRetries == nil: attempt unconditionally.
//   - pin != "" and minRetries != nil: attempt only if the current retry
//     count is >= *minRetries (queries status first to decide).
//
// retriesOut, if non-nil, receives the retries-remaining count observed
// (from a status query or from a failed attempt).
func VerifyPIN(ctx context.Context, s *Session, pinType byte, pin string, minRetries *int, retriesOut *int) error {
	if pin == "" {
		status, err := queryVerifyStatus(ctx, s, pinType)
		if err != nil {
			return err
		}
		if retriesOut != nil {
			*retriesOut = status.RetriesRemaining
		}
		if !status.Authenticated && !status.EmptyVerifyUnsupported {
			return piverrors.New(piverrors.KindPermission, "PIN not verified").WithRetries(status.RetriesRemaining)
		}
		return nil
	}

	if minRetries != nil {
		status, err := queryVerifyStatus(ctx, s, pinType)
		if err != nil {
			return err
		}
		if status.Authenticated {
			return nil
		}
		if !status.EmptyVerifyUnsupported && status.RetriesRemaining < *minRetries {
			if retriesOut != nil {
				*retriesOut = status.RetriesRemaining
			}
			return piverrors.New(piverrors.KindMinRetries, "fewer retries remain than the requested minimum").WithRetries(status.RetriesRemaining)
		}
	}

	body, err := padPIN(pin)
	if err != nil {
		return err
	}
	_, err = verifyRaw(ctx, s, pinType, body)
	if err == nil {
		return nil
	}

	sw, _ := statusWordOf(err)
	switch {
	case sw == 0x6983:
		return piverrors.New(piverrors.KindPermission, "PIN blocked").WithBlocked()
	case sw&0xFFF0 == 0x63C0:
		retries := int(sw & 0xF)
		if retriesOut != nil {
			*retriesOut = retries
		}
		return piverrors.New(piverrors.KindPermission, "wrong PIN").WithRetries(retries)
	}
	return err
}

// ChangePIN issues CHANGE REFERENCE DATA, replacing oldPIN with newPIN.
func ChangePIN(ctx context.Context, s *Session, pinType byte, oldPIN, newPIN string) error {
	oldPadded, err := padPIN(oldPIN)
	if err != nil {
		return err
	}
	newPadded, err := padPIN(newPIN)
	if err != nil {
		return err
	}
	body := append(append([]byte{}, oldPadded...), newPadded...)
	_, err = s.transceive(ctx, "CHANGE REFERENCE DATA", apdu.Command{
		Class: 0x00, Ins: apdu.InsChangeRefData, P1: 0x00, P2: pinType, Data: body,
	})
	return translatePINError(err)
}

// ResetPIN issues RESET RETRY COUNTER with the PUK and a new PIN.
func ResetPIN(ctx context.Context, s *Session, puk, newPIN string) error {
	pukPadded, err := padPIN(puk)
	if err != nil {
		return err
	}
	newPadded, err := padPIN(newPIN)
	if err != nil {
		return err
	}
	body := append(append([]byte{}, pukPadded...), newPadded...)
	_, err = s.transceive(ctx, "RESET RETRY COUNTER", apdu.Command{
		Class: 0x00, Ins: apdu.InsResetRetryCounter, P1: 0x00, P2: PINTypeApplication, Data: body,
	})
	return translatePINError(err)
}

func translatePINError(err error) error {
	sw, ok := statusWordOf(err)
	if !ok {
		return err
	}
	switch {
	case sw == 0x6983:
		return piverrors.New(piverrors.KindPermission, "reference data blocked").WithBlocked()
	case sw&0xFFF0 == 0x63C0:
		return piverrors.New(piverrors.KindPermission, "wrong reference data").WithRetries(int(sw & 0xF))
	}
	return err
}
