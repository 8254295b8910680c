package piv

import (
	"context"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"errors"

	"pivcard/apdu"
	"pivcard/piverrors"
	"pivcard/tlv"
)

// attestPolicyOID is the YubicoPIV extension OID carrying a 2-byte
// {pin, touch} policy pair, used as a fallback metadata source on
// firmware older than 5.3.0 (a Yubico PIV extension).
var attestPolicyOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 41482, 3, 8}

// GetVersion issues GET_VER. Its absence (a NotSupportedError/APDUError
// from the card) means the token is not a YubicoPIV card.
func GetVersion(ctx context.Context, s *Session) ([3]byte, error) {
	resp, err := s.transceive(ctx, "GET VERSION", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoGetVersion, P1: 0x00, P2: 0x00, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return [3]byte{}, err
	}
	if len(resp.Data) != 3 {
		return [3]byte{}, piverrors.Newf(piverrors.KindInvalidData, "GET VERSION returned %d bytes, want 3", len(resp.Data))
	}
	return [3]byte{resp.Data[0], resp.Data[1], resp.Data[2]}, nil
}

// GetSerial issues GET_SERIAL (YubicoPIV >= 5 only).
func GetSerial(ctx context.Context, s *Session) (uint32, error) {
	resp, err := s.transceive(ctx, "GET SERIAL", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoGetSerial, P1: 0x00, P2: 0x00, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Data) != 4 {
		return 0, piverrors.Newf(piverrors.KindInvalidData, "GET SERIAL returned %d bytes, want 4", len(resp.Data))
	}
	return binary.BigEndian.Uint32(resp.Data), nil
}

// SlotMetadata is the parsed GET_METADATA reply, combining the algorithm
// and PIN/touch policy bytes (a Yubico PIV extension).
type SlotMetadata struct {
	Algorithm       Algorithm
	PINRequired     bool
	TouchRequired   bool
	PolicySource    string // "metadata" or "attest-extension"
}

// GetMetadata issues GET_METADATA for slot (YubicoPIV >= 5.3.0 only).
func GetMetadata(ctx context.Context, s *Session, slot byte) (*SlotMetadata, error) {
	resp, err := s.transceive(ctx, "GET METADATA", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoGetMetadata, P1: 0x00, P2: slot, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, err
	}
	entries, err := tlv.DecodeAll(resp.Data)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode metadata", err)
		s.logParseError("GET METADATA", werr)
		return nil, werr
	}

	meta := &SlotMetadata{PolicySource: "metadata"}
	for _, e := range entries {
		switch e.Tag {
		case tagYubicoMetaAlgo:
			if len(e.Value) == 1 {
				meta.Algorithm = Algorithm(e.Value[0])
			}
		case tagYubicoMetaPolicy:
			if len(e.Value) == 2 {
				applyPolicyBytes(meta, e.Value[0], e.Value[1])
			}
		}
	}
	return meta, nil
}

// applyPolicyBytes implements the touch/PIN policy mapping: PIN
// policy ONCE/ALWAYS sets pin-required, NEVER clears it; touch
// ALWAYS/CACHED sets touch-required, NEVER clears it.
func applyPolicyBytes(meta *SlotMetadata, pinPolicy, touchPolicy byte) {
	switch PINPolicy(pinPolicy) {
	case PINPolicyOnce, PINPolicyAlways:
		meta.PINRequired = true
	case PINPolicyNever:
		meta.PINRequired = false
	}
	switch TouchPolicy(touchPolicy) {
	case TouchPolicyAlways, TouchPolicyCached:
		meta.TouchRequired = true
	case TouchPolicyNever:
		meta.TouchRequired = false
	}
}

// Attest issues ATTEST for slot, returning the card-generated attestation
// certificate. The certificate's extensions are always walked for the policy
// OID (the fallback metadata source on firmware older than 5.3.0); the
// returned metadata is nil when that extension is absent.
func Attest(ctx context.Context, s *Session, slot byte) (*x509.Certificate, *SlotMetadata, error) {
	resp, err := s.transceive(ctx, "ATTEST", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoAttest, P1: slot, P2: 0x00, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(resp.Data)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "parse attestation certificate", err)
		s.logParseError("ATTEST", werr)
		return nil, nil, werr
	}

	meta := attestPolicyFromExtensions(cert)
	return cert, meta, nil
}

// attestPolicyFromExtensions extracts the {pin, touch} policy pair from the
// attestation certificate's vendor extension OID, the fallback metadata
// source on firmware < 5.3.0.
func attestPolicyFromExtensions(cert *x509.Certificate) *SlotMetadata {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(attestPolicyOID) {
			continue
		}
		if len(ext.Value) < 2 {
			continue
		}
		// The extension value carries the 2 policy bytes, optionally
		// wrapped in a short DER OCTET STRING; accept either form.
		pin, touch := ext.Value[0], ext.Value[1]
		if len(ext.Value) >= 4 && ext.Value[0] == 0x04 {
			pin, touch = ext.Value[2], ext.Value[3]
		}
		meta := &SlotMetadata{PolicySource: "attest-extension"}
		applyPolicyBytes(meta, pin, touch)
		return meta
	}
	return nil
}

// Reset issues the YubicoPIV RESET extension, which wipes all PIV state
// (keys, certs, PIN/PUK/admin key back to factory defaults) once every PIN,
// PUK and admin-key retry counter has been run down to zero. Grounded on
// ykpiv_reset (original_source/piv.c:3566): SW=6982 ("security status not
// satisfied") means the reader must hold the transaction but the retry
// counters aren't all exhausted yet; SW=6985 means the same but phrased as
// "conditions of use not satisfied".
func Reset(ctx context.Context, s *Session) error {
	_, err := s.transceive(ctx, "RESET", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoReset, P1: 0x00, P2: 0x00,
	})
	if err != nil {
		var perr *piverrors.Error
		if errors.As(err, &perr) && perr.SW == 0x6985 {
			return piverrors.New(piverrors.KindPermission, "reset requires every PIN/PUK/admin-key retry counter to be exhausted first").WithSW(perr.SW)
		}
		return err
	}
	return nil
}

// SetAdminKey issues the YubicoPIV SET MGMT KEY extension, replacing the 9B
// admin key. Requires a prior AuthenticateAdmin in the same transaction.
// Grounded on ykpiv_set_admin (original_source/piv.c:3657): P2 selects the
// touch policy (0xFF default/never, 0xFE always); the new key is carried in
// a {alg, 0x9B, len, key...} TLV-shaped body, matching the card's INS_SET_MGMT
// convention rather than the tlv package's generic encoder.
func SetAdminKey(ctx context.Context, s *Session, alg Algorithm, key []byte, touchpol TouchPolicy) error {
	var p2 byte
	switch touchpol {
	case TouchPolicyDefault, TouchPolicyNever:
		p2 = 0xFF
	case TouchPolicyAlways:
		p2 = 0xFE
	default:
		return piverrors.Newf(piverrors.KindArgument, "admin key touch policy %d not supported by SET MGMT KEY", touchpol)
	}

	body := make([]byte, 0, 3+len(key))
	body = append(body, byte(alg), 0x9B, byte(len(key)))
	body = append(body, key...)

	_, err := s.transceive(ctx, "SET MGMT KEY", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoSetAdmin, P1: 0xFF, P2: p2, Data: body,
	})
	return err
}

// SetPINRetries issues the YubicoPIV SET PIN RETRIES extension, reprogramming
// the PIN and PUK retry counters. Grounded on ykpiv_set_pin_retries
// (original_source/piv.c:3611). This resets the PIN and PUK to their factory
// defaults as a side effect, matching the card's own behavior.
func SetPINRetries(ctx context.Context, s *Session, pinRetries, pukRetries byte) error {
	_, err := s.transceive(ctx, "SET PIN RETRIES", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoSetRetries, P1: pinRetries, P2: pukRetries,
	})
	return err
}
