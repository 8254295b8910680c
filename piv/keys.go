package piv

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"math/big"

	"pivcard/apdu"
	"pivcard/cryptoutil"
	"pivcard/piverrors"
	"pivcard/tlv"
)

// PINPolicy and TouchPolicy are the optional GENERATE ASYMMETRIC policy
// bytes (tags 0xAA/0xAB).
type PINPolicy byte
type TouchPolicy byte

const (
	PINPolicyDefault PINPolicy = 0x00
	PINPolicyNever   PINPolicy = 0x01
	PINPolicyOnce    PINPolicy = 0x02
	PINPolicyAlways  PINPolicy = 0x03

	TouchPolicyDefault TouchPolicy = 0x00
	TouchPolicyNever   TouchPolicy = 0x01
	TouchPolicyAlways  TouchPolicy = 0x02
	TouchPolicyCached  TouchPolicy = 0x03
)

// GeneratedKey is a public key GENERATE ASYMMETRIC returned, already
// parsed and validated.
type GeneratedKey struct {
	Algorithm Algorithm
	RSAPublic *rsa.PublicKey
	ECPublic  *ecdsa.PublicKey
}

// GenerateAsymmetric issues GENERATE ASYMMETRIC for slot with the given
// algorithm and optional policies, returning the card-generated public key,
// via the card's "Generate / Import asymmetric" command. touchpol=cached is
// rejected locally on Yubico firmware older than 4.3.0 (callers pass the
// firmware version they already probed; a zero version skips the check).
func GenerateAsymmetric(ctx context.Context, s *Session, slot byte, alg Algorithm, pinpol PINPolicy, touchpol TouchPolicy, firmware [3]byte) (*GeneratedKey, error) {
	if touchpol == TouchPolicyCached && !firmwareAtLeast(firmware, 4, 3, 0) {
		return nil, piverrors.New(piverrors.KindNotSupported, "cached touch policy requires YubicoPIV firmware 4.3.0 or later")
	}

	var control []byte
	control = append(control, tlv.Encode(tagGenAsymAlg, []byte{byte(alg)})...)
	if pinpol != PINPolicyDefault {
		control = append(control, tlv.Encode(tagGenAsymPINPol, []byte{byte(pinpol)})...)
	}
	if touchpol != TouchPolicyDefault {
		control = append(control, tlv.Encode(tagGenAsymTouchPol, []byte{byte(touchpol)})...)
	}
	body := tlv.Encode(tagGenAsymControl, control)

	resp, err := s.transceive(ctx, "GENERATE ASYMMETRIC", apdu.Command{
		Class: 0x00, Ins: apdu.InsGenerateAsym, P1: 0x00, P2: slot,
		Data: body, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, err
	}
	return parseGeneratedKey(s, alg, resp.Data)
}

func parseGeneratedKey(s *Session, alg Algorithm, data []byte) (*GeneratedKey, error) {
	outer, ok, err := tlv.Find(data, tagGenAsymResponse)
	if err != nil || !ok {
		werr := piverrors.New(piverrors.KindPIVTag, "GENERATE ASYMMETRIC reply missing tag 0x7F49")
		s.logParseError("GENERATE ASYMMETRIC", werr)
		return nil, werr
	}
	entries, err := tlv.DecodeAll(outer.Value)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode public key template", err)
		s.logParseError("GENERATE ASYMMETRIC", werr)
		return nil, werr
	}

	key := &GeneratedKey{Algorithm: alg}
	if alg.IsRSA() {
		var modulus, exponent []byte
		for _, e := range entries {
			switch e.Tag {
			case tagRSAModulus:
				modulus = e.Value
			case tagRSAExponent:
				exponent = e.Value
			}
		}
		if modulus == nil || exponent == nil {
			werr := piverrors.New(piverrors.KindInvalidData, "RSA public key template missing modulus or exponent")
			s.logParseError("GENERATE ASYMMETRIC", werr)
			return nil, werr
		}
		key.RSAPublic = &rsa.PublicKey{
			N: new(big.Int).SetBytes(modulus),
			E: int(new(big.Int).SetBytes(exponent).Int64()),
		}
		return key, nil
	}

	if alg.IsECC() {
		curve := eccCurveFor(alg)
		for _, e := range entries {
			if e.Tag == tagECPoint {
				pub, err := cryptoutil.ParseUncompressedPoint(curve, e.Value)
				if err != nil {
					werr := piverrors.Wrap(piverrors.KindInvalidData, "parse EC public key point", err)
					s.logParseError("GENERATE ASYMMETRIC", werr)
					return nil, werr
				}
				key.ECPublic = pub
				return key, nil
			}
		}
		werr := piverrors.New(piverrors.KindInvalidData, "EC public key template missing tag 0x86")
		s.logParseError("GENERATE ASYMMETRIC", werr)
		return nil, werr
	}

	return nil, piverrors.Newf(piverrors.KindBadAlgorithm, "unsupported algorithm %#x for key generation", byte(alg))
}

func eccCurveFor(alg Algorithm) cryptoutil.Curve {
	if alg == AlgECCP384 {
		return cryptoutil.CurveP384
	}
	return cryptoutil.CurveP256
}

func firmwareAtLeast(v [3]byte, major, minor, patch byte) bool {
	if v == [3]byte{} {
		return true // unknown firmware: don't block locally, let the card reject it
	}
	if v[0] != major {
		return v[0] > major
	}
	if v[1] != minor {
		return v[1] > minor
	}
	return v[2] >= patch
}

// ImportRSA imports RSA CRT private-key components via YK_IMPORT_ASYM
// (INS 0xFE), tags 0x01..0x05 (p, q, dmp1, dmq1, iqmp).
func ImportRSA(ctx context.Context, s *Session, slot byte, alg Algorithm, p, q, dmp1, dmq1, iqmp []byte, pinpol PINPolicy, touchpol TouchPolicy) error {
	var body []byte
	body = append(body, tlv.Encode(0x01, p)...)
	body = append(body, tlv.Encode(0x02, q)...)
	body = append(body, tlv.Encode(0x03, dmp1)...)
	body = append(body, tlv.Encode(0x04, dmq1)...)
	body = append(body, tlv.Encode(0x05, iqmp)...)
	if pinpol != PINPolicyDefault {
		body = append(body, tlv.Encode(tagGenAsymPINPol, []byte{byte(pinpol)})...)
	}
	if touchpol != TouchPolicyDefault {
		body = append(body, tlv.Encode(tagGenAsymTouchPol, []byte{byte(touchpol)})...)
	}
	_, err := s.transceive(ctx, "IMPORT ASYMMETRIC", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoImportAsym, P1: byte(alg), P2: slot, Data: body,
	})
	return err
}

// ImportECDSA imports an ECDSA private scalar via YK_IMPORT_ASYM tag 0x06.
func ImportECDSA(ctx context.Context, s *Session, slot byte, alg Algorithm, scalar []byte, pinpol PINPolicy, touchpol TouchPolicy) error {
	var body []byte
	body = append(body, tlv.Encode(0x06, scalar)...)
	if pinpol != PINPolicyDefault {
		body = append(body, tlv.Encode(tagGenAsymPINPol, []byte{byte(pinpol)})...)
	}
	if touchpol != TouchPolicyDefault {
		body = append(body, tlv.Encode(tagGenAsymTouchPol, []byte{byte(touchpol)})...)
	}
	_, err := s.transceive(ctx, "IMPORT ASYMMETRIC", apdu.Command{
		Class: 0x00, Ins: apdu.InsYubicoImportAsym, P1: byte(alg), P2: slot, Data: body,
	})
	return err
}
