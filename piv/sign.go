package piv

import (
	"context"

	"pivcard/apdu"
	"pivcard/cryptoutil"
	"pivcard/piverrors"
	"pivcard/tlv"
)

// SignOptions controls pre-hash behavior for Sign's
// host-side pre-processing rules.
type SignOptions struct {
	// Hash names the digest to use: "sha1", "sha256", "sha384" or
	// "sha512". Empty selects the preferred hash for the algorithm.
	Hash string
	// Prehashed, when true, treats message as an already-computed digest
	// (skips the internal Sum call). Ignored for card-hash variants.
	Prehashed bool
}

// Sign issues GENERAL AUTHENTICATE to produce a signature over message
// with the key in slot under alg, performing the RSA DigestInfo/PKCS#1
// padding, ECDSA raw-digest, or card-hash (raw message) pre-processing spec
// 4.2 describes.
func Sign(ctx context.Context, s *Session, slot byte, alg Algorithm, rsaModulusBytes int, message []byte, opts SignOptions) ([]byte, error) {
	hashName := opts.Hash
	if hashName == "" {
		hashName = preferredHash(alg)
	}

	wireAlg := alg
	var payload []byte

	switch {
	case alg.IsCardHash():
		// alg goes on the wire unchanged: the caller passes the card-hash
		// variant itself, and Sign does not substitute it for a slot's
		// standard algorithm. The raw message is sent and the card
		// computes the digest itself.
		cardDigest := cardHashDigestName(alg)
		if hashName != "" && hashName != cardDigest {
			// Downgrade to whatever the card-hash variant actually
			// supports.
			hashName = cardDigest
		}
		payload = message

	case alg.IsRSA():
		digest, err := hashMessage(hashName, message, opts.Prehashed)
		if err != nil {
			return nil, err
		}
		d, err := cryptoutil.DigestByName(hashName)
		if err != nil {
			return nil, err
		}
		info := d.DigestInfo(digest)
		padded, err := cryptoutil.PKCS1v15Pad(info, rsaModulusBytes)
		if err != nil {
			return nil, err
		}
		payload = padded

	case alg.IsECC():
		digest, err := hashMessage(hashName, message, opts.Prehashed)
		if err != nil {
			return nil, err
		}
		payload = digest

	default:
		return nil, piverrors.Newf(piverrors.KindBadAlgorithm, "unsupported algorithm %#x for signing", byte(alg))
	}

	body := tlv.Encode(tagDynAuth, append(
		tlv.Encode(tagDynAuthResponse, nil),
		tlv.Encode(tagDynAuthChallenge, payload)...,
	))

	resp, err := s.transceive(ctx, "SIGN", apdu.Command{
		Class: 0x00, Ins: apdu.InsGeneralAuthenticate, P1: byte(wireAlg), P2: slot,
		Data: body, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, err
	}

	sig, err := extractDynAuthField(resp.Data, tagDynAuthResponse)
	if err != nil {
		s.logParseError("SIGN", err)
		return nil, err
	}
	return sig, nil
}

// ECDH issues GENERAL AUTHENTICATE to compute a shared secret between the
// key in slot and peerPoint (an uncompressed EC point), via PIV's
// "ECDH" operation. The returned secret is exactly the curve's field-size
// ceiling in bytes.
func ECDH(ctx context.Context, s *Session, slot byte, alg Algorithm, peerPoint []byte) ([]byte, error) {
	body := tlv.Encode(tagDynAuth, append(
		tlv.Encode(tagDynAuthResponse, nil),
		tlv.Encode(tagDynAuthPeerPoint, peerPoint)...,
	))

	resp, err := s.transceive(ctx, "ECDH", apdu.Command{
		Class: 0x00, Ins: apdu.InsGeneralAuthenticate, P1: byte(alg), P2: slot,
		Data: body, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, err
	}

	secret, err := extractDynAuthField(resp.Data, tagDynAuthResponse)
	if err != nil {
		s.logParseError("ECDH", err)
		return nil, err
	}
	return secret, nil
}

// extractDynAuthField unwraps the outer 0x7C dynamic-authentication
// template and returns the value of the requested inner tag.
func extractDynAuthField(data []byte, tag uint32) ([]byte, error) {
	outer, ok, err := tlv.Find(data, tagDynAuth)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindInvalidData, "decode dynamic authentication template", err)
	}
	if !ok {
		return nil, piverrors.New(piverrors.KindPIVTag, "response missing tag 0x7C")
	}
	inner, ok, err := tlv.Find(outer.Value, tag)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindInvalidData, "decode dynamic authentication field", err)
	}
	if !ok {
		return nil, piverrors.Newf(piverrors.KindPIVTag, "dynamic authentication template missing tag %#x", tag)
	}
	return inner.Value, nil
}

// preferredHash implements the default hash selection: SHA-256 for
// RSA and P-256, SHA-384 for P-384.
func preferredHash(alg Algorithm) string {
	switch alg {
	case AlgECCP384, AlgECCP384SHA1, AlgECCP384SHA256, AlgECCP384SHA384:
		return "sha384"
	default:
		return "sha256"
	}
}

func hashMessage(hashName string, message []byte, prehashed bool) ([]byte, error) {
	if prehashed {
		return message, nil
	}
	d, err := cryptoutil.DigestByName(hashName)
	if err != nil {
		return nil, err
	}
	return d.Sum(message), nil
}
