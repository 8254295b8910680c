// Package cryptoutil is the crypto provider treated as an
// external collaborator: ECDSA/RSA key parsing and serialization, ECDH,
// X.509 parsing, and the symmetric ciphers/digests the PIV protocol and box
// primitive need. It is backed entirely by the standard library plus
// golang.org/x/crypto for the box's ChaCha20-Poly1305 AEAD; the KDF digests
// come from the standard library.
package cryptoutil

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"

	"pivcard/piverrors"
)

// Curve identifies one of the two NIST curves PIV cards issue ECDSA keys on.
type Curve int

const (
	CurveP256 Curve = iota
	CurveP384
)

func (c Curve) ecdsaCurve() elliptic.Curve {
	switch c {
	case CurveP384:
		return elliptic.P384()
	default:
		return elliptic.P256()
	}
}

func (c Curve) ecdhCurve() ecdh.Curve {
	switch c {
	case CurveP384:
		return ecdh.P384()
	default:
		return ecdh.P256()
	}
}

// FieldSizeBytes returns ceil(field_bits/8), the length of an ECDH shared
// secret and of each coordinate in an uncompressed point.
func (c Curve) FieldSizeBytes() int {
	switch c {
	case CurveP384:
		return 48
	default:
		return 32
	}
}

// Name matches the curve name embedded in the box binary format.
func (c Curve) Name() string {
	switch c {
	case CurveP384:
		return "P-384"
	default:
		return "P-256"
	}
}

// CurveByName resolves the box format's curve name field back to a Curve.
func CurveByName(name string) (Curve, error) {
	switch name {
	case "P-256":
		return CurveP256, nil
	case "P-384":
		return CurveP384, nil
	default:
		return 0, piverrors.Newf(piverrors.KindBoxArgument, "unknown curve name %q", name)
	}
}

// GenerateECDSA creates a fresh ephemeral ECDSA key pair on curve.
func GenerateECDSA(curve Curve) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(curve.ecdsaCurve(), rand.Reader)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindBoxKey, "generate ephemeral key", err)
	}
	return key, nil
}

// SerializeUncompressedPoint encodes an ECDSA public key as an ISO
// uncompressed point (0x04 || X || Y), the wire format PIV GEN ASYM and the
// box binary format both use.
func SerializeUncompressedPoint(pub *ecdsa.PublicKey) []byte {
	size := (pub.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 1+2*size)
	out[0] = 0x04
	pub.X.FillBytes(out[1 : 1+size])
	pub.Y.FillBytes(out[1+size : 1+2*size])
	return out
}

// ParseUncompressedPoint decodes an ISO uncompressed point into an ECDSA
// public key on the given curve, validating that the point lies on it.
func ParseUncompressedPoint(curve Curve, data []byte) (*ecdsa.PublicKey, error) {
	ec := curve.ecdsaCurve()
	x, y := elliptic.Unmarshal(ec, data)
	if x == nil {
		return nil, piverrors.New(piverrors.KindInvalidData, "invalid uncompressed EC point")
	}
	return &ecdsa.PublicKey{Curve: ec, X: x, Y: y}, nil
}

// EqualPublic reports whether two ECDSA public keys are the same point on
// the same curve.
func EqualPublic(a, b *ecdsa.PublicKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Curve == b.Curve && a.X.Cmp(b.X) == 0 && a.Y.Cmp(b.Y) == 0
}

// ECDH computes the shared secret between an ephemeral private key and a
// peer's public key, both on the same curve, returning exactly
// curve.FieldSizeBytes() bytes.
func ECDH(priv *ecdsa.PrivateKey, peer *ecdsa.PublicKey) ([]byte, error) {
	privECDH, err := priv.ECDH()
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindBoxKey, "convert private key to ECDH", err)
	}
	peerECDH, err := peer.ECDH()
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindBoxKey, "convert peer public key to ECDH", err)
	}
	secret, err := privECDH.ECDH(peerECDH)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindBoxKey, "ECDH", err)
	}
	return secret, nil
}

// RSAPublicKey mirrors the modulus/exponent pair GEN ASYM returns for an
// RSA key (tags 0x81/0x82).
type RSAPublicKey = rsa.PublicKey

// ParseCertificate parses a DER-encoded X.509 certificate, as read back
// from a PIV cert data object.
func ParseCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindInvalidData, "parse X.509 certificate", err)
	}
	return cert, nil
}

// ConstantTimeEqual reports whether a and b are equal using constant-time
// comparison, for PIN/ADM key material.
func ConstantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Zero overwrites b with zero bytes in place, used to retire secret
// material (PIN bytes, derived keys, shared secrets, plaintexts) as soon as
// their owning call returns.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
