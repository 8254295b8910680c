package cryptoutil

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"pivcard/piverrors"
)

// Digest identifies a hash the PIV sign/box KDF path can use, by wire name.
type Digest struct {
	Name   string
	Size   int
	New    func() hash.Hash
	// oid is the DER-encoded AlgorithmIdentifier OID bytes used inside a
	// PKCS#1 v1.5 DigestInfo for this digest (RFC 8017 appendix A.2.4).
	oid []byte
}

var digests = map[string]Digest{
	"sha1": {
		Name: "sha1", Size: sha1.Size, New: sha1.New,
		oid: []byte{0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a},
	},
	"sha256": {
		Name: "sha256", Size: sha256.Size, New: sha256.New,
		oid: []byte{0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01},
	},
	"sha384": {
		Name: "sha384", Size: sha512.Size384, New: sha512.New384,
		oid: []byte{0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02},
	},
	"sha512": {
		Name: "sha512", Size: sha512.Size, New: sha512.New,
		oid: []byte{0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03},
	},
}

// DigestByName resolves a KDF/hash wire name to its implementation.
func DigestByName(name string) (Digest, error) {
	d, ok := digests[name]
	if !ok {
		return Digest{}, piverrors.Newf(piverrors.KindBadAlgorithm, "unknown digest %q", name)
	}
	return d, nil
}

// DefaultKDFName is the box format's default KDF.
const DefaultKDFName = "sha512"

// Sum computes the digest of data.
func (d Digest) Sum(data []byte) []byte {
	h := d.New()
	h.Write(data)
	return h.Sum(nil)
}

// digestInfoHeader builds the DER prefix of a PKCS#1 v1.5 DigestInfo for
// this digest: SEQUENCE { SEQUENCE { OID, NULL }, OCTET STRING (len) }, up
// to but not including the raw digest bytes. Built by explicit byte
// assembly rather than encoding/asn1.Marshal.
func (d Digest) digestInfoHeader() []byte {
	// AlgorithmIdentifier: SEQUENCE { OID, NULL }
	algID := make([]byte, 0, len(d.oid)+2)
	algID = append(algID, d.oid...)
	algID = append(algID, 0x05, 0x00) // NULL
	algIDSeq := asn1Sequence(algID)

	// OCTET STRING header for the digest itself (appended by the caller).
	digestOctetHeader := asn1Length(0x04, d.Size)

	inner := make([]byte, 0, len(algIDSeq)+len(digestOctetHeader))
	inner = append(inner, algIDSeq...)
	inner = append(inner, digestOctetHeader...)

	return asn1Sequence(inner)
}

// DigestInfo builds a complete PKCS#1 v1.5 DigestInfo for a message whose
// digest has already been computed by Sum, for the RSA pre-hash
// signing step.
func (d Digest) DigestInfo(digest []byte) []byte {
	if len(digest) != d.Size {
		digest = d.Sum(digest) // defensive: caller passed raw message
	}
	header := d.digestInfoHeader()
	out := make([]byte, 0, len(header)+len(digest))
	out = append(out, header...)
	out = append(out, digest...)
	return out
}

// PKCS1v15Pad builds a PKCS#1 v1.5 block-type-01 signature padding block of
// exactly modulusBytes bytes around digestInfo.
func PKCS1v15Pad(digestInfo []byte, modulusBytes int) ([]byte, error) {
	// 00 01 FF..FF 00 digestInfo
	padLen := modulusBytes - len(digestInfo) - 3
	if padLen < 8 {
		return nil, piverrors.New(piverrors.KindArgument, "modulus too small for PKCS#1 v1.5 padding of this DigestInfo")
	}
	out := make([]byte, 0, modulusBytes)
	out = append(out, 0x00, 0x01)
	for i := 0; i < padLen; i++ {
		out = append(out, 0xFF)
	}
	out = append(out, 0x00)
	out = append(out, digestInfo...)
	return out, nil
}

// asn1Sequence wraps content in a SEQUENCE tag/length header.
func asn1Sequence(content []byte) []byte {
	return asn1Wrap(0x30, content)
}

// asn1Wrap prepends a DER tag/length header for tag around content.
func asn1Wrap(tag byte, content []byte) []byte {
	header := asn1LengthHeader(len(content))
	out := make([]byte, 0, 1+len(header)+len(content))
	out = append(out, tag)
	out = append(out, header...)
	out = append(out, content...)
	return out
}

// asn1Length returns a tag+length header only (no content), used when the
// content is appended separately by the caller (the digest bytes).
func asn1Length(tag byte, contentLen int) []byte {
	header := asn1LengthHeader(contentLen)
	out := make([]byte, 0, 1+len(header))
	out = append(out, tag)
	out = append(out, header...)
	return out
}

// asn1LengthHeader encodes a DER length (short form below 0x80, long form
// above), matching ordinary X.690 DER rules.
func asn1LengthHeader(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var bytesNeeded int
	for v := n; v > 0; v >>= 8 {
		bytesNeeded++
	}
	out := make([]byte, 1+bytesNeeded)
	out[0] = 0x80 | byte(bytesNeeded)
	for i := bytesNeeded; i >= 1; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out
}
