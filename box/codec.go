package box

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"

	"golang.org/x/crypto/ssh"

	"pivcard/cryptoutil"
	"pivcard/piverrors"
)

// magic identifies a v2 (or later) box buffer, per the binary
// format table. A legacy v1 buffer is detected instead by its first byte
// being 0x01 (no magic prefix).
var magic = [2]byte{0xB0, 0xC5}

// Encode serializes b per the binary format table. It always
// produces the current version; legacy v1 is decode-only.
func Encode(b *Box) ([]byte, error) {
	var out []byte
	out = append(out, magic[0], magic[1])
	out = append(out, CurrentVersion)
	out = append(out, boolByte(b.GUIDValid))

	if b.GUIDValid {
		out = append(out, lenPrefixed(b.GUID)...)
		out = append(out, b.SlotID)
	} else {
		out = append(out, 0x00)
	}

	out = append(out, lenPrefixed([]byte(b.CipherName))...)
	out = append(out, lenPrefixed([]byte(b.KDFName))...)
	out = append(out, lenPrefixed(b.Nonce)...)
	out = append(out, lenPrefixed([]byte(b.Curve.Name()))...)
	out = append(out, lenPrefixed(cryptoutil.SerializeUncompressedPoint(b.RecipPub))...)
	out = append(out, lenPrefixed(cryptoutil.SerializeUncompressedPoint(b.EphPublic))...)
	out = append(out, lenPrefixed(b.IV)...)

	ctLen := make([]byte, 4)
	binary.BigEndian.PutUint32(ctLen, uint32(len(b.Ciphertext)))
	out = append(out, ctLen...)
	out = append(out, b.Ciphertext...)

	return out, nil
}

// Decode parses a box buffer, dispatching to the legacy v1 layout when the
// first byte is 0x01 (no magic prefix present).
func Decode(buf []byte) (*Box, error) {
	if len(buf) == 0 {
		return nil, piverrors.New(piverrors.KindBoxArgument, "empty box buffer")
	}
	if buf[0] == LegacyVersion {
		return decodeV1(buf)
	}
	return decodeV2(buf)
}

func decodeV2(buf []byte) (*Box, error) {
	r := &reader{buf: buf}

	m0, err := r.byte()
	if err != nil {
		return nil, wrapCodec(err)
	}
	m1, err := r.byte()
	if err != nil {
		return nil, wrapCodec(err)
	}
	if m0 != magic[0] || m1 != magic[1] {
		return nil, piverrors.New(piverrors.KindBoxVersion, "bad box magic")
	}

	version, err := r.byte()
	if err != nil {
		return nil, wrapCodec(err)
	}
	if version != CurrentVersion {
		return nil, piverrors.Newf(piverrors.KindBoxVersion, "unsupported box version %d", version)
	}

	guidValidByte, err := r.byte()
	if err != nil {
		return nil, wrapCodec(err)
	}
	b := &Box{Version: version, GUIDValid: guidValidByte != 0}

	guid, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	if b.GUIDValid {
		if len(guid) != 16 {
			return nil, piverrors.New(piverrors.KindBoxArgument, "box GUID must be 16 bytes")
		}
		b.GUID = guid
		slot, err := r.byte()
		if err != nil {
			return nil, wrapCodec(err)
		}
		b.SlotID = slot
	}

	cipherName, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	b.CipherName = string(cipherName)

	kdfName, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	b.KDFName = string(kdfName)

	nonce, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	b.Nonce = nonce

	curveName, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	curve, err := cryptoutil.CurveByName(string(curveName))
	if err != nil {
		return nil, err
	}
	b.Curve = curve

	recipBytes, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	recipPub, err := cryptoutil.ParseUncompressedPoint(curve, recipBytes)
	if err != nil {
		return nil, err
	}
	b.RecipPub = recipPub

	ephBytes, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	ephPub, err := cryptoutil.ParseUncompressedPoint(curve, ephBytes)
	if err != nil {
		return nil, err
	}
	b.EphPublic = ephPub

	iv, err := r.lenPrefixed()
	if err != nil {
		return nil, wrapCodec(err)
	}
	b.IV = iv

	ctLen, err := r.uint32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	ct, err := r.take(int(ctLen))
	if err != nil {
		return nil, wrapCodec(err)
	}
	b.Ciphertext = ct

	return b, nil
}

// decodeV1 parses the legacy pivy box layout, grounded on
// piv_box_read_old_v1 (original_source/piv.c): version byte, a 16-byte GUID
// and slot id that are unconditionally present (pivy's v1 box predates the
// guidslot_valid flag entirely), the ephemeral and recipient keys each as a
// 4-byte-length-prefixed OpenSSH wire public-key blob (sshkey_fromb, not the
// bare curve-name-plus-point encoding v2 uses), then cipher name, KDF name,
// IV and ciphertext, every field using pivy's standard 4-byte (not v2's
// 1-byte) sshbuf length prefix. There is no nonce field.
func decodeV1(buf []byte) (*Box, error) {
	r := &reader{buf: buf}

	version, err := r.byte()
	if err != nil {
		return nil, wrapCodec(err)
	}
	if version != LegacyVersion {
		return nil, piverrors.Newf(piverrors.KindBoxVersion, "decodeV1 called on non-v1 buffer (version=%d)", version)
	}

	guid, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	if len(guid) != 16 {
		return nil, piverrors.New(piverrors.KindBoxArgument, "v1 box GUID must be 16 bytes")
	}

	slot, err := r.byte()
	if err != nil {
		return nil, wrapCodec(err)
	}

	ephBlob, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	ephPub, curve, err := parseSSHECPublicKey(ephBlob)
	if err != nil {
		return nil, err
	}

	recipBlob, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	recipPub, recipCurve, err := parseSSHECPublicKey(recipBlob)
	if err != nil {
		return nil, err
	}
	if recipCurve != curve {
		return nil, piverrors.New(piverrors.KindBoxArgument, "v1 box ephemeral and recipient keys use different curves")
	}

	cipherName, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	kdfName, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	iv, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}
	ct, err := r.lenPrefixed32()
	if err != nil {
		return nil, wrapCodec(err)
	}

	return &Box{
		Version:    LegacyVersion,
		GUIDValid:  true,
		GUID:       guid,
		SlotID:     slot,
		Curve:      curve,
		EphPublic:  ephPub,
		RecipPub:   recipPub,
		CipherName: string(cipherName),
		KDFName:    string(kdfName),
		IV:         iv,
		Ciphertext: ct,
	}, nil
}

// parseSSHECPublicKey decodes an OpenSSH wire-format ECDSA public key blob
// (type string, curve name, point), the representation pivy's v1 box uses
// for both the ephemeral and recipient keys via sshkey_fromb.
func parseSSHECPublicKey(blob []byte) (*ecdsa.PublicKey, cryptoutil.Curve, error) {
	sshPub, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return nil, 0, piverrors.Wrap(piverrors.KindBoxArgument, "parse v1 box SSH key blob", err)
	}
	cryptoPub, ok := sshPub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, 0, piverrors.New(piverrors.KindBoxArgument, "v1 box key blob is not an ECDSA key")
	}
	ecPub, ok := cryptoPub.CryptoPublicKey().(*ecdsa.PublicKey)
	if !ok {
		return nil, 0, piverrors.New(piverrors.KindBoxArgument, "v1 box key blob is not an ECDSA key")
	}
	switch ecPub.Curve {
	case elliptic.P256():
		return ecPub, cryptoutil.CurveP256, nil
	case elliptic.P384():
		return ecPub, cryptoutil.CurveP384, nil
	default:
		return nil, 0, piverrors.New(piverrors.KindBoxArgument, "v1 box key uses unsupported curve")
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func lenPrefixed(b []byte) []byte {
	out := make([]byte, 1+len(b))
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out
}

func wrapCodec(err error) error {
	return piverrors.Wrap(piverrors.KindBoxArgument, "decode box", err)
}

// reader is a small cursor over a box buffer.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errShortBuffer
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errShortBuffer
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) lenPrefixed() ([]byte, error) {
	n, err := r.byte()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// lenPrefixed32 reads a pivy sshbuf-style field: a 4-byte big-endian length
// followed by that many bytes. v1 boxes use this for every variable-length
// field; v2 boxes use the 1-byte lenPrefixed form instead.
func (r *reader) lenPrefixed32() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

var errShortBuffer = piverrors.New(piverrors.KindBoxArgument, "box buffer truncated")
