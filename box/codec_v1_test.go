package box

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"testing"

	"golang.org/x/crypto/ssh"

	"pivcard/cryptoutil"
)

// buildV1Box hand-encodes a legacy pivy box buffer per piv_box_read_old_v1:
// version byte, 4-byte-length-prefixed GUID, slot id, 4-byte-length-prefixed
// SSH-wire ephemeral and recipient key blobs, then cipher/KDF/IV/ciphertext
// each with their own 4-byte length prefix. No
// guidslot_valid flag and no nonce field.
func buildV1Box(t *testing.T, guid []byte, slot byte, eph, recip *ecdsa.PublicKey, cipherName, kdfName string, iv, ct []byte) []byte {
	t.Helper()

	str32 := func(b []byte) []byte {
		out := make([]byte, 4+len(b))
		binary.BigEndian.PutUint32(out, uint32(len(b)))
		copy(out[4:], b)
		return out
	}
	sshBlob := func(pub *ecdsa.PublicKey) []byte {
		sshPub, err := ssh.NewPublicKey(pub)
		if err != nil {
			t.Fatalf("ssh.NewPublicKey: %v", err)
		}
		return str32(sshPub.Marshal())
	}

	var out []byte
	out = append(out, LegacyVersion)
	out = append(out, str32(guid)...)
	out = append(out, slot)
	out = append(out, sshBlob(eph)...)
	out = append(out, sshBlob(recip)...)
	out = append(out, str32([]byte(cipherName))...)
	out = append(out, str32([]byte(kdfName))...)
	out = append(out, str32(iv)...)
	out = append(out, str32(ct)...)
	return out
}

func TestDecodeV1MatchesLegacyWireFormat(t *testing.T) {
	ephPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	if err != nil {
		t.Fatal(err)
	}
	recipPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	if err != nil {
		t.Fatal(err)
	}

	guid := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x01}, 12)
	ct := []byte("ciphertext-and-tag")

	buf := buildV1Box(t, guid, 0x9A, &ephPriv.PublicKey, &recipPriv.PublicKey,
		cryptoutil.DefaultAEADName, cryptoutil.DefaultKDFName, iv, ct)

	b, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if b.Version != LegacyVersion {
		t.Fatalf("Version = %d, want %d", b.Version, LegacyVersion)
	}
	if !b.GUIDValid {
		t.Fatal("GUIDValid = false, want true: v1 boxes have no guidslot_valid flag, GUID is unconditional")
	}
	if !bytes.Equal(b.GUID, guid) {
		t.Fatal("GUID not preserved")
	}
	if b.SlotID != 0x9A {
		t.Fatalf("SlotID = %#x, want 0x9a", b.SlotID)
	}
	if !cryptoutil.EqualPublic(b.EphPublic, &ephPriv.PublicKey) {
		t.Fatal("ephemeral public key not preserved")
	}
	if !cryptoutil.EqualPublic(b.RecipPub, &recipPriv.PublicKey) {
		t.Fatal("recipient public key not preserved")
	}
	if b.CipherName != cryptoutil.DefaultAEADName || b.KDFName != cryptoutil.DefaultKDFName {
		t.Fatal("cipher/kdf names not preserved")
	}
	if b.Nonce != nil {
		t.Fatal("v1 boxes carry no nonce field")
	}
	if !bytes.Equal(b.IV, iv) {
		t.Fatal("IV not preserved")
	}
	if !bytes.Equal(b.Ciphertext, ct) {
		t.Fatal("ciphertext not preserved")
	}
}

func TestDecodeV1RejectsShortGUID(t *testing.T) {
	ephPriv, _ := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	recipPriv, _ := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)

	buf := buildV1Box(t, []byte{0x01, 0x02}, 0x9A, &ephPriv.PublicKey, &recipPriv.PublicKey,
		cryptoutil.DefaultAEADName, cryptoutil.DefaultKDFName, []byte{1, 2, 3}, []byte("ct"))

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected rejection of a short v1 box GUID")
	}
}

func TestDecodeV1RejectsCurveMismatch(t *testing.T) {
	ephPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	if err != nil {
		t.Fatal(err)
	}
	recipPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP384)
	if err != nil {
		t.Fatal(err)
	}

	buf := buildV1Box(t, bytes.Repeat([]byte{0x01}, 16), 0x9A, &ephPriv.PublicKey, &recipPriv.PublicKey,
		cryptoutil.DefaultAEADName, cryptoutil.DefaultKDFName, []byte{1, 2, 3}, []byte("ct"))

	if _, err := Decode(buf); err == nil {
		t.Fatal("expected rejection of mismatched ephemeral/recipient curves")
	}
}
