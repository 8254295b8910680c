package box

import (
	"bytes"
	"testing"

	"pivcard/cryptoutil"
	"pivcard/piverrors"
)

func TestSealOfflineOpenOfflineRoundTrip(t *testing.T) {
	for _, curve := range []cryptoutil.Curve{cryptoutil.CurveP256, cryptoutil.CurveP384} {
		recipPriv, err := cryptoutil.GenerateECDSA(curve)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range []int{1, 8, 9, 16, 17} {
			plaintext := bytes.Repeat([]byte{0x7A}, n)
			b, err := SealOffline(&recipPriv.PublicKey, plaintext, SealOptions{})
			if err != nil {
				t.Fatalf("curve=%v n=%d: seal: %v", curve, n, err)
			}
			if err := OpenOffline(b, recipPriv); err != nil {
				t.Fatalf("curve=%v n=%d: open: %v", curve, n, err)
			}
			if !bytes.Equal(b.Plaintext, plaintext) {
				t.Fatalf("curve=%v n=%d: round trip mismatch", curve, n)
			}
		}
	}
}

func TestSealOfflineRejectsEmptyPlaintext(t *testing.T) {
	recipPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SealOffline(&recipPriv.PublicKey, nil, SealOptions{}); err == nil {
		t.Fatal("expected rejection of empty plaintext")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, curve := range []cryptoutil.Curve{cryptoutil.CurveP256, cryptoutil.CurveP384} {
		for _, guidValid := range []bool{false, true} {
			recipPriv, err := cryptoutil.GenerateECDSA(curve)
			if err != nil {
				t.Fatal(err)
			}
			b, err := SealOffline(&recipPriv.PublicKey, []byte("round trip me"), SealOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if guidValid {
				b.GUIDValid = true
				b.GUID = bytes.Repeat([]byte{0x01}, 16)
				b.SlotID = 0x9A
			}

			enc, err := Encode(b)
			if err != nil {
				t.Fatal(err)
			}
			dec, err := Decode(enc)
			if err != nil {
				t.Fatal(err)
			}

			if dec.GUIDValid != b.GUIDValid {
				t.Fatalf("guid_valid mismatch: got %v want %v", dec.GUIDValid, b.GUIDValid)
			}
			if !cryptoutil.EqualPublic(dec.EphPublic, b.EphPublic) {
				t.Fatal("ephemeral public key not preserved")
			}
			if !cryptoutil.EqualPublic(dec.RecipPub, b.RecipPub) {
				t.Fatal("recipient public key not preserved")
			}
			if len(dec.Nonce) != 16 {
				t.Fatalf("nonce length = %d, want 16", len(dec.Nonce))
			}
			if dec.CipherName != b.CipherName || dec.KDFName != b.KDFName {
				t.Fatal("cipher/kdf names not preserved")
			}
			if !bytes.Equal(dec.Ciphertext, b.Ciphertext) {
				t.Fatal("ciphertext not preserved")
			}
		}
	}
}

func TestEncodeDecodeDefaultCipherIVLength(t *testing.T) {
	recipPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	if err != nil {
		t.Fatal(err)
	}
	b, err := SealOffline(&recipPriv.PublicKey, []byte("x"), SealOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.IV) != 12 {
		t.Fatalf("chacha20-poly1305 IV length = %d, want 12", len(b.IV))
	}
	enc, err := Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec.IV) != 12 {
		t.Fatalf("decoded chacha20-poly1305 IV length = %d, want 12", len(dec.IV))
	}
}

func TestOpenRejectsBitFlips(t *testing.T) {
	recipPriv, err := cryptoutil.GenerateECDSA(cryptoutil.CurveP256)
	if err != nil {
		t.Fatal(err)
	}

	fresh := func() *Box {
		b, err := SealOffline(&recipPriv.PublicKey, []byte("hello"), SealOptions{})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	flip := func(b []byte) { b[0] ^= 0x01 }

	t.Run("ciphertext", func(t *testing.T) {
		b := fresh()
		flip(b.Ciphertext)
		err := OpenOffline(b, recipPriv)
		if !piverrors.CausedBy(err, piverrors.KindBoxData) {
			t.Fatalf("expected BoxDataError, got %v", err)
		}
	})
	t.Run("iv", func(t *testing.T) {
		b := fresh()
		flip(b.IV)
		err := OpenOffline(b, recipPriv)
		if !piverrors.CausedBy(err, piverrors.KindBoxData) {
			t.Fatalf("expected BoxDataError, got %v", err)
		}
	})
	t.Run("nonce", func(t *testing.T) {
		b := fresh()
		flip(b.Nonce)
		err := OpenOffline(b, recipPriv)
		if !piverrors.CausedBy(err, piverrors.KindBoxData) {
			t.Fatalf("expected BoxDataError, got %v", err)
		}
	})
	t.Run("ephemeral public", func(t *testing.T) {
		b := fresh()
		enc := cryptoutil.SerializeUncompressedPoint(b.EphPublic)
		flip(enc[1:]) // flip an X coordinate byte, not the 0x04 prefix
		mutated, err := cryptoutil.ParseUncompressedPoint(cryptoutil.CurveP256, enc)
		if err != nil {
			// a flipped coordinate can land off-curve; that's still a
			// valid way for this property to hold (decode itself fails).
			return
		}
		b.EphPublic = mutated
		err = OpenOffline(b, recipPriv)
		if err == nil {
			t.Fatal("expected failure on flipped ephemeral public key")
		}
	})
}
