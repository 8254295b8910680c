package cryptoutil

import (
	"bytes"
	"testing"
)

func TestECDHRoundTrip(t *testing.T) {
	for _, curve := range []Curve{CurveP256, CurveP384} {
		a, err := GenerateECDSA(curve)
		if err != nil {
			t.Fatal(err)
		}
		b, err := GenerateECDSA(curve)
		if err != nil {
			t.Fatal(err)
		}

		s1, err := ECDH(a, &b.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		s2, err := ECDH(b, &a.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(s1, s2) {
			t.Fatalf("ECDH not symmetric for %v", curve)
		}
		if len(s1) != curve.FieldSizeBytes() {
			t.Fatalf("shared secret length = %d, want %d", len(s1), curve.FieldSizeBytes())
		}
	}
}

func TestUncompressedPointRoundTrip(t *testing.T) {
	key, err := GenerateECDSA(CurveP256)
	if err != nil {
		t.Fatal(err)
	}
	enc := SerializeUncompressedPoint(&key.PublicKey)
	if enc[0] != 0x04 {
		t.Fatalf("expected uncompressed point prefix 0x04, got %#x", enc[0])
	}
	dec, err := ParseUncompressedPoint(CurveP256, enc)
	if err != nil {
		t.Fatal(err)
	}
	if !EqualPublic(&key.PublicKey, dec) {
		t.Fatal("round-tripped public key does not match")
	}
}

func TestPKCS7PadUnpad(t *testing.T) {
	for _, n := range []int{0, 1, 8, 9, 16, 17} {
		data := bytes.Repeat([]byte{0x42}, n)
		padded := PKCS7Pad(data, 8)
		if len(padded)%8 != 0 || len(padded) == 0 {
			t.Fatalf("n=%d: bad padded length %d", n, len(padded))
		}
		unpadded, err := PKCS7Unpad(padded, 8)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if !bytes.Equal(unpadded, data) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestPKCS7UnpadRejectsBadPadding(t *testing.T) {
	cases := [][]byte{
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x00}, // pad byte 0
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x09}, // pad byte > blocksize
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x03, 0x02}, // mismatched pad bytes
	}
	for i, c := range cases {
		if _, err := PKCS7Unpad(c, 8); err == nil {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
}

func TestDigestInfoAndPKCS1v15Pad(t *testing.T) {
	d, err := DigestByName("sha256")
	if err != nil {
		t.Fatal(err)
	}
	digest := d.Sum([]byte("hello world"))
	info := d.DigestInfo(digest)
	if !bytes.HasSuffix(info, digest) {
		t.Fatal("DigestInfo does not end with the raw digest")
	}
	padded, err := PKCS1v15Pad(info, 256) // RSA-2048 modulus
	if err != nil {
		t.Fatal(err)
	}
	if len(padded) != 256 {
		t.Fatalf("padded length = %d, want 256", len(padded))
	}
	if padded[0] != 0x00 || padded[1] != 0x01 {
		t.Fatalf("bad PKCS#1 v1.5 block type header: % X", padded[:2])
	}
}
