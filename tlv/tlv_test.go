package tlv

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		tag  uint32
		val  []byte
	}{
		{"short tag short len", 0x80, []byte{0x01, 0x02, 0x03}},
		{"two byte tag", 0x5F50, []byte("https://example.com")},
		{"long form length", 0x53, make([]byte, 200)},
		{"two byte long form length", 0x70, make([]byte, 400)},
		{"empty value", 0x82, nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			enc := Encode(c.tag, c.val)
			dec, n, err := Decode(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if n != len(enc) {
				t.Fatalf("consumed %d bytes, want %d", n, len(enc))
			}
			if dec.Tag != c.tag {
				t.Fatalf("tag = %X, want %X", dec.Tag, c.tag)
			}
			if !bytes.Equal(dec.Value, c.val) && !(len(dec.Value) == 0 && len(c.val) == 0) {
				t.Fatalf("value mismatch")
			}
		})
	}
}

func TestDecodeAllSiblings(t *testing.T) {
	buf := append(Encode(0x4F, []byte{0xAA}), Encode(0x50, []byte("label"))...)
	all, err := DecodeAll(buf)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(all) != 2 || all[0].Tag != 0x4F || all[1].Tag != 0x50 {
		t.Fatalf("unexpected decode: %+v", all)
	}
}

func TestFind(t *testing.T) {
	buf := append(Encode(0x4F, []byte{0x01}), Encode(0xAC, []byte{0x02})...)
	tl, ok, err := Find(buf, 0xAC)
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(tl.Value, []byte{0x02}) {
		t.Fatalf("unexpected value %X", tl.Value)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := Decode([]byte{0x80, 0x05, 0x01})
	if err == nil {
		t.Fatal("expected error for truncated TLV")
	}
}
