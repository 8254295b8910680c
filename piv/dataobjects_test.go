package piv

import (
	"bytes"
	"context"
	"testing"

	"pivcard/tlv"
)

func withStatus(data []byte, sw1, sw2 byte) []byte {
	return append(append([]byte{}, data...), sw1, sw2)
}

func TestGetCHUIDParsesGUID(t *testing.T) {
	guid := bytes.Repeat([]byte{0xAB}, 16)
	content := tlv.Encode(tagCardGUID, guid)
	reply := tlv.Encode(tagGetDataReply, content)

	card := &fixedCard{reply: withStatus(reply, 0x90, 0x00)}
	s := NewSession(card, nil)

	chuid, err := GetCHUID(context.Background(), s)
	if err != nil {
		t.Fatalf("GetCHUID: %v", err)
	}
	if !bytes.Equal(chuid.GUID, guid) {
		t.Fatalf("GUID = %x, want %x", chuid.GUID, guid)
	}
}

func TestGetDiscoveryUnwrapsNestedWrapper(t *testing.T) {
	inner := append(append([]byte{}, tlv.Encode(tagAID, AID)...), tlv.Encode(tagPINPolicy, []byte{0x40, 0x00})...)
	wrapped := tlv.Encode(tagDiscovery, inner)
	reply := tlv.Encode(tagGetDataReply, wrapped)

	card := &fixedCard{reply: withStatus(reply, 0x90, 0x00)}
	s := NewSession(card, nil)

	d, err := GetDiscovery(context.Background(), s)
	if err != nil {
		t.Fatalf("GetDiscovery: %v", err)
	}
	if !bytes.Equal(d.AID, AID) {
		t.Fatalf("AID = %x, want %x", d.AID, AID)
	}
	if len(d.PINPolicy) != 2 || d.PINPolicy[0] != 0x40 {
		t.Fatalf("PINPolicy = %x, want 40 00", d.PINPolicy)
	}
}
