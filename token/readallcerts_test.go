package token

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"pivcard/piv"
	"pivcard/tlv"
)

// scriptedCard replies per GET DATA selector (matched by substring of the
// outgoing command), defaulting to "object not found" (SW 6A82) for any
// selector it has no entry for. Good enough for a single-exchange-per-call
// protocol like GET DATA.
type scriptedCard struct {
	byObjectTag map[string][]byte
}

func (c *scriptedCard) Transmit(ctx context.Context, cmd []byte) ([]byte, error) {
	for tag, reply := range c.byObjectTag {
		needle, _ := hex.DecodeString(tag)
		if bytes.Contains(cmd, needle) {
			return reply, nil
		}
	}
	return []byte{0x6A, 0x82}, nil
}

func selfSignedDERForTest(t *testing.T) []byte {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "token-test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(10, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return der
}

func TestReadAllCertsSkipsMissingSlotsAndKeepsFound(t *testing.T) {
	der := selfSignedDERForTest(t)
	var certBody []byte
	certBody = append(certBody, tlv.Encode(0x70, der)...)
	certBody = append(certBody, tlv.Encode(0x71, []byte{0x00})...)
	reply := tlv.Encode(0x53, certBody)
	reply = append(reply, 0x90, 0x00)

	authTag := hex.EncodeToString(piv.CertObjectTag(piv.SlotAuthentication))

	card := &scriptedCard{byObjectTag: map[string][]byte{
		authTag: reply,
	}}
	session := piv.NewSession(card, nil)
	tok := &Token{Protocol: card, Session: session}
	tok.transactionHeld = true

	if err := ReadAllCerts(context.Background(), tok); err != nil {
		t.Fatalf("ReadAllCerts: %v", err)
	}
	if !tok.AllSlotsRead() {
		t.Fatalf("AllSlotsRead() = false, want true")
	}

	slot := tok.GetSlot(piv.SlotAuthentication)
	if slot == nil {
		t.Fatalf("slot 9A not populated")
	}
	if slot.Certificate.Subject.CommonName != "token-test" {
		t.Fatalf("CommonName = %q, want token-test", slot.Certificate.Subject.CommonName)
	}
	if slot.ECPublicKey == nil {
		t.Fatalf("ECPublicKey not attached")
	}

	if tok.GetSlot(piv.SlotSignature) != nil {
		t.Fatalf("slot 9C should not be populated: card reported it missing")
	}
}

func TestReadAllCertsRequiresTransaction(t *testing.T) {
	tok := &Token{}
	err := ReadAllCerts(context.Background(), tok)
	if err == nil {
		t.Fatalf("ReadAllCerts: want error without an active transaction")
	}
}
