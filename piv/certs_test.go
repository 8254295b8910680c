package piv

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"pivcard/tlv"
)

func selfSignedDER(t *testing.T) []byte {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pivcard-test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(10, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return der
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestGetCertificateCompressedSetsPINRequired(t *testing.T) {
	der := selfSignedDER(t)
	compressed := gzipBytes(t, der)

	var body []byte
	body = append(body, tlv.Encode(tagCertBlob, compressed)...)
	body = append(body, tlv.Encode(tagCertInfo, []byte{CertInfoCompressed})...)
	reply := tlv.Encode(tagGetDataReply, body)

	card := &fixedCard{reply: withStatus(reply, 0x90, 0x00)}
	s := NewSession(card, nil)

	cert, err := GetCertificate(context.Background(), s, SlotAuthentication)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert.Cert.Subject.CommonName != "pivcard-test" {
		t.Fatalf("CommonName = %q, want pivcard-test", cert.Cert.Subject.CommonName)
	}
	if !cert.PINRequired {
		t.Fatalf("PINRequired = false, want true for slot 9A")
	}
	if cert.CertInfo != CertInfoCompressed {
		t.Fatalf("CertInfo = %#x, want %#x", cert.CertInfo, CertInfoCompressed)
	}
}

func TestGetCertificateCardAuthSlotDoesNotRequirePIN(t *testing.T) {
	der := selfSignedDER(t)

	var body []byte
	body = append(body, tlv.Encode(tagCertBlob, der)...)
	body = append(body, tlv.Encode(tagCertInfo, []byte{CertInfoUncompressed})...)
	reply := tlv.Encode(tagGetDataReply, body)

	card := &fixedCard{reply: withStatus(reply, 0x90, 0x00)}
	s := NewSession(card, nil)

	cert, err := GetCertificate(context.Background(), s, SlotCardAuth)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert.PINRequired {
		t.Fatalf("PINRequired = true, want false for slot 9E")
	}
}
