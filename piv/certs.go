package piv

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/x509"
	"io"

	"pivcard/piverrors"
	"pivcard/tlv"
)

// maxCertInflate caps gzip-inflated certificate bodies, guarding against a
// hostile or malfunctioning card declaring an enormous decompressed size
// against hostile or malfunctioning cards.
const maxCertInflate = 16 * 1024

// CertInfoCompressed and CertInfoUncompressed are the two values PIV cards
// use in the 0x71 CertInfo byte.
const (
	CertInfoUncompressed byte = 0x00
	CertInfoCompressed   byte = 0x01
)

// Certificate is one parsed slot certificate plus its raw CertInfo flag,
// and the certificate's default PIN-required policy by slot.
type Certificate struct {
	Cert        *x509.Certificate
	PINRequired bool
	CertInfo    byte
}

// GetCertificate reads, optionally gzip-inflates, and parses the
// certificate stored in slot.
func GetCertificate(ctx context.Context, s *Session, slot byte) (*Certificate, error) {
	data, err := GetData(ctx, s, CertObjectTag(slot))
	if err != nil {
		return nil, err
	}
	entries, err := tlv.DecodeAll(data)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode cert object", err)
		s.logParseError("GET CERTIFICATE", werr)
		return nil, werr
	}

	var blob []byte
	var info byte
	for _, e := range entries {
		switch e.Tag {
		case tagCertBlob:
			blob = e.Value
		case tagCertInfo:
			if len(e.Value) == 1 {
				info = e.Value[0]
			}
		}
	}
	if blob == nil {
		werr := piverrors.New(piverrors.KindPIVTag, "cert object missing tag 0x70")
		s.logParseError("GET CERTIFICATE", werr)
		return nil, werr
	}

	if info&tagCertInfoX509Compat != 0 {
		werr := piverrors.Newf(piverrors.KindInvalidData, "cert info byte %#x: X.509 compat flag must be zero", info)
		s.logParseError("GET CERTIFICATE", werr)
		return nil, werr
	}

	if info&0x03 == CertInfoCompressed {
		blob, err = gunzipLimited(blob, maxCertInflate)
		if err != nil {
			werr := piverrors.Wrap(piverrors.KindInvalidData, "inflate compressed certificate", err)
			s.logParseError("GET CERTIFICATE", werr)
			return nil, werr
		}
	}

	cert, err := x509.ParseCertificate(blob)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "parse certificate DER", err)
		s.logParseError("GET CERTIFICATE", werr)
		return nil, werr
	}

	return &Certificate{Cert: cert, PINRequired: slotDefaultPINRequired(slot), CertInfo: info}, nil
}

const tagCertInfoX509Compat = 0x04

// slotDefaultPINRequired implements the default PIN policy by slot:
// authentication, signature, key-management and retired slots require PIN;
// card-auth and the Yubico attestation slot do not.
func slotDefaultPINRequired(slot byte) bool {
	switch slot {
	case SlotCardAuth, SlotAttestation:
		return false
	}
	return true
}

// PutCertificate stores a DER certificate in slot uncompressed.
func PutCertificate(ctx context.Context, s *Session, slot byte, der []byte) error {
	var body []byte
	body = append(body, tlv.Encode(tagCertBlob, der)...)
	body = append(body, tlv.Encode(tagCertInfo, []byte{CertInfoUncompressed})...)
	body = append(body, tlv.Encode(0xFE, nil)...)
	return PutData(ctx, s, CertObjectTag(slot), body)
}

// gunzipLimited inflates gzip-compressed data, refusing to read more than
// limit decompressed bytes, guarding against a card-declared size attack.
func gunzipLimited(data []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	lr := io.LimitReader(zr, limit+1)
	out, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, piverrors.Newf(piverrors.KindInvalidData, "compressed certificate exceeds %d byte inflate limit", limit)
	}
	return out, nil
}
