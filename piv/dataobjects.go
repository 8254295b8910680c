package piv

import (
	"context"

	"pivcard/apdu"
	"pivcard/piverrors"
	"pivcard/tlv"
)

// GetData issues GET DATA for the object named by objectTag (the raw BER
// tag bytes used as the 5C selector, e.g. CHUIDObjectTag), and unwraps the
// single 0x53 response wrapper.
func GetData(ctx context.Context, s *Session, objectTag []byte) ([]byte, error) {
	selector := tlv.Encode(0x5C, objectTag)
	resp, err := s.transceive(ctx, "GET DATA", apdu.Command{
		Class: 0x00, Ins: apdu.InsGetData, P1: 0x3F, P2: 0xFF,
		Data: selector, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, err
	}
	t, ok, err := tlv.Find(resp.Data, tagGetDataReply)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode GET DATA reply", err)
		s.logParseError("GET DATA", werr)
		return nil, werr
	}
	if !ok {
		werr := piverrors.New(piverrors.KindPIVTag, "GET DATA reply missing tag 0x53")
		s.logParseError("GET DATA", werr)
		return nil, werr
	}
	return t.Value, nil
}

// PutData issues PUT DATA with the object wrapped in tag 0x53. Requires an
// authenticated admin (9B) session on the card side; this
// package does not track that state itself.
func PutData(ctx context.Context, s *Session, objectTag []byte, value []byte) error {
	selector := tlv.Encode(0x5C, objectTag)
	body := append(append([]byte{}, selector...), tlv.Encode(tagGetDataReply, value)...)
	_, err := s.transceive(ctx, "PUT DATA", apdu.Command{
		Class: 0x00, Ins: apdu.InsPutData, P1: 0x3F, P2: 0xFF,
		Data: body,
	})
	return err
}

// CHUID is the parsed Card Holder Unique Identifier object (the
// Token.GUID source), per NIST 800-73-4 table 9.
type CHUID struct {
	FASCN     []byte
	GUID      []byte
	Expiry    []byte
	Signature      []byte
	CardholderUUID []byte
}

// GetCHUID reads and parses the CHUID object.
func GetCHUID(ctx context.Context, s *Session) (*CHUID, error) {
	data, err := GetData(ctx, s, CHUIDObjectTag)
	if err != nil {
		return nil, err
	}
	entries, err := tlv.DecodeAll(data)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode CHUID", err)
		s.logParseError("CHUID", werr)
		return nil, werr
	}
	c := &CHUID{}
	for _, e := range entries {
		switch e.Tag {
		case tagFASCN:
			c.FASCN = e.Value
		case tagCardGUID:
			c.GUID = e.Value
		case tagExpiry:
			c.Expiry = e.Value
		case tagCardholder:
			c.CardholderUUID = e.Value
		case tagCHUIDSig:
			c.Signature = e.Value
		}
	}
	return c, nil
}

// Discovery is the parsed Discovery object (tag 0x7E): an AID echo plus the
// PIN usage policy.
type Discovery struct {
	AID       []byte
	PINPolicy []byte
}

// GetDiscovery reads and parses the Discovery object. Many cards omit it
// entirely; callers treat a NotFoundError as "no discovery support".
func GetDiscovery(ctx context.Context, s *Session) (*Discovery, error) {
	data, err := GetData(ctx, s, DiscoveryObjectTag)
	if err != nil {
		return nil, err
	}
	entries, err := tlv.DecodeAll(data)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode discovery object", err)
		s.logParseError("DISCOVERY", werr)
		return nil, werr
	}
	if len(entries) == 1 && entries[0].Tag == tagDiscovery {
		inner, err := tlv.DecodeAll(entries[0].Value)
		if err != nil {
			werr := piverrors.Wrap(piverrors.KindInvalidData, "decode nested discovery object", err)
			s.logParseError("DISCOVERY", werr)
			return nil, werr
		}
		entries = inner
	}
	d := &Discovery{}
	for _, e := range entries {
		switch e.Tag {
		case tagAID:
			d.AID = e.Value
		case tagPINPolicy:
			d.PINPolicy = e.Value
		}
	}
	return d, nil
}

// KeyHistory is the parsed Key History object (tag 0x5FC10C), tracking how
// many retired on/off-card certificates exist, per NIST 800-73-4 table 12.
type KeyHistory struct {
	OnCardCerts  int
	OffCardCerts int
	OffCardURL   string
}

// GetKeyHistory reads and parses the Key History object.
func GetKeyHistory(ctx context.Context, s *Session) (*KeyHistory, error) {
	data, err := GetData(ctx, s, KeyHistoryObjectTag)
	if err != nil {
		return nil, err
	}
	entries, err := tlv.DecodeAll(data)
	if err != nil {
		werr := piverrors.Wrap(piverrors.KindInvalidData, "decode key history", err)
		s.logParseError("KEY HISTORY", werr)
		return nil, werr
	}
	kh := &KeyHistory{}
	for _, e := range entries {
		switch e.Tag {
		case tagKeyHistOnCard:
			if len(e.Value) == 1 {
				kh.OnCardCerts = int(e.Value[0])
			}
		case tagKeyHistOffCard:
			if len(e.Value) == 1 {
				kh.OffCardCerts = int(e.Value[0])
			}
		case tagKeyHistURL:
			kh.OffCardURL = string(e.Value)
		}
	}
	return kh, nil
}
