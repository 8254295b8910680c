package piv

import (
	"pivcard/piverrors"
	"pivcard/tlv"
)

// APT is the Application Property Template returned by SELECT, per
// 4.2's Applet selection step.
type APT struct {
	AID       []byte
	Authority []byte
	Label     string
	URI       string
	Algorithms []byte
}

// parseAPT decodes the tag-0x61 APT template SELECT returns. Unknown
// top-level tags are a PIVTagError; a nested extra 0x61 (some cards wrap
// the template a second time) is tolerated by unwrapping once.
func parseAPT(data []byte) (*APT, error) {
	entries, err := tlv.DecodeAll(data)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindPIVTag, "decode APT", err)
	}

	if len(entries) == 1 && entries[0].Tag == tagAPT {
		inner, err := tlv.DecodeAll(entries[0].Value)
		if err != nil {
			return nil, piverrors.Wrap(piverrors.KindPIVTag, "decode nested APT", err)
		}
		entries = inner
	}

	apt := &APT{}
	for _, e := range entries {
		switch e.Tag {
		case tagAID:
			apt.AID = e.Value
		case tagAuthority:
			apt.Authority = e.Value
		case tagAppLabel:
			apt.Label = string(e.Value)
		case tagAppURI:
			apt.URI = string(e.Value)
		case tagAlgorithmList:
			algs, err := tlv.DecodeAll(e.Value)
			if err != nil {
				return nil, piverrors.Wrap(piverrors.KindPIVTag, "decode algorithm list", err)
			}
			for _, a := range algs {
				switch a.Tag {
				case tagAlgorithm:
					apt.Algorithms = append(apt.Algorithms, a.Value...)
				case tagAlgorithmOID:
					// OID entries are informational; ignored.
				}
			}
		default:
			return nil, piverrors.Newf(piverrors.KindPIVTag, "unexpected top-level APT tag %#x", e.Tag)
		}
	}
	return apt, nil
}
