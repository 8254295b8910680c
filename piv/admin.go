package piv

import (
	"context"
	"errors"

	"pivcard/apdu"
	"pivcard/cryptoutil"
	"pivcard/piverrors"
	"pivcard/tlv"
)

// adminCipherName maps an admin (9B) algorithm byte to the block-cipher
// engine it selects: 3DES-CBC, or AES-128/192/256-CBC per
// the algorithm byte".
func adminCipherName(alg Algorithm) (string, error) {
	switch alg {
	case AlgThreeDES:
		return "3des", nil
	case AlgAES128, AlgAES192, AlgAES256:
		return "aes", nil
	}
	return "", piverrors.Newf(piverrors.KindBadAlgorithm, "algorithm %#x is not a valid admin cipher", byte(alg))
}

// AuthenticateAdmin performs the single-step 9B challenge-response: request
// a challenge from the card, encrypt it under key, and echo the response
// back. SW 6A80/6982 from either exchange map to PermissionError; 6A86 maps
// to NotFoundError ("no admin key") via FromStatusWord.
func AuthenticateAdmin(ctx context.Context, s *Session, alg Algorithm, key []byte) error {
	cipherName, err := adminCipherName(alg)
	if err != nil {
		return err
	}
	engine, err := cryptoutil.BlockCipherByName(cipherName)
	if err != nil {
		return err
	}

	challengeReq := tlv.Encode(tagDynAuth, tlv.Encode(tagDynAuthChallenge, nil))
	resp, err := s.transceive(ctx, "ADMIN CHALLENGE", apdu.Command{
		Class: 0x00, Ins: apdu.InsGeneralAuthenticate, P1: byte(alg), P2: SlotAdmin,
		Data: challengeReq, HasLe: true, Le: 0x00,
	})
	if err != nil {
		var perr *piverrors.Error
		if errors.As(err, &perr) && (perr.SW == 0x6A80 || perr.SW == 0x6982) {
			return piverrors.New(piverrors.KindPermission, "admin authentication rejected").WithSW(perr.SW)
		}
		return err
	}

	challenge, err := extractDynAuthField(resp.Data, tagDynAuthChallenge)
	if err != nil {
		s.logParseError("ADMIN CHALLENGE", err)
		return err
	}
	if len(challenge) != engine.BlockSize {
		return piverrors.Newf(piverrors.KindLength, "admin challenge length %d does not match cipher block size %d", len(challenge), engine.BlockSize)
	}

	response, err := engine.EncryptBlock(key, challenge)
	if err != nil {
		return err
	}

	answerBody := tlv.Encode(tagDynAuth, tlv.Encode(tagDynAuthResponse, response))
	_, err = s.transceive(ctx, "ADMIN RESPONSE", apdu.Command{
		Class: 0x00, Ins: apdu.InsGeneralAuthenticate, P1: byte(alg), P2: SlotAdmin,
		Data: answerBody,
	})
	if err != nil {
		var perr *piverrors.Error
		if errors.As(err, &perr) && (perr.SW == 0x6A80 || perr.SW == 0x6982) {
			return piverrors.New(piverrors.KindPermission, "admin authentication rejected").WithSW(perr.SW)
		}
		return err
	}
	return nil
}
