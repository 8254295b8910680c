// Package box implements the PIV ECDH sealed-box primitive: a versioned,
// self-describing container that encapsulates an ephemeral-static ECDH key
// agreement, a KDF step, an authenticated symmetric cipher, and PKCS#7
// padding.
package box

import (
	"context"
	"crypto/ecdsa"

	"pivcard/cryptoutil"
	"pivcard/piv"
	"pivcard/piverrors"
)

// CurrentVersion and LegacyVersion are the box format versions this
// package produces (2) and still decodes (1).
const (
	CurrentVersion = 2
	LegacyVersion  = 1
)

const nonceLen = 16

// Box is one sealed or unsealed container.
// Invariant: Sealed() == (Plaintext == nil).
type Box struct {
	Version    byte
	GUIDValid  bool
	GUID       []byte // 16 bytes, only meaningful if GUIDValid
	SlotID     byte
	Curve      cryptoutil.Curve
	EphPublic  *ecdsa.PublicKey
	RecipPub   *ecdsa.PublicKey
	CipherName string
	KDFName    string
	Nonce      []byte // 16 bytes on v2, absent on v1
	IV         []byte
	Ciphertext []byte // includes the AEAD tag

	Plaintext []byte // only set when unsealed
}

// Sealed reports whether the box currently holds ciphertext only.
func (b *Box) Sealed() bool {
	return b.Plaintext == nil
}

// Zeroize overwrites the box's plaintext buffer, per the "plaintext
// buffer is zeroized on drop".
func (b *Box) Zeroize() {
	cryptoutil.Zero(b.Plaintext)
	b.Plaintext = nil
}

// SealOptions configures Seal.
type SealOptions struct {
	Cipher          string // defaults to cryptoutil.DefaultAEADName
	KDF             string // defaults to cryptoutil.DefaultKDFName
	EphemeralPriv   *ecdsa.PrivateKey // preset ephemeral key; generated if nil
	Nonce           []byte            // preset nonce; generated if nil and version >= 2
}

// SealOffline implements the offline seal variant: generates
// (or uses a preset) ephemeral key, derives a symmetric key via ECDH+KDF,
// and encrypts plaintext under a fresh IV with PKCS#7 padding.
func SealOffline(recipPub *ecdsa.PublicKey, plaintext []byte, opts SealOptions) (*Box, error) {
	if len(plaintext) == 0 {
		return nil, piverrors.New(piverrors.KindBoxArgument, "plaintext must not be empty")
	}

	cipherName := orDefault(opts.Cipher, cryptoutil.DefaultAEADName)
	kdfName := orDefault(opts.KDF, cryptoutil.DefaultKDFName)

	aead, err := cryptoutil.AEADByName(cipherName)
	if err != nil {
		return nil, err
	}
	kdf, err := cryptoutil.DigestByName(kdfName)
	if err != nil {
		return nil, err
	}
	if aead.KeyLen > kdf.Size {
		return nil, piverrors.Newf(piverrors.KindBoxArgument, "cipher key length %d exceeds KDF output length %d", aead.KeyLen, kdf.Size)
	}

	curve := curveOf(recipPub)

	ephPriv := opts.EphemeralPriv
	if ephPriv == nil {
		ephPriv, err = cryptoutil.GenerateECDSA(curve)
		if err != nil {
			return nil, err
		}
	}

	b := &Box{
		Version:    CurrentVersion,
		Curve:      curve,
		EphPublic:  &ephPriv.PublicKey,
		RecipPub:   recipPub,
		CipherName: cipherName,
		KDFName:    kdfName,
	}

	nonce := opts.Nonce
	if nonce == nil {
		nonce, err = cryptoutil.RandomBytes(nonceLen)
		if err != nil {
			return nil, err
		}
	}
	b.Nonce = nonce

	if err := sealWithSecret(b, ephPriv, recipPub, plaintext, aead, kdf); err != nil {
		return nil, err
	}
	return b, nil
}

// SealOnCard implements the on-card seal variant: identical to
// SealOffline, then stamps the box with the token's GUID and slot so a
// later Open can route through Protocol ECDH.
func SealOnCard(guid []byte, slot byte, recipPub *ecdsa.PublicKey, plaintext []byte, opts SealOptions) (*Box, error) {
	b, err := SealOffline(recipPub, plaintext, opts)
	if err != nil {
		return nil, err
	}
	b.GUIDValid = true
	b.GUID = guid
	b.SlotID = slot
	return b, nil
}

func sealWithSecret(b *Box, ephPriv *ecdsa.PrivateKey, recipPub *ecdsa.PublicKey, plaintext []byte, aead cryptoutil.AEAD, kdf cryptoutil.Digest) error {
	z, err := cryptoutil.ECDH(ephPriv, recipPub)
	if err != nil {
		return err
	}
	defer cryptoutil.Zero(z)

	k := deriveKey(kdf, z, b.Nonce, aead.KeyLen)
	defer cryptoutil.Zero(k)

	iv, err := cryptoutil.RandomBytes(aead.IVLen)
	if err != nil {
		return err
	}
	b.IV = iv

	padded := cryptoutil.PKCS7Pad(plaintext, aead.BlockSize)
	defer cryptoutil.Zero(padded)

	cipher, err := aead.New(k)
	if err != nil {
		return piverrors.Wrap(piverrors.KindBoxKey, "construct AEAD cipher", err)
	}
	b.Ciphertext = cipher.Seal(nil, iv, padded, nil)
	return nil
}

// deriveKey computes K = H(Z || nonce)[0..keylen].
func deriveKey(kdf cryptoutil.Digest, z, nonce []byte, keyLen int) []byte {
	input := make([]byte, 0, len(z)+len(nonce))
	input = append(input, z...)
	input = append(input, nonce...)
	h := kdf.Sum(input)
	return h[:keyLen]
}

// Open takes the already computed ECDH shared secret z (OpenOffline and
// OpenOnCard supply it), derives the key from it, decrypts and verifies the
// AEAD tag, and strips PKCS#7 padding. z is zeroized before Open returns.
func Open(b *Box, z []byte) error {
	defer cryptoutil.Zero(z)

	aead, err := cryptoutil.AEADByName(b.CipherName)
	if err != nil {
		return err
	}
	kdf, err := cryptoutil.DigestByName(b.KDFName)
	if err != nil {
		return err
	}
	if aead.KeyLen > kdf.Size {
		return piverrors.Newf(piverrors.KindBoxArgument, "cipher key length %d exceeds KDF output length %d", aead.KeyLen, kdf.Size)
	}

	k := deriveKey(kdf, z, b.Nonce, aead.KeyLen)
	defer cryptoutil.Zero(k)

	cipher, err := aead.New(k)
	if err != nil {
		return piverrors.Wrap(piverrors.KindBoxKey, "construct AEAD cipher", err)
	}

	padded, err := cipher.Open(nil, b.IV, b.Ciphertext, nil)
	if err != nil {
		return piverrors.Wrap(piverrors.KindBoxData, "AEAD authentication failed", err)
	}
	defer cryptoutil.Zero(padded)

	plaintext, err := cryptoutil.PKCS7Unpad(padded, aead.BlockSize)
	if err != nil {
		return piverrors.Wrap(piverrors.KindBoxData, "remove padding", err)
	}

	b.Plaintext = plaintext
	return nil
}

// OpenOffline implements Open using a locally-held recipient private key.
func OpenOffline(b *Box, recipPriv *ecdsa.PrivateKey) error {
	z, err := cryptoutil.ECDH(recipPriv, b.EphPublic)
	if err != nil {
		return piverrors.Wrap(piverrors.KindBoxKey, "offline ECDH", err)
	}
	return Open(b, z)
}

// OpenOnCard implements Open by invoking Protocol's ECDH operation against
// the token/slot the box (or the caller) names.
func OpenOnCard(ctx context.Context, s *piv.Session, slot byte, alg piv.Algorithm, b *Box) error {
	peerPoint := cryptoutil.SerializeUncompressedPoint(b.EphPublic)
	z, err := piv.ECDH(ctx, s, slot, alg, peerPoint)
	if err != nil {
		return piverrors.Wrap(piverrors.KindBoxKey, "on-card ECDH", err)
	}
	return Open(b, z)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func curveOf(pub *ecdsa.PublicKey) cryptoutil.Curve {
	if pub.Curve.Params().BitSize >= 384 {
		return cryptoutil.CurveP384
	}
	return cryptoutil.CurveP256
}
