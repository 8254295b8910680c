package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"pivcard/piverrors"
)

// AEAD describes one named authenticated cipher the box primitive can use.
// KeyLen/IVLen/AuthLen/BlockSize mirror the box format's cipher contract;
// BlockSize governs PKCS#7 padding granularity (ChaCha20 is treated as
// block size 8).
type AEAD struct {
	Name      string
	KeyLen    int
	IVLen     int
	AuthLen   int
	BlockSize int
	New       func(key []byte) (cipher.AEAD, error)
}

var aeads = map[string]AEAD{
	"chacha20-poly1305": {
		Name: "chacha20-poly1305", KeyLen: chacha20poly1305.KeySize, IVLen: chacha20poly1305.NonceSize,
		AuthLen: 16, BlockSize: 8,
		New: func(key []byte) (cipher.AEAD, error) { return chacha20poly1305.New(key) },
	},
	"aes-256-gcm": {
		Name: "aes-256-gcm", KeyLen: 32, IVLen: 12, AuthLen: 16, BlockSize: 16,
		New: func(key []byte) (cipher.AEAD, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return cipher.NewGCM(block)
		},
	},
}

// AEADByName looks up a registered box cipher by its wire-format name.
func AEADByName(name string) (AEAD, error) {
	a, ok := aeads[name]
	if !ok {
		return AEAD{}, piverrors.Newf(piverrors.KindBadAlgorithm, "unknown box cipher %q", name)
	}
	return a, nil
}

// DefaultAEADName is the box format's default AEAD cipher.
const DefaultAEADName = "chacha20-poly1305"

// RandomBytes returns n cryptographically random bytes (nonces, IVs,
// ephemeral material).
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, piverrors.Wrap(piverrors.KindBoxKey, "generate random bytes", err)
	}
	return b, nil
}

// PKCS7Pad pads in to a multiple of blockSize: every
// cipher adds 1..blockSize bytes, all equal to the pad length.
func PKCS7Pad(in []byte, blockSize int) []byte {
	padLen := blockSize - (len(in) % blockSize)
	out := make([]byte, len(in)+padLen)
	copy(out, in)
	for i := len(in); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// PKCS7Unpad validates and strips PKCS#7 padding:
// the pad byte must be in 1..=blockSize and every pad byte must match.
func PKCS7Unpad(in []byte, blockSize int) ([]byte, error) {
	if len(in) == 0 || len(in)%blockSize != 0 {
		return nil, piverrors.New(piverrors.KindPadding, "padded data is not a multiple of the block size")
	}
	padLen := int(in[len(in)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(in) {
		return nil, piverrors.Newf(piverrors.KindPadding, "invalid pad length %d", padLen)
	}
	for _, b := range in[len(in)-padLen:] {
		if int(b) != padLen {
			return nil, piverrors.New(piverrors.KindPadding, "inconsistent padding bytes")
		}
	}
	return in[:len(in)-padLen], nil
}

// SymmetricBlockCipher is the single-block encryption engine behind PIV
// admin (9B) challenge-response: 3DES-CBC or AES-CBC with a zero
// IV, operating on exactly one cipher block. Generalized from the
// teacher's SCP02 tripleDESCBCEncrypt/DES-ECB helpers to also drive AES.
type SymmetricBlockCipher struct {
	BlockSize int
	new       func(key []byte) (cipher.Block, error)
}

var blockCiphers = map[string]SymmetricBlockCipher{
	"3des": {BlockSize: des.BlockSize, new: func(key []byte) (cipher.Block, error) { return des.NewTripleDESCipher(key) }},
	"aes":  {BlockSize: aes.BlockSize, new: func(key []byte) (cipher.Block, error) { return aes.NewCipher(key) }},
}

// BlockCipherByName resolves "3des" or "aes" to its engine.
func BlockCipherByName(name string) (SymmetricBlockCipher, error) {
	c, ok := blockCiphers[name]
	if !ok {
		return SymmetricBlockCipher{}, piverrors.Newf(piverrors.KindBadAlgorithm, "unknown admin cipher %q", name)
	}
	return c, nil
}

// EncryptBlock encrypts exactly one block under key with a zero IV, as the
// admin challenge-response protocol requires (single-block CBC degenerates
// to plain ECB for one block, but we still route through cipher.BlockMode
// for symmetry with multi-block future use).
func (s SymmetricBlockCipher) EncryptBlock(key, block []byte) ([]byte, error) {
	if len(block) != s.BlockSize {
		return nil, piverrors.Newf(piverrors.KindArgument, "admin challenge must be exactly %d bytes, got %d", s.BlockSize, len(block))
	}
	cb, err := s.new(key)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindArgument, "construct admin cipher", err)
	}
	iv := make([]byte, s.BlockSize)
	out := make([]byte, s.BlockSize)
	cipher.NewCBCEncrypter(cb, iv).CryptBlocks(out, block)
	return out, nil
}
