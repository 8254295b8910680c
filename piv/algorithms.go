package piv

// Algorithm identifies a PIV key algorithm by its one-byte wire value, the
// same byte GENERATE ASYMMETRIC's P1/the APT algorithm list/GET METADATA
// use, per NIST 800-73-4 table 5 and the YubicoPIV vendor extensions.
type Algorithm byte

const (
	AlgThreeDES  Algorithm = 0x03
	AlgRSA1024   Algorithm = 0x06
	AlgRSA2048   Algorithm = 0x07
	AlgRSA3072   Algorithm = 0x05
	AlgRSA4096   Algorithm = 0x16
	AlgECCP256   Algorithm = 0x11
	AlgECCP384   Algorithm = 0x14
	AlgAES128    Algorithm = 0x08
	AlgAES192    Algorithm = 0x0A
	AlgAES256    Algorithm = 0x0C

	// Card-hash ("Java-Card applet") variants substitute one of these in
	// place of AlgECCP256/AlgECCP384 to tell the card which digest it
	// should compute itself over the raw message. These byte values are
	// not part of NIST 800-73-4 or YubicoPIV; they belong to the subset
	// of non-Yubico PIV-compatible applets that hash on-card, and differ
	// between implementations. The values below follow the vendor range
	// PIV implementations commonly reserve (0x30-range) for such
	// extensions and are treated as opaque wire bytes, never assumed
	// portable across card families.
	AlgECCP256SHA1   Algorithm = 0x30
	AlgECCP256SHA256 Algorithm = 0x31
	AlgECCP384SHA1   Algorithm = 0x32
	AlgECCP384SHA256 Algorithm = 0x33
	AlgECCP384SHA384 Algorithm = 0x34
)

// IsECC reports whether alg is an elliptic-curve key algorithm (standard
// or card-hash variant).
func (a Algorithm) IsECC() bool {
	switch a {
	case AlgECCP256, AlgECCP384, AlgECCP256SHA1, AlgECCP256SHA256,
		AlgECCP384SHA1, AlgECCP384SHA256, AlgECCP384SHA384:
		return true
	}
	return false
}

// IsRSA reports whether alg is an RSA key algorithm.
func (a Algorithm) IsRSA() bool {
	switch a {
	case AlgRSA1024, AlgRSA2048, AlgRSA3072, AlgRSA4096:
		return true
	}
	return false
}

// IsCardHash reports whether alg is one of the card-hash ECDSA variants
// that expect the raw message rather than a pre-computed digest.
func (a Algorithm) IsCardHash() bool {
	switch a {
	case AlgECCP256SHA1, AlgECCP256SHA256, AlgECCP384SHA1, AlgECCP384SHA256, AlgECCP384SHA384:
		return true
	}
	return false
}

// StandardECCEquivalent maps a card-hash variant back to its standard
// ECCP256/ECCP384 algorithm byte, for restoring the slot's advertised
// algorithm after a card-hash signing call.
func (a Algorithm) StandardECCEquivalent() Algorithm {
	switch a {
	case AlgECCP256SHA1, AlgECCP256SHA256:
		return AlgECCP256
	case AlgECCP384SHA1, AlgECCP384SHA256, AlgECCP384SHA384:
		return AlgECCP384
	}
	return a
}

// cardHashDigestName returns the digest name a card-hash algorithm variant
// requests the card compute internally.
func cardHashDigestName(a Algorithm) string {
	switch a {
	case AlgECCP256SHA1, AlgECCP384SHA1:
		return "sha1"
	case AlgECCP256SHA256, AlgECCP384SHA256:
		return "sha256"
	case AlgECCP384SHA384:
		return "sha384"
	}
	return ""
}

// String returns the conventional name for alg, for logging and CLI display.
func (a Algorithm) String() string {
	switch a {
	case AlgThreeDES:
		return "3DES"
	case AlgRSA1024:
		return "RSA1024"
	case AlgRSA2048:
		return "RSA2048"
	case AlgRSA3072:
		return "RSA3072"
	case AlgRSA4096:
		return "RSA4096"
	case AlgECCP256:
		return "ECCP256"
	case AlgECCP384:
		return "ECCP384"
	case AlgAES128:
		return "AES128"
	case AlgAES192:
		return "AES192"
	case AlgAES256:
		return "AES256"
	case AlgECCP256SHA1:
		return "ECCP256-SHA1(card-hash)"
	case AlgECCP256SHA256:
		return "ECCP256-SHA256(card-hash)"
	case AlgECCP384SHA1:
		return "ECCP384-SHA1(card-hash)"
	case AlgECCP384SHA256:
		return "ECCP384-SHA256(card-hash)"
	case AlgECCP384SHA384:
		return "ECCP384-SHA384(card-hash)"
	}
	return "unknown"
}

// RSAModulusBytes returns the modulus size in bytes for an RSA algorithm.
func (a Algorithm) RSAModulusBytes() int {
	switch a {
	case AlgRSA1024:
		return 128
	case AlgRSA2048:
		return 256
	case AlgRSA3072:
		return 384
	case AlgRSA4096:
		return 512
	}
	return 0
}
