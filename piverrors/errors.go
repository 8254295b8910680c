// Package piverrors defines the chainable error taxonomy shared by the
// transport, piv, token and box packages.
package piverrors

import (
	"errors"
	"fmt"
)

// Kind identifies the taxonomy an Error belongs to. Callers branch on Kind
// rather than on error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindPCSC
	KindPCSCContext
	KindIO
	KindAPDU
	KindPIVTag
	KindInvalidData
	KindPermission
	KindNotFound
	KindNotSupported
	KindDuplicate
	KindArgument
	KindDeviceOutOfMemory
	KindMinRetries
	KindBoxKey
	KindBoxData
	KindBoxVersion
	KindBoxArgument
	KindCertFlag
	KindBadAlgorithm
	KindPadding
	KindLength
)

func (k Kind) String() string {
	switch k {
	case KindPCSC:
		return "PCSCError"
	case KindPCSCContext:
		return "PCSCContextError"
	case KindIO:
		return "IOError"
	case KindAPDU:
		return "APDUError"
	case KindPIVTag:
		return "PIVTagError"
	case KindInvalidData:
		return "InvalidDataError"
	case KindPermission:
		return "PermissionError"
	case KindNotFound:
		return "NotFoundError"
	case KindNotSupported:
		return "NotSupportedError"
	case KindDuplicate:
		return "DuplicateError"
	case KindArgument:
		return "ArgumentError"
	case KindDeviceOutOfMemory:
		return "DeviceOutOfMemoryError"
	case KindMinRetries:
		return "MinRetriesError"
	case KindBoxKey:
		return "BoxKeyError"
	case KindBoxData:
		return "BoxDataError"
	case KindBoxVersion:
		return "BoxVersionError"
	case KindBoxArgument:
		return "BoxArgumentError"
	case KindCertFlag:
		return "CertFlagError"
	case KindBadAlgorithm:
		return "BadAlgorithmError"
	case KindPadding:
		return "PaddingError"
	case KindLength:
		return "LengthError"
	default:
		return "UnknownError"
	}
}

// Error is a typed, chainable error. It wraps an optional cause and carries
// enough structured data (status word, retries remaining) for callers that
// need it without string-parsing the message.
type Error struct {
	Kind     Kind
	Msg      string
	Cause    error
	SW       uint16 // status word, when Kind came from a card response; 0 otherwise
	Retries  int    // PIN/ADM retries remaining, when known; -1 otherwise
	Blocked  bool   // true for KindPermission caused by SW=6983
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CausedBy reports whether err, or any error in its cause chain, is a
// *Error of the given Kind.
func CausedBy(err error, kind Kind) bool {
	for err != nil {
		var pe *Error
		if errors.As(err, &pe) && pe.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// New constructs a bare Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Retries: -1}
}

// Wrap constructs an Error of the given kind chaining cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause, Retries: -1}
}

// Newf constructs a bare Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Retries: -1}
}

// WithSW attaches a status word to the error, returning the same error for
// chaining at the call site.
func (e *Error) WithSW(sw uint16) *Error {
	e.SW = sw
	return e
}

// WithRetries attaches a retries-remaining count.
func (e *Error) WithRetries(n int) *Error {
	e.Retries = n
	return e
}

// WithBlocked marks a KindPermission error as blocked (SW=6983).
func (e *Error) WithBlocked() *Error {
	e.Blocked = true
	return e
}

// FromStatusWord translates a terminal-failure PIV status word into the
// taxonomy. Callers only invoke this once a response has already been
// found to not represent success or more-data-available.
func FromStatusWord(op string, sw uint16) *Error {
	switch sw {
	case 0x6A82, 0x6A80:
		return Newf(KindNotFound, "%s: object not found (SW=%04X)", op, sw).WithSW(sw)
	case 0x6A81:
		return Newf(KindNotSupported, "%s: function not supported (SW=%04X)", op, sw).WithSW(sw)
	case 0x6982:
		return Newf(KindPermission, "%s: security status not satisfied (SW=%04X)", op, sw).WithSW(sw)
	case 0x6983:
		return Newf(KindPermission, "%s: authentication method blocked (SW=%04X)", op, sw).WithSW(sw).WithBlocked()
	case 0x6A86:
		return Newf(KindNotFound, "%s: no admin key (SW=%04X)", op, sw).WithSW(sw)
	case 0x6A84:
		return Newf(KindDeviceOutOfMemory, "%s: device out of memory (SW=%04X)", op, sw).WithSW(sw)
	default:
		if sw&0xFFF0 == 0x63C0 {
			retries := int(sw & 0x000F)
			return Newf(KindPermission, "%s: wrong PIN, %d attempts remaining (SW=%04X)", op, retries, sw).
				WithSW(sw).WithRetries(retries)
		}
		return Newf(KindAPDU, "%s: card returned SW=%04X", op, sw).WithSW(sw)
	}
}
