package token

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"log/slog"

	"pivcard/pcsc"
	"pivcard/piv"
	"pivcard/piverrors"
)

// Enumerate lists every PC/SC reader, connects to each, selects the PIV
// applet, and reads what it can (CHUID, Discovery, Key History, Yubico
// version/serial). Readers that fail at
// connect, select, or transaction-begin are skipped with a debug-level
// log line rather than aborting the whole sweep.
func Enumerate(ctx context.Context, logger *slog.Logger) ([]*Token, error) {
	logger = defaultLogger(logger)

	names, err := pcsc.ListReaders()
	if err != nil {
		return nil, err
	}

	var tokens []*Token
	for _, name := range names {
		t, err := openOne(ctx, name, logger)
		if err != nil {
			logger.Debug("token: skipping reader", "reader", name, "err", err)
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// openOne connects one reader, begins a transaction, selects the applet,
// reads the fixed objects, and ends the transaction, returning the
// populated Token.
func openOne(ctx context.Context, name string, logger *slog.Logger) (*Token, error) {
	card, err := pcsc.Connect(name)
	if err != nil {
		return nil, err
	}

	session := piv.NewSession(card, logger)
	t := &Token{ReaderName: name, Session: session, Protocol: card}

	if err := t.BeginTransaction(ctx); err != nil {
		return nil, err
	}
	defer t.EndTransaction(ctx)

	apt, err := piv.Select(ctx, session)
	if err != nil {
		return nil, err
	}
	t.AppLabel, t.AppURI, t.Algorithms = apt.Label, apt.URI, apt.Algorithms

	populateFixedObjects(ctx, t, logger)
	probeYubico(ctx, t, logger)

	return t, nil
}

// populateFixedObjects reads CHUID, Discovery and Key History, tolerating
// their absence.
func populateFixedObjects(ctx context.Context, t *Token, logger *slog.Logger) {
	chuid, err := piv.GetCHUID(ctx, t.Session)
	if err != nil {
		logger.Debug("token: no CHUID", "reader", t.ReaderName, "err", err)
	} else {
		t.HasCHUID = true
		t.FASCN = chuid.FASCN
		t.Expiry = chuid.Expiry
		t.SignedCHUID = len(chuid.Signature) > 0
		t.CardholderUUID = chuid.CardholderUUID
	}

	t.GUID = computeGUID(chuidGUIDOf(chuid), t.CardholderUUID, t.FASCN)

	disc, err := piv.GetDiscovery(ctx, t.Session)
	if err != nil {
		logger.Debug("token: no discovery object", "reader", t.ReaderName, "err", err)
		t.AppPINAvailable = true // fallback: app-PIN preferred
	} else if len(disc.PINPolicy) >= 2 {
		high, low := disc.PINPolicy[0], disc.PINPolicy[1]
		t.AppPINAvailable = high&0x40 != 0
		t.GlobalPINAvailable = high&0x20 != 0
		t.OCCAvailable = high&0x10 != 0
		t.VCIAvailable = high&0x08 != 0
		t.PreferredAuth = low
	}

	kh, err := piv.GetKeyHistory(ctx, t.Session)
	if err != nil {
		logger.Debug("token: no key history object", "reader", t.ReaderName, "err", err)
	} else {
		t.KeyHistoryOnCard = kh.OnCardCerts
		t.KeyHistoryOffCard = kh.OffCardCerts
		t.KeyHistoryURL = kh.OffCardURL
	}
}

func chuidGUIDOf(c *piv.CHUID) []byte {
	if c == nil {
		return nil
	}
	return c.GUID
}

// probeYubico attempts the Yubico GET_VER/GET_SERIAL extensions; their
// absence means the token is not a YubicoPIV card.
func probeYubico(ctx context.Context, t *Token, logger *slog.Logger) {
	ver, err := piv.GetVersion(ctx, t.Session)
	if err != nil {
		return
	}
	t.IsYubicoPIV = true
	t.Firmware = ver

	if ver[0] >= 5 {
		serial, err := piv.GetSerial(ctx, t.Session)
		if err != nil {
			logger.Debug("token: GET_SERIAL failed on YubicoPIV >= 5", "reader", t.ReaderName, "err", err)
			return
		}
		t.HasSerial = true
		t.Serial = serial
	}
}

// Find enumerates and returns exactly one token whose GUID starts with
// guidPrefix.
func Find(ctx context.Context, logger *slog.Logger, guidPrefix []byte) (*Token, error) {
	tokens, err := Enumerate(ctx, logger)
	if err != nil {
		return nil, err
	}
	var match *Token
	for _, t := range tokens {
		if bytes.HasPrefix(t.GUID, guidPrefix) {
			if match != nil {
				return nil, piverrors.New(piverrors.KindDuplicate, "more than one token matches the GUID prefix")
			}
			match = t
		}
	}
	if match == nil {
		return nil, piverrors.New(piverrors.KindNotFound, "no token matches the GUID prefix")
	}
	return match, nil
}

// ReadAllCerts reads slots 9A/9C/9D/9E and every retired slot, absorbing
// per-slot NotFound/Permission/NotSupported errors; any other error
// aborts the scan.
func ReadAllCerts(ctx context.Context, t *Token) error {
	if err := t.requireTransaction(); err != nil {
		return err
	}

	slots := []byte{piv.SlotAuthentication, piv.SlotSignature, piv.SlotKeyManagement, piv.SlotCardAuth}
	slots = append(slots, piv.RetiredSlots()...)

	for _, id := range slots {
		cert, err := piv.GetCertificate(ctx, t.Session, id)
		if err != nil {
			if piverrors.CausedBy(err, piverrors.KindNotFound) ||
				piverrors.CausedBy(err, piverrors.KindPermission) ||
				piverrors.CausedBy(err, piverrors.KindNotSupported) {
				continue
			}
			return err
		}
		s := &Slot{
			ID:          id,
			Certificate: cert.Cert,
			Subject:     cert.Cert.Subject.String(),
			PINRequired: cert.PINRequired,
		}
		attachPublicKey(s, cert.Cert)
		t.setSlot(s)
	}

	t.mu.Lock()
	t.allSlotsRead = true
	t.mu.Unlock()
	return nil
}

// attachPublicKey copies cert's public key into the slot's RSA/EC fields
// and infers the algorithm from key type and curve/modulus size.
func attachPublicKey(s *Slot, cert *x509.Certificate) {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		s.RSAPublicKey = pub
		switch pub.N.BitLen() {
		case 1024:
			s.Algorithm = piv.AlgRSA1024
		case 3072:
			s.Algorithm = piv.AlgRSA3072
		case 4096:
			s.Algorithm = piv.AlgRSA4096
		default:
			s.Algorithm = piv.AlgRSA2048
		}
	case *ecdsa.PublicKey:
		s.ECPublicKey = pub
		if pub.Curve.Params().BitSize >= 384 {
			s.Algorithm = piv.AlgECCP384
		} else {
			s.Algorithm = piv.AlgECCP256
		}
	}
}
