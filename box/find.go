package box

import (
	"context"
	"crypto/ecdsa"

	"pivcard/cryptoutil"
	"pivcard/piv"
	"pivcard/piverrors"
	"pivcard/token"
)

// FindResult names the token/slot a box's recipient public key was
// matched against.
type FindResult struct {
	Token *token.Token
	Slot  byte
}

// FindToken implements a three-step token-lookup strategy: GUID
// match first, then a probe of the box's named slot (or 9D as a
// convention default) on every token, then an exhaustive per-token scan.
func FindToken(ctx context.Context, pool *token.Pool, b *Box) (*FindResult, error) {
	if b.GUIDValid {
		if t := pool.ByGUID(b.GUID); t != nil {
			if s := t.GetSlot(b.SlotID); s != nil {
				if matchesRecipient(s, b.RecipPub) {
					return &FindResult{Token: t, Slot: b.SlotID}, nil
				}
				return nil, piverrors.New(piverrors.KindNotFound, "box slot public key does not match the named token")
			}
			if err := readAllCertsUnderTransaction(ctx, t); err != nil {
				return nil, err
			}
			if s := t.GetSlot(b.SlotID); s != nil && matchesRecipient(s, b.RecipPub) {
				return &FindResult{Token: t, Slot: b.SlotID}, nil
			}
			return nil, piverrors.New(piverrors.KindNotFound, "box slot public key does not match the named token")
		}
	}

	probeSlot := b.SlotID
	if probeSlot == 0x00 || probeSlot == 0xFF {
		probeSlot = piv.SlotKeyManagement
	}
	for _, t := range pool.Tokens() {
		if s := t.GetSlot(probeSlot); s != nil && matchesRecipient(s, b.RecipPub) {
			return &FindResult{Token: t, Slot: probeSlot}, nil
		}
	}
	for _, t := range pool.Tokens() {
		if pool.IsScanned(t) {
			continue
		}
		if err := readAllCertsUnderTransaction(ctx, t); err == nil {
			pool.MarkScanned(t)
			if s := t.GetSlot(probeSlot); s != nil && matchesRecipient(s, b.RecipPub) {
				return &FindResult{Token: t, Slot: probeSlot}, nil
			}
		}
	}

	for _, t := range pool.Tokens() {
		if !pool.IsScanned(t) {
			if err := readAllCertsUnderTransaction(ctx, t); err != nil {
				return nil, err
			}
			pool.MarkScanned(t)
		}
		for _, id := range allSlotIDs() {
			if s := t.GetSlot(id); s != nil && matchesRecipient(s, b.RecipPub) {
				return &FindResult{Token: t, Slot: id}, nil
			}
		}
	}

	return nil, piverrors.New(piverrors.KindNotFound, "no token holds the box's recipient key")
}

func matchesRecipient(s *token.Slot, recip *ecdsa.PublicKey) bool {
	return cryptoutil.EqualPublic(s.ECPublicKey, recip)
}

func allSlotIDs() []byte {
	ids := []byte{piv.SlotAuthentication, piv.SlotSignature, piv.SlotKeyManagement, piv.SlotCardAuth}
	return append(ids, piv.RetiredSlots()...)
}

func readAllCertsUnderTransaction(ctx context.Context, t *token.Token) error {
	if err := t.BeginTransaction(ctx); err != nil {
		return err
	}
	defer t.EndTransaction(ctx)
	return token.ReadAllCerts(ctx, t)
}
