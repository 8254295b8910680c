// Package pcsc backs the transport layer's reader-provider contract with a
// real PC/SC connection via github.com/ebfe/scard.
package pcsc

import (
	"context"
	"fmt"

	"github.com/ebfe/scard"

	"pivcard/piverrors"
)

// Protocol identifies the negotiated card transport protocol.
type Protocol int

const (
	ProtocolT0 Protocol = iota
	ProtocolT1
)

// Card is one connected reader+card, implementing transport.CardHandle plus
// the lifecycle operations a reader provider must support:
// connect, begin/end transaction, transmit, reconnect, disconnect.
type Card struct {
	ctx      *scard.Context
	card     *scard.Card
	name     string
	protocol Protocol
}

// ListReaders enumerates PC/SC reader names.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindPCSCContext, "establish PC/SC context", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindPCSC, "list readers", err)
	}
	return readers, nil
}

// Connect opens a shared-mode connection to the named reader's card.
func Connect(name string) (*Card, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindPCSCContext, "establish PC/SC context", err)
	}

	sc, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, piverrors.Wrap(piverrors.KindPCSC, fmt.Sprintf("connect to %q", name), err)
	}

	status, err := sc.Status()
	if err != nil {
		sc.Disconnect(scard.LeaveCard)
		ctx.Release()
		return nil, piverrors.Wrap(piverrors.KindPCSC, "card status", err)
	}

	proto := ProtocolT0
	if status.ActiveProtocol == scard.ProtocolT1 {
		proto = ProtocolT1
	}

	return &Card{ctx: ctx, card: sc, name: name, protocol: proto}, nil
}

// Name returns the reader name this Card is bound to.
func (c *Card) Name() string { return c.name }

// Protocol returns the negotiated transport protocol (T=0 or T=1).
func (c *Card) Protocol() Protocol { return c.protocol }

// Transmit implements transport.CardHandle.
func (c *Card) Transmit(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.card.Transmit(cmd)
	if err != nil {
		return nil, piverrors.Wrap(piverrors.KindIO, "transmit", err)
	}
	return raw, nil
}

// BeginTransaction acquires exclusive access to the card for the duration
// of a PIV operation. A reader-reset status during
// begin is handled by one reconnect-and-retry.
func (c *Card) BeginTransaction() error {
	err := c.card.BeginTransaction()
	if err == nil {
		return nil
	}
	if err == scard.ErrResetCard {
		if rerr := c.Reconnect(false); rerr != nil {
			return piverrors.Wrap(piverrors.KindPCSC, "reconnect after reset during begin-transaction", rerr)
		}
		if err := c.card.BeginTransaction(); err != nil {
			return piverrors.Wrap(piverrors.KindPCSC, "begin transaction (after reconnect)", err)
		}
		return nil
	}
	return piverrors.Wrap(piverrors.KindPCSC, "begin transaction", err)
}

// EndTransaction releases exclusive access. If reset is true a card reset
// is requested on release, per the token's reset-on-txn-end invariant.
func (c *Card) EndTransaction(reset bool) error {
	disposition := scard.LeaveCard
	if reset {
		disposition = scard.ResetCard
	}
	if err := c.card.EndTransaction(disposition); err != nil {
		return piverrors.Wrap(piverrors.KindPCSC, "end transaction", err)
	}
	return nil
}

// Reconnect re-establishes the card connection; cold performs a full power
// cycle, otherwise a warm reset.
func (c *Card) Reconnect(cold bool) error {
	disposition := scard.ResetCard
	if cold {
		disposition = scard.UnpowerCard
	}
	if err := c.card.Reconnect(scard.ShareShared, scard.ProtocolAny, disposition); err != nil {
		return piverrors.Wrap(piverrors.KindPCSC, "reconnect", err)
	}
	status, err := c.card.Status()
	if err == nil && status.ActiveProtocol == scard.ProtocolT1 {
		c.protocol = ProtocolT1
	}
	return nil
}

// Disconnect releases the card and PC/SC context. leaveCard controls the
// disposition left for the next claimant of the reader.
func (c *Card) Disconnect(leaveCard bool) error {
	disposition := scard.LeaveCard
	if !leaveCard {
		disposition = scard.ResetCard
	}
	if c.card != nil {
		c.card.Disconnect(disposition)
	}
	if c.ctx != nil {
		c.ctx.Release()
	}
	return nil
}
