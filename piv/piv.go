// Package piv implements the PIV applet protocol: selection, data-object
// get/put, key generation/import, signing, ECDH, PIN/admin authentication
// and the Yubico extensions. Application code never builds raw APDUs itself.
package piv

import (
	"context"
	"log/slog"
	"sync"

	"pivcard/apdu"
	"pivcard/piverrors"
	"pivcard/transport"
)

// AID is the PIV applet Application Identifier.
var AID = []byte{0xA0, 0x00, 0x00, 0x03, 0x08, 0x00, 0x00, 0x10, 0x00, 0x01, 0x00}

const exchangeHistoryDepth = 4

// exchange is one recorded command/response pair, kept for debug-level
// forensics.
type exchange struct {
	cmd  []byte
	resp apdu.Response
}

// Session is one selected-applet channel to a card. It is the unit the
// token registry wraps into a Token; Protocol operations in this package
// take a *Session rather than reaching into token state directly, so this
// package has no dependency on the token package.
type Session struct {
	Card   transport.CardHandle
	Logger *slog.Logger
	Debug  bool

	mu      sync.Mutex
	history []exchange
}

// NewSession wraps a connected, applet-selectable card handle.
func NewSession(card transport.CardHandle, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{Card: card, Logger: logger}
}

// transceive issues one chained command/response exchange, recording it
// for DumpLastExchange and returning a piverrors taxonomy error on
// terminal failure status words (skips success / "more data" which are not
// errors).
func (s *Session) transceive(ctx context.Context, op string, cmd apdu.Command) (apdu.Response, error) {
	resp, err := transport.TransceiveChain(ctx, s.Card, cmd)
	if err != nil {
		return apdu.Response{}, err
	}

	wire, _ := cmd.Bytes()
	s.record(wire, resp)

	if resp.IsSuccess() || resp.IsWarning() {
		return resp, nil
	}
	return resp, piverrors.FromStatusWord(op, resp.SW())
}

func (s *Session) record(cmd []byte, resp apdu.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, exchange{cmd: cmd, resp: resp})
	if len(s.history) > exchangeHistoryDepth {
		s.history = s.history[len(s.history)-exchangeHistoryDepth:]
	}
}

// DumpHistory renders the last few exchanges, for debug-level logging when
// a parser returns PIVTagError/InvalidDataError.
func (s *Session) DumpHistory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ""
	for _, e := range s.history {
		out += transport.DumpLastExchange(e.cmd, e.resp) + "\n"
	}
	return out
}

func (s *Session) logParseError(op string, err error) {
	s.Logger.Debug("piv: parse error", "op", op, "err", err, "history", s.DumpHistory())
}

// Select issues SELECT with the PIV AID and parses the returned APT (tag
// 0x61).
func Select(ctx context.Context, s *Session) (*APT, error) {
	resp, err := s.transceive(ctx, "SELECT", apdu.Command{
		Class: 0x00, Ins: apdu.InsSelect, P1: 0x04, P2: 0x00,
		Data: AID, HasLe: true, Le: 0x00,
	})
	if err != nil {
		return nil, err
	}
	apt, err := parseAPT(resp.Data)
	if err != nil {
		s.logParseError("SELECT", err)
		return nil, err
	}
	return apt, nil
}
