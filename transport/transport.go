// Package transport implements the APDU command/response chaining state
// machine that sits between the PIV protocol layer and a PC/SC-style
// reader. Its single unit of transfer is capped at 255 command bytes and
// ~256 response bytes; this package fragments and
// reassembles across that cap.
package transport

import (
	"context"
	"fmt"

	"pivcard/apdu"
	"pivcard/piverrors"
)

// MaxAPDU is the largest short-form command body (and, by the ISO Le=0
// convention, the largest single response body) this transport issues.
const MaxAPDU = 255

// CardHandle is the reader-provider contract the transport consumes.
// Production code backs it with pcsc.Card (github.com/ebfe/scard); tests
// substitute a scripted mock that drives the chaining state machine
// directly.
type CardHandle interface {
	Transmit(ctx context.Context, cmd []byte) (resp []byte, err error)
}

// Transceive issues one wire APDU (already <=255 bytes of body) and parses
// one reply. It does not chain; use Transceive for single-fragment
// commands and TransceiveChain for arbitrary-length command/response pairs.
func Transceive(ctx context.Context, card CardHandle, cmd apdu.Command) (apdu.Response, error) {
	wire, err := cmd.Bytes()
	if err != nil {
		return apdu.Response{}, piverrors.Wrap(piverrors.KindArgument, "transport: encode command", err)
	}
	raw, err := card.Transmit(ctx, wire)
	if err != nil {
		return apdu.Response{}, piverrors.Wrap(piverrors.KindIO, "transport: transmit", err)
	}
	resp, err := apdu.ParseResponse(raw)
	if err != nil {
		return apdu.Response{}, piverrors.Wrap(piverrors.KindIO, "transport: parse response", err)
	}
	return resp, nil
}

// TransceiveChain sends a command of arbitrary length (fragmenting into
// chained 255-byte segments) and receives a response
// of arbitrary length (via GET RESPONSE response chaining per the same
// section), returning the fully reassembled body and final status word.
func TransceiveChain(ctx context.Context, card CardHandle, cmd apdu.Command) (apdu.Response, error) {
	fragments := fragmentBody(cmd.Data)
	if len(fragments) == 0 {
		fragments = [][]byte{nil}
	}

	var last apdu.Response
	for i, frag := range fragments {
		if err := ctx.Err(); err != nil {
			return apdu.Response{}, err
		}
		segment := cmd
		segment.Data = frag
		segment.Class = cmd.Class
		if i < len(fragments)-1 {
			segment.Class |= apdu.ClassChaining
		}

		resp, err := transceiveWithRetry(ctx, card, segment)
		if err != nil {
			return apdu.Response{}, err
		}
		last = resp

		switch {
		case resp.IsSuccess(), resp.HasMoreData(), resp.IsWarning():
			// advance to next segment
		default:
			// terminal status mid-chain: stop and let the caller inspect SW.
			return resp, nil
		}
	}

	return reassembleResponse(ctx, card, last)
}

// transceiveWithRetry implements the per-segment 0x6Cxx "wrong Le, retry
// with corrected Le" rule: retry the *same* segment with the corrected Le,
// never advancing to the next fragment.
func transceiveWithRetry(ctx context.Context, card CardHandle, cmd apdu.Command) (apdu.Response, error) {
	cmd.HasLe = true
	for {
		resp, err := Transceive(ctx, card, cmd)
		if err != nil {
			return apdu.Response{}, err
		}
		if resp.WrongLe() {
			cmd.Le = resp.SW2
			continue
		}
		return resp, nil
	}
}

// reassembleResponse drives ISO GET RESPONSE (INS 0xC0) until a terminal
// status word, concatenating bodies in order. It also implements the
// "0x9000 with a full 255-byte body" workaround (some cards omit 0x61xx
// entirely, even across several consecutive full pages) and the
// 0x6A80-after-0x9000 normalization quirk. Both are load-bearing for
// specific buggy cards observed in the wild and must not be "cleaned up"
// away.
func reassembleResponse(ctx context.Context, card CardHandle, last apdu.Response) (apdu.Response, error) {
	body := append([]byte{}, last.Data...)
	sw1, sw2 := last.SW1, last.SW2

	sawIntermediate9000 := sw1 == 0x90 && sw2 == 0x00

	needsGetResponse := last.HasMoreData() || (last.IsSuccess() && len(last.Data) == MaxAPDU)
	for needsGetResponse {
		le := byte(0)
		if last.HasMoreData() {
			le = last.SW2
		}
		resp, err := Transceive(ctx, card, apdu.Command{
			Class: 0x00,
			Ins:   apdu.InsGetResponse,
			Le:    le,
			HasLe: true,
		})
		if err != nil {
			return apdu.Response{}, err
		}

		if resp.IsSuccess() {
			sawIntermediate9000 = true
		}
		if sawIntermediate9000 && resp.SW() == 0x6A80 {
			// buggy-card normalization: treat a trailing 6A80 after at
			// least one 9000 was observed as a clean terminal 9000.
			resp.SW1, resp.SW2 = 0x90, 0x00
		}

		body = append(body, resp.Data...)
		last = resp
		sw1, sw2 = resp.SW1, resp.SW2
		needsGetResponse = resp.HasMoreData() || (resp.IsSuccess() && len(resp.Data) == MaxAPDU)
	}

	return apdu.Response{Data: body, SW1: sw1, SW2: sw2}, nil
}

// fragmentBody slices data into <=255-byte pieces, matching command
// chaining's Lc-per-fragment rule.
func fragmentBody(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var out [][]byte
	for offset := 0; offset < len(data); offset += MaxAPDU {
		end := offset + MaxAPDU
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[offset:end])
	}
	return out
}

// DumpLastExchange renders a command/response pair for debug-level
// forensics ("the transport's last reply buffer is
// dumped at debug level").
func DumpLastExchange(cmd []byte, resp apdu.Response) string {
	return fmt.Sprintf("cmd=% X sw=%04X data=% X", cmd, resp.SW(), resp.Data)
}
