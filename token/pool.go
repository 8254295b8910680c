package token

import (
	"encoding/hex"
	"sync"
)

// Pool is an in-memory collection of already-enumerated tokens, shared by
// callers that need to search a fixed set repeatedly (the box package's
// find_token strategy) without re-running discovery each time. scanned
// tracks, by GUID, which tokens have already had ReadAllCerts run against
// them, so an exhaustive scan never repeats work across calls.
type Pool struct {
	mu      sync.Mutex
	tokens  []*Token
	scanned map[string]bool
}

// NewPool wraps an already-enumerated token slice (e.g. from Enumerate).
func NewPool(tokens []*Token) *Pool {
	return &Pool{tokens: tokens, scanned: make(map[string]bool)}
}

// Tokens returns a snapshot of the pool's tokens.
func (p *Pool) Tokens() []*Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Token, len(p.tokens))
	copy(out, p.tokens)
	return out
}

// ByGUID returns the token whose GUID equals guid, if any.
func (p *Pool) ByGUID(guid []byte) *Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tokens {
		if hexEqual(t.GUID, guid) {
			return t
		}
	}
	return nil
}

// IsScanned reports whether t has already had an exhaustive ReadAllCerts
// pass performed against it by this pool.
func (p *Pool) IsScanned(t *Token) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanned[guidKey(t.GUID)]
}

// MarkScanned records that t has now been exhaustively scanned.
func (p *Pool) MarkScanned(t *Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scanned[guidKey(t.GUID)] = true
}

func guidKey(guid []byte) string {
	return hex.EncodeToString(guid)
}

func hexEqual(a, b []byte) bool {
	return guidKey(a) == guidKey(b)
}
