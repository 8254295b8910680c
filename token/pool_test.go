package token

import "testing"

func TestPoolByGUIDAndScanTracking(t *testing.T) {
	a := &Token{GUID: []byte{0x01, 0x02}}
	b := &Token{GUID: []byte{0x03, 0x04}}
	pool := NewPool([]*Token{a, b})

	if got := pool.ByGUID([]byte{0x03, 0x04}); got != b {
		t.Fatalf("ByGUID did not find token b")
	}
	if got := pool.ByGUID([]byte{0xFF}); got != nil {
		t.Fatalf("ByGUID found a token for an unknown GUID")
	}

	if pool.IsScanned(a) {
		t.Fatalf("IsScanned(a) = true before MarkScanned")
	}
	pool.MarkScanned(a)
	if !pool.IsScanned(a) {
		t.Fatalf("IsScanned(a) = false after MarkScanned")
	}
	if pool.IsScanned(b) {
		t.Fatalf("IsScanned(b) = true, scanning a should not affect b")
	}

	snapshot := pool.Tokens()
	if len(snapshot) != 2 {
		t.Fatalf("Tokens() length = %d, want 2", len(snapshot))
	}
}
