package nonce

import "testing"

// TestNewStoreKeepsNilPool is a smoke test of the constructor only; it does
// not exercise ConsumeNonce or its queries.
func TestNewStoreKeepsNilPool(t *testing.T) {
	// Assert the store can be constructed with a nil pool without panicking,
	// since Store holds no invariants until a call is made.
	s := NewStore(nil, nil)
	if s.pool != nil {
		t.Fatalf("expected nil pool to be stored verbatim")
	}
}
