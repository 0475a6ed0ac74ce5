package core

import "sync/atomic"

// Tally is the receive-side verification accumulator: two monotonic
// counters, bumped by the worker goroutine and safe to read from the UI
// goroutine at any time.
type Tally struct {
	items atomic.Uint64
	bytes atomic.Uint64
}

func (t *Tally) AddItem() {
	t.items.Add(1)
}

func (t *Tally) AddBytes(n uint64) {
	t.bytes.Add(n)
}

func (t *Tally) Items() uint64 {
	return t.items.Load()
}

func (t *Tally) Bytes() uint64 {
	return t.bytes.Load()
}

// Verify compares the running counters against the declared totals.
// Exact equality is required on both dimensions.
func (t *Tally) Verify(wantItems, wantBytes uint64) *VerificationResult {
	items := t.items.Load()
	bytes := t.bytes.Load()

	return &VerificationResult{
		ItemsExpected: wantItems,
		ItemsReceived: items,
		BytesExpected: wantBytes,
		BytesReceived: bytes,
		Matched:       items == wantItems && bytes == wantBytes,
	}
}

// VerificationResult is computed once at the Verifying transition and
// never mutated afterward. Both sets of numbers are kept so a mismatch
// can be reported precisely, not just as a failure.
type VerificationResult struct {
	ItemsExpected uint64
	ItemsReceived uint64
	BytesExpected uint64
	BytesReceived uint64
	Matched       bool
}
