package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTallyVerify(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		bytes     uint64
		wantItems uint64
		wantBytes uint64
		matched   bool
	}{
		{name: "exact match", items: 4, bytes: 1000005, wantItems: 4, wantBytes: 1000005, matched: true},
		{name: "empty transfer", items: 0, bytes: 0, wantItems: 0, wantBytes: 0, matched: true},
		{name: "item short", items: 3, bytes: 1000005, wantItems: 4, wantBytes: 1000005, matched: false},
		{name: "byte short", items: 4, bytes: 5, wantItems: 4, wantBytes: 1000005, matched: false},
		{name: "byte overshoot", items: 4, bytes: 1000006, wantItems: 4, wantBytes: 1000005, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tally Tally
			for i := 0; i < tt.items; i++ {
				tally.AddItem()
			}
			tally.AddBytes(tt.bytes)

			res := tally.Verify(tt.wantItems, tt.wantBytes)

			assert.Equal(t, tt.matched, res.Matched)
			assert.Equal(t, tt.wantItems, res.ItemsExpected)
			assert.Equal(t, uint64(tt.items), res.ItemsReceived)
			assert.Equal(t, tt.wantBytes, res.BytesExpected)
			assert.Equal(t, tt.bytes, res.BytesReceived)
		})
	}
}

func TestTallyConcurrent(t *testing.T) {
	var tally Tally
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tally.AddItem()
				tally.AddBytes(10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), tally.Items())
	assert.Equal(t, uint64(80000), tally.Bytes())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "complete", PhaseComplete.String())
	assert.Equal(t, "aborted", PhaseAborted.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
