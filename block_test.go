/*
@Description: Block engine tests (spec.md §4.B, §8 properties 1-2)
@Language: Go 1.23.4
*/

package relay

import (
	"bytes"
	"testing"
)

func TestBlockProcessSymbolIdempotentAfterDecode(t *testing.T) {
	data := bytes.Repeat([]byte{0x6a}, 1777)
	enc, err := newBlockEncoder(uint32(len(data)), data)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}

	b, err := NewBlock(uint32(len(data)))
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	var firstDecode bool
	for i := 0; i < b.NOriginals(); i++ {
		decoded, err := b.ProcessSymbol(enc.getSymbol(uint32(i)), uint32(i))
		if err != nil {
			t.Fatalf("process symbol %d: %v", i, err)
		}
		if decoded {
			firstDecode = true
		}
	}
	if !firstDecode {
		t.Fatal("expected block to become decoded")
	}
	before := b.Decoded()

	// Re-feed symbol 0 after the block is decoded: must be a no-op.
	decoded, err := b.ProcessSymbol(enc.getSymbol(0), 0)
	if err != nil {
		t.Fatalf("late process symbol: %v", err)
	}
	if decoded {
		t.Fatal("re-processing after decode should return false")
	}
	if !bytes.Equal(b.Decoded(), before) {
		t.Fatal("decoded bytes mutated by a late symbol")
	}
}

func TestBlockGrowSymbolsSeenDoubleAndFloor(t *testing.T) {
	b, err := NewBlock(10)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	initial := len(b.symbolsSeen)

	b.growSymbolsSeen(uint32(initial + 50))
	if len(b.symbolsSeen) < initial+51 {
		t.Fatalf("symbolsSeen should cover index %d, has length %d", initial+50, len(b.symbolsSeen))
	}

	b2, _ := NewBlock(10)
	before := len(b2.symbolsSeen)
	b2.growSymbolsSeen(uint32(before - 1)) // within range already
	if len(b2.symbolsSeen) != before {
		t.Fatalf("growSymbolsSeen should not shrink or grow when index already covered, got %d want %d", len(b2.symbolsSeen), before)
	}
}

func TestBlockUnseenSymbolsAscendingAndBounded(t *testing.T) {
	data := bytes.Repeat([]byte{0x6a}, 1777)
	b, err := NewBlockFromData(data)
	if err != nil {
		t.Fatalf("NewBlockFromData: %v", err)
	}

	n := b.NOriginals()
	count := ReemissionCount(n)
	symbols := b.UnseenSymbols(count)
	if len(symbols) != count {
		t.Fatalf("expected %d symbols, got %d", count, len(symbols))
	}
	for i, s := range symbols {
		if int(s.Index) != i {
			t.Fatalf("symbol %d has index %d, expected ascending from 0", i, s.Index)
		}
	}
}

func TestReemissionCountRoundsToNearest(t *testing.T) {
	if got := ReemissionCount(10); got != 13 { // round(10 * 1.3) = 13
		t.Errorf("ReemissionCount(10) = %d, want 13", got)
	}
}
