/*
@Description: Stream engine tests (spec.md §4.C, §8 properties 3-5)
@Language: Go 1.23.4
*/

package relay

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
)

// TestStreamInterleavingRatio is spec.md §8 property 5: in the first
// k*(d+f) emitted symbols from a full queue, exactly k*d are original and
// k*f are FEC.
func TestStreamInterleavingRatio(t *testing.T) {
	enc := NewStreamEncoder()
	const k = 3
	segment := FECRatioDen + FECRatioNum
	total := k * segment

	for i := 0; i < total; i++ {
		enc.QueueChunk([]byte{byte(i)})
	}

	var originals, fec int
	for i := 0; i < total && enc.HasData(); i++ {
		sym := enc.GetSymbol()
		if sym.IsRecovery() {
			fec++
		} else {
			originals++
		}
	}
	if originals != k*FECRatioDen {
		t.Errorf("originals = %d, want %d", originals, k*FECRatioDen)
	}
	if fec != k*FECRatioNum {
		t.Errorf("fec = %d, want %d", fec, k*FECRatioNum)
	}
}

// TestStreamAckMonotonicity is spec.md §8 property 4.
func TestStreamAckMonotonicity(t *testing.T) {
	enc := NewStreamEncoder()
	enc.QueueChunk([]byte("x"))
	enc.GetSymbol()

	advance := make([]byte, 4)
	binary.NativeEndian.PutUint32(advance, 5)
	enc.ProcessAck(advance)
	if enc.receiverExpects != 5 {
		t.Fatalf("receiverExpects = %d, want 5", enc.receiverExpects)
	}

	regress := make([]byte, 4) // encodes 0
	enc.ProcessAck(regress)
	if enc.receiverExpects != 5 {
		t.Fatalf("receiverExpects regressed to %d after an out-of-order ack", enc.receiverExpects)
	}
}

// TestStreamInOrderDeliveryWithLoss is scenario (b): 100 chunks, every 7th
// outgoing symbol lost, expect all 100 delivered in order.
func TestStreamInOrderDeliveryWithLoss(t *testing.T) {
	enc := NewStreamEncoder()
	dec := NewStreamDecoder()

	const nChunks = 100
	want := make([][]byte, nChunks)
	for i := range want {
		chunk := make([]byte, 1000)
		rand.Read(chunk)
		want[i] = chunk
		enc.QueueChunk(chunk)
	}

	sent := 0
	for enc.HasData() {
		sym := enc.GetSymbol()
		sent++
		if sent%7 == 0 {
			continue // simulated loss
		}
		if err := dec.ProcessSymbol(sym.Payload, sym.Index); err != nil {
			t.Fatalf("ProcessSymbol: %v", err)
		}
	}
	if sent > 140 {
		t.Fatalf("emitted %d symbols, expected bounded by ~140", sent)
	}

	var got [][]byte
	for dec.HasData() {
		got = append(got, dec.GetChunk())
	}
	if len(got) != nChunks {
		t.Fatalf("delivered %d chunks, want %d", len(got), nChunks)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("chunk %d mismatch", i)
		}
	}
}

// TestStreamDecoderBuffersFarFutureIndex is scenario (f).
func TestStreamDecoderBuffersFarFutureIndex(t *testing.T) {
	dec := NewStreamDecoder()

	if err := dec.ProcessSymbol([]byte("later"), 5); err != nil {
		t.Fatalf("ProcessSymbol: %v", err)
	}
	if dec.HasData() {
		t.Fatal("index 5 shouldn't be deliverable before 0..4 arrive")
	}

	for i := uint32(0); i < 5; i++ {
		if err := dec.ProcessSymbol([]byte{byte(i)}, i); err != nil {
			t.Fatalf("ProcessSymbol(%d): %v", i, err)
		}
	}

	var got []uint32
	for dec.HasData() {
		chunk := dec.GetChunk()
		if len(chunk) == 1 {
			got = append(got, uint32(chunk[0]))
		} else {
			got = append(got, 5)
		}
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 chunks delivered (0..5), got %d", len(got))
	}
}

func TestStreamReliabilityLevelAllAcked(t *testing.T) {
	enc := NewStreamEncoder()
	enc.QueueChunk([]byte("a"))
	enc.GetSymbol()

	ack := make([]byte, 4)
	binary.NativeEndian.PutUint32(ack, 1)
	enc.ProcessAck(ack)

	if lvl := enc.ReliabilityLevel(); lvl != AllAcked {
		t.Fatalf("ReliabilityLevel() = %v, want AllAcked", lvl)
	}
}
