/*
@Description: Sliding-window XOR stream codec tests
@Language: Go 1.23.4
*/

package relay

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestStreamCodecRecoversSingleErasure(t *testing.T) {
	enc := newStreamCodecEncoder()
	dec := newStreamCodecDecoder()

	chunks := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 20),
		bytes.Repeat([]byte{3}, 5),
	}
	var indices []uint32
	for _, c := range chunks {
		indices = append(indices, enc.addChunk(c))
	}
	fec := enc.generateFEC()

	// Lose chunk index 1; feed 0, 2 and the recovery symbol.
	dec.addOriginal(chunks[0], indices[0])
	dec.addOriginal(chunks[2], indices[2])
	if err := dec.addRecovery(fec); err != nil {
		t.Fatalf("addRecovery: %v", err)
	}

	got := dec.getOriginal(indices[1])
	if !bytes.Equal(got, chunks[1]) {
		t.Fatalf("recovered chunk mismatch: got %x want %x", got, chunks[1])
	}
}

func TestStreamCodecAddOriginalIdempotent(t *testing.T) {
	dec := newStreamCodecDecoder()
	dec.addOriginal([]byte("a"), 0)
	dec.addOriginal([]byte("a"), 0)
	if len(dec.newOriginals) != 1 {
		t.Fatalf("duplicate add_original should be a no-op, got %d new originals", len(dec.newOriginals))
	}
}

func TestStreamCodecAckReflectsContiguousFrontier(t *testing.T) {
	dec := newStreamCodecDecoder()
	dec.addOriginal([]byte("a"), 0)
	dec.addOriginal([]byte("b"), 1)
	dec.addOriginal([]byte("c"), 3) // gap at 2

	ack := dec.generateAck()
	if ack == nil {
		t.Fatal("expected a non-nil ack after progress")
	}
	if got := binary.NativeEndian.Uint32(ack); got != 2 {
		t.Fatalf("ack should report contiguousNext=2 (index 2 still missing), got %d", got)
	}

	// No further progress: next call returns nil.
	if dec.generateAck() != nil {
		t.Fatal("ack should be nil when there's no new progress")
	}
}
