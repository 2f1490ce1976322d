/*
@Description: Block codec (Reed-Solomon) tests
@Language: Go 1.23.4
*/

package relay

import (
	"bytes"
	"hash/crc32"
	"testing"
)

// TestBlockCodecRecoversFromExactOriginals is spec.md §8 property 1: any n
// of the n+parity shards reconstructs the block byte-exactly.
func TestBlockCodecRecoversFromExactOriginals(t *testing.T) {
	data := bytes.Repeat([]byte{0x6a}, 1777) // scenario (a): 1777 bytes of 'j'
	enc, err := newBlockEncoder(uint32(len(data)), data)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}

	dec, err := newBlockDecoder(uint32(len(data)))
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	// Feed only the first n original symbols, never the parity.
	for i := 0; i < enc.n; i++ {
		decoded, err := dec.processSymbol(enc.getSymbol(uint32(i)), uint32(i))
		if err != nil {
			t.Fatalf("process symbol %d: %v", i, err)
		}
		if i == enc.n-1 {
			if decoded == nil {
				t.Fatal("expected block to be decoded after n originals")
			}
			if crc32.ChecksumIEEE(decoded) != crc32.ChecksumIEEE(data) {
				t.Fatal("CRC-32 mismatch after decode")
			}
		} else if decoded != nil {
			t.Fatalf("decoded too early, after only %d of %d symbols", i+1, enc.n)
		}
	}
}

// TestBlockCodecRecoversWithParitySubstitute feeds a mix that substitutes a
// lost original with a parity shard, exercising actual erasure recovery.
func TestBlockCodecRecoversWithParitySubstitute(t *testing.T) {
	data := bytes.Repeat([]byte{0x6a}, 1777)
	enc, err := newBlockEncoder(uint32(len(data)), data)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	if enc.parity < 1 {
		t.Fatal("expected at least one parity shard")
	}

	dec, err := newBlockDecoder(uint32(len(data)))
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	// Skip original index 0, substitute the first parity symbol instead.
	var decoded []byte
	for i := 1; i < enc.n; i++ {
		decoded, err = dec.processSymbol(enc.getSymbol(uint32(i)), uint32(i))
		if err != nil {
			t.Fatalf("process symbol %d: %v", i, err)
		}
	}
	decoded, err = dec.processSymbol(enc.getSymbol(uint32(enc.n)), uint32(enc.n))
	if err != nil {
		t.Fatalf("process parity symbol: %v", err)
	}
	if decoded == nil {
		t.Fatal("expected block decoded once n shards total received")
	}
	if !bytes.Equal(decoded, data) {
		t.Fatal("recovered bytes do not match original")
	}
}

func TestParityShardCountClampsToLibraryLimit(t *testing.T) {
	p := parityShardCount(maxRSShards - 1)
	if maxRSShards-1+p > maxRSShards {
		t.Fatalf("parity count %d overflows shard limit for n=%d", p, maxRSShards-1)
	}
	if p < 1 {
		t.Fatal("parity count must be at least 1")
	}
}

func TestNumOriginalsBoundary(t *testing.T) {
	cases := []struct {
		size uint32
		want int
	}{
		{0, 1},
		{1, 1},
		{MaxBlockPayload, 1},
		{MaxBlockPayload + 1, 2},
	}
	for _, c := range cases {
		if got := numOriginals(c.size); got != c.want {
			t.Errorf("numOriginals(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}
