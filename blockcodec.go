/*
@Description: Reed-Solomon-backed block codec (spec.md §4.A "Block codec")
@Language: Go 1.23.4
*/

package relay

import (
	"github.com/klauspost/reedsolomon"
)

// maxRSShards is klauspost/reedsolomon's hard limit on dataShards+
// parityShards combined.
const maxRSShards = 256

// numOriginals returns n, the number of MAX_BLOCK_PAYLOAD-sized original
// shards a block of blockSize bytes splits into.
func numOriginals(blockSize uint32) int {
	if blockSize == 0 {
		return 1
	}
	return int((blockSize + MaxBlockPayload - 1) / MaxBlockPayload)
}

// parityShardCount returns how many redundancy shards accompany n original
// shards, derived from Redundancy so encoder and decoder agree without
// negotiation (see SPEC_FULL.md §3). Always at least 1 so a single lost
// original is always recoverable.
func parityShardCount(n int) int {
	p := int(float64(n)*(Redundancy-1) + 0.5)
	if p < 1 {
		p = 1
	}
	if n+p > maxRSShards {
		p = maxRSShards - n
	}
	if p < 1 {
		p = 1
	}
	return p
}

// blockCodec is the Codec Adapter's block-shaped half: a Reed-Solomon
// erasure code over n = ceil(block_size/MAX_BLOCK_PAYLOAD) data shards plus
// parityShardCount(n) parity shards. Any n of the n+parity shards
// reconstruct the block exactly (ε = 0 in spec.md §8 property 1).
type blockCodec struct {
	blockSize   uint32
	n           int
	parity      int
	shardWidth  int
	codec       reedsolomon.Encoder
	shards      [][]byte // len n+parity; nil until received or generated
	have        []bool
	decoded     []byte // set once recoverable; original, unpadded bytes
}

// newBlockEncoder builds a codec already holding the full block, ready to
// emit any symbol on demand.
func newBlockEncoder(blockSize uint32, data []byte) (*blockCodec, error) {
	bc, err := newBlockCodecShape(blockSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < bc.n; i++ {
		lo := i * bc.shardWidth
		hi := lo + bc.shardWidth
		if hi > len(data) {
			hi = len(data)
		}
		shard := make([]byte, bc.shardWidth)
		copy(shard, data[lo:hi])
		bc.shards[i] = shard
		bc.have[i] = true
	}
	if err := bc.codec.Encode(bc.shards); err != nil {
		return nil, badSymbol(err.Error())
	}
	for i := bc.n; i < bc.n+bc.parity; i++ {
		bc.have[i] = true
	}
	bc.decoded = append([]byte(nil), data...)
	return bc, nil
}

// newBlockDecoder builds a codec for a block of known size but no content
// yet; ProcessSymbol feeds it shards until enough arrive to reconstruct.
func newBlockDecoder(blockSize uint32) (*blockCodec, error) {
	return newBlockCodecShape(blockSize)
}

func newBlockCodecShape(blockSize uint32) (*blockCodec, error) {
	n := numOriginals(blockSize)
	p := parityShardCount(n)
	codec, err := reedsolomon.New(n, p)
	if err != nil {
		return nil, badSymbol(err.Error())
	}
	return &blockCodec{
		blockSize:  blockSize,
		n:          n,
		parity:     p,
		shardWidth: MaxBlockPayload,
		codec:      codec,
		shards:     make([][]byte, n+p),
		have:       make([]bool, n+p),
	}, nil
}

// isDecoded reports whether the block has been fully recovered (or was
// constructed from full bytes to begin with).
func (bc *blockCodec) isDecoded() bool {
	return bc.decoded != nil
}

// getSymbol is a pure function of codec state: original indices slice the
// decoded block (last one truncated to its true tail length), redundancy
// indices return a cached parity shard. Only valid once isDecoded().
func (bc *blockCodec) getSymbol(index uint32) []byte {
	if int(index) < bc.n {
		lo := int(index) * bc.shardWidth
		hi := lo + bc.shardWidth
		if hi > len(bc.decoded) {
			hi = len(bc.decoded)
		}
		if lo > len(bc.decoded) {
			lo = len(bc.decoded)
		}
		return bc.decoded[lo:hi]
	}
	idx := int(index) - bc.n
	if idx >= bc.parity {
		idx %= bc.parity
	}
	return bc.shards[bc.n+idx]
}

// processSymbol feeds one shard into the decoder. Returns the decoded block
// the first time reconstruction succeeds; nil otherwise. Returns
// ErrBadSymbol if the Reed-Solomon codec reports corrupted shards.
func (bc *blockCodec) processSymbol(payload []byte, index uint32) ([]byte, error) {
	if int(index) >= bc.n+bc.parity || bc.have[index] {
		return nil, nil
	}

	shard := make([]byte, bc.shardWidth)
	copy(shard, payload)
	bc.shards[index] = shard
	bc.have[index] = true

	received := 0
	for _, h := range bc.have {
		if h {
			received++
		}
	}
	if received < bc.n {
		return nil, nil
	}

	working := make([][]byte, len(bc.shards))
	for i, h := range bc.have {
		if h {
			working[i] = bc.shards[i]
		}
	}
	if err := bc.codec.Reconstruct(working); err != nil {
		return nil, badSymbol(err.Error())
	}
	bc.shards = working
	for i := range bc.have {
		bc.have[i] = true
	}

	decoded := make([]byte, 0, bc.n*bc.shardWidth)
	for i := 0; i < bc.n; i++ {
		decoded = append(decoded, bc.shards[i]...)
	}
	if uint32(len(decoded)) > bc.blockSize {
		decoded = decoded[:bc.blockSize]
	}
	bc.decoded = decoded
	return decoded, nil
}
