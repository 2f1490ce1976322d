/*
@Description: Block engine — per-block decode state (spec.md §4.B)
@Language: Go 1.23.4
*/

package relay

import "math"

// Block holds the decode state for one (channel, block_id): which symbol
// indices have been seen, the underlying Reed-Solomon codec, and — once
// recoverable — the reassembled bytes. Mirrors the invariants of spec.md
// §3: decoded never changes once non-empty, symbolsSeen only grows.
type Block struct {
	blockSize   uint32
	symbolsSeen []bool
	codec       *blockCodec
}

// NewBlock creates decode state for a block of the given size, lazily
// instantiated on first packet for that (channel, block_id) per spec.md §3.
func NewBlock(blockSize uint32) (*Block, error) {
	codec, err := newBlockDecoder(blockSize)
	if err != nil {
		return nil, err
	}
	return &Block{
		blockSize:   blockSize,
		symbolsSeen: make([]bool, numOriginals(blockSize)*2),
		codec:       codec,
	}, nil
}

// NewBlockFromData builds a Block already fully decoded from data, for the
// publishing side (spec.md §4.G "--action block"): data is framed once and
// unseen_symbols immediately yields the re-emission-policy prefix.
func NewBlockFromData(data []byte) (*Block, error) {
	codec, err := newBlockEncoder(uint32(len(data)), data)
	if err != nil {
		return nil, err
	}
	n := numOriginals(uint32(len(data)))
	return &Block{
		blockSize:   uint32(len(data)),
		symbolsSeen: make([]bool, n),
		codec:       codec,
	}, nil
}

// NOriginals is n, the number of original (non-redundant) symbols.
func (b *Block) NOriginals() int {
	return numOriginals(b.blockSize)
}

// Decoded returns the reassembled block, or nil if not yet recoverable.
func (b *Block) Decoded() []byte {
	return b.codec.decoded
}

// ProcessSymbol feeds one incoming symbol. Returns true the first time the
// block becomes fully decoded; false on every other call, including all
// calls after the first successful decode (idempotence, spec.md §8
// property 2).
func (b *Block) ProcessSymbol(payload []byte, index uint32) (bool, error) {
	if b.codec.isDecoded() {
		return false, nil
	}

	b.growSymbolsSeen(index)
	b.symbolsSeen[index] = true

	decoded, err := b.codec.processSymbol(payload, index)
	if err != nil {
		return false, err
	}
	return decoded != nil, nil
}

// growSymbolsSeen implements the "double-and-floor" growth policy of
// spec.md §4.B: new length is max(index+1, 2*old_len).
func (b *Block) growSymbolsSeen(index uint32) {
	if int(index) < len(b.symbolsSeen) {
		return
	}
	newLen := len(b.symbolsSeen) * 2
	if want := int(index) + 1; want > newLen {
		newLen = want
	}
	grown := make([]bool, newLen)
	copy(grown, b.symbolsSeen)
	b.symbolsSeen = grown
}

// UnseenSymbols returns, in ascending index order, up to max (payload,
// index) pairs for every index whose symbolsSeen slot is false. Originals
// are sliced from the decoded block; redundancy symbols (index >= n) are the
// codec's precomputed parity shards. There are only parityShardCount(n)
// distinct parity shards: indices past the last one repeat those shards
// cyclically, and a blockCodec decoder ignores such indices. Only
// meaningful once Decoded() is non-empty. The index sequence never runs out
// in its redundant tail; this restartable call takes the bounded
// prefix callers need instead of exposing an iterator, since Go's
// idiomatic equivalent of the C++ "restartable generator" is simply
// recomputing from index 0 each time — cheap here because emission only
// ever happens right after a decode, not in a hot loop.
func (b *Block) UnseenSymbols(max int) []Symbol {
	if max <= 0 {
		return nil
	}
	out := make([]Symbol, 0, max)
	for index := uint32(0); len(out) < max; index++ {
		if int(index) < len(b.symbolsSeen) && b.symbolsSeen[index] {
			continue
		}
		out = append(out, Symbol{Payload: b.codec.getSymbol(index), Index: index})
	}
	return out
}

// ReemissionCount is round(n * Redundancy), the number of symbols a block
// re-emits to subscribers once it first becomes decodable (spec.md §4.B).
func ReemissionCount(n int) int {
	return int(math.Round(float64(n) * Redundancy))
}
