/*
@Description: Stream engine — bidirectional ordered chunk pipeline (spec.md §4.C)
@Language: Go 1.23.4
*/

package relay

import "container/heap"

// ReliabilityLevel hints how urgently a stream encoder should emit extra
// FEC symbols (spec.md §4.C).
type ReliabilityLevel int

const (
	AllAcked ReliabilityLevel = iota
	AtRatio
	UnderRatio
)

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// StreamEncoder is the outgoing half of a Stream: a pending-chunk queue, the
// FEC codec, and the interleaving counters that decide whether the next
// emitted symbol is an original chunk or a recovery symbol.
type StreamEncoder struct {
	pending *RingBuffer[[]byte]
	codec   *streamCodecEncoder

	receiverExpects uint32
	everAcked       bool

	segChunk1 int // 1-based offset within the segment: 0, 1..d, 1..d, ...
	segFec    int // cycles [0, f)
}

// NewStreamEncoder returns an empty encoder ready to accept chunks.
func NewStreamEncoder() *StreamEncoder {
	return &StreamEncoder{
		pending: &RingBuffer[[]byte]{buffer: make([][]byte, 4)},
		codec:   newStreamCodecEncoder(),
	}
}

// QueueChunk enqueues a chunk for future emission.
func (e *StreamEncoder) QueueChunk(chunk []byte) {
	e.pending.Push(append([]byte(nil), chunk...))
}

// isNextSymbolFEC implements the deterministic interleaving rule of
// spec.md §4.C: within a segment of d chunks, FEC symbol k ∈ [0,f) goes
// just before chunk number ceil((k+1)*d/f).
func (e *StreamEncoder) isNextSymbolFEC() bool {
	fecBefore := ceilDiv((e.segFec+1)*FECRatioDen, FECRatioNum)
	return e.segChunk1 == fecBefore
}

// HasData reports whether a call to GetSymbol would produce something.
func (e *StreamEncoder) HasData() bool {
	return !e.pending.Empty() || e.isNextSymbolFEC()
}

// GetSymbol returns the next symbol to send: a recovery symbol if the
// interleaving rule calls for one now, otherwise the next pending chunk.
// Panics if called with HasData() false, mirroring the codec contract that
// get_symbol is only ever called when there's something to emit.
func (e *StreamEncoder) GetSymbol() Symbol {
	if e.isNextSymbolFEC() {
		e.segFec = (e.segFec + 1) % FECRatioNum
		return Symbol{Payload: e.codec.generateFEC(), Index: FECIndex}
	}

	chunk, ok := e.pending.Pop()
	if !ok {
		panic("fecrelay: GetSymbol called with no pending chunk and no FEC due")
	}
	index := e.codec.addChunk(chunk)

	e.segChunk1 %= FECRatioDen
	e.segChunk1++

	return Symbol{Payload: chunk, Index: index}
}

// ProcessAck updates receiver_expects from an incoming STREAM_ACK payload.
// receiver_expects never decreases (spec.md §8 property 4); out-of-order
// acks are simply ignored if they report less progress than already known.
func (e *StreamEncoder) ProcessAck(payload []byte) {
	next := e.codec.processAck(payload)
	if !e.everAcked || next > e.receiverExpects {
		e.receiverExpects = next
		e.everAcked = true
	}
}

// ReliabilityLevel reports the current hint (spec.md §4.C). Matches
// stream.hpp's reliability_level() exactly, including its one surprising
// case: a brand-new encoder (receiverExpects == codec.next == 0, nothing
// sent or acked yet) reports AllAcked, not UnderRatio — there's nothing
// outstanding to be behind on.
func (e *StreamEncoder) ReliabilityLevel() ReliabilityLevel {
	if e.receiverExpects == e.codec.next {
		return AllAcked
	}
	if e.segChunk1%FECRatioDen == 0 && e.segFec == 0 {
		return AtRatio
	}
	return UnderRatio
}

// symbolHeap is a min-heap of originals ordered by ascending Index, used by
// StreamDecoder to buffer out-of-order arrivals. FECIndex symbols never
// enter this heap (see design note in spec.md §9: the sentinel must not
// participate in index ordering).
type symbolHeap []Symbol

func (h symbolHeap) Len() int           { return len(h) }
func (h symbolHeap) Less(i, j int) bool { return h[i].Index < h[j].Index }
func (h symbolHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *symbolHeap) Push(x any)        { *h = append(*h, x.(Symbol)) }
func (h *symbolHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// StreamDecoder is the incoming half of a Stream: the FEC codec, the next
// index due for in-order delivery, and a buffer of originals that arrived
// ahead of it.
type StreamDecoder struct {
	codec     *streamCodecDecoder
	nextIndex uint32
	ahead     symbolHeap
}

// NewStreamDecoder returns a decoder expecting index 0 first.
func NewStreamDecoder() *StreamDecoder {
	d := &StreamDecoder{codec: newStreamCodecDecoder()}
	heap.Init(&d.ahead)
	return d
}

// ProcessSymbol feeds one incoming symbol (original or recovery) and
// drains any originals the codec can now produce into the ordered buffer.
func (d *StreamDecoder) ProcessSymbol(payload []byte, index uint32) error {
	if index != FECIndex {
		d.codec.addOriginal(payload, index)
	} else if err := d.codec.addRecovery(payload); err != nil {
		return err
	}

	for d.codec.isReady() {
		for _, sym := range d.codec.drainNewOriginals() {
			if !indexBefore(sym.Index, d.nextIndex) {
				heap.Push(&d.ahead, sym)
			}
		}
	}
	return nil
}

// indexBefore reports whether a is strictly before b in delivery order —
// i.e. already delivered and should be dropped as a duplicate.
func indexBefore(a, b uint32) bool {
	return a < b
}

// HasData reports whether the next chunk to deliver has arrived.
func (d *StreamDecoder) HasData() bool {
	return len(d.ahead) > 0 && d.ahead[0].Index == d.nextIndex
}

// GetChunk pops and returns the next in-order chunk. Callers must check
// HasData first.
func (d *StreamDecoder) GetChunk() []byte {
	sym := heap.Pop(&d.ahead).(Symbol)
	d.nextIndex = wrapIncIndex(d.nextIndex)
	return sym.Payload
}

// GenerateAck returns an ack payload to send back to the encoder side, or
// nil if there's no new progress to report.
func (d *StreamDecoder) GenerateAck() []byte {
	return d.codec.generateAck()
}

// DrainRecovered returns and resets the count of originals this decoder
// has recovered via XOR FEC since the last call (spec.md §4.H's
// StreamFECRecovered counter).
func (d *StreamDecoder) DrainRecovered() uint64 {
	return d.codec.drainRecovered()
}

// Stream bundles both directions of one channel's continuous stream, as
// spec.md §3 describes: "per-channel bidirectional entity".
type Stream struct {
	Encoder *StreamEncoder
	Decoder *StreamDecoder
}

// NewStream creates a fresh bidirectional stream, lazily instantiated on
// first STREAM/STREAM_ACK packet for a channel.
func NewStream() *Stream {
	return &Stream{Encoder: NewStreamEncoder(), Decoder: NewStreamDecoder()}
}
