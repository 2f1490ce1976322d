/*
@Description: Sliding-window XOR stream codec (spec.md §4.A "Stream codec")
@Language: Go 1.23.4
*/

package relay

import (
	"encoding/binary"
)

// streamWindow is the number of most-recent originals a recovery symbol's
// manifest can reference — one full segment (d originals + f recovery
// slots), matching spec.md §3's definition of "segment".
const streamWindow = FECRatioDen + FECRatioNum

// wrapIncIndex advances a stream sequence number, skipping the FECIndex
// sentinel so a real original index can never collide with it.
func wrapIncIndex(x uint32) uint32 {
	x++
	if x == FECIndex {
		x = 0
	}
	return x
}

type windowRecord struct {
	index   uint32
	payload []byte
}

// streamCodecEncoder assigns sequence numbers to outgoing chunks and, on
// request, produces an XOR recovery symbol over its current sliding
// window. The manifest format is: [count(1 byte)] { [index(4)][len(2)] }*
// [xor payload, width = max(len) across the manifest].
type streamCodecEncoder struct {
	window []windowRecord // capped at streamWindow, oldest evicted first
	next   uint32
}

func newStreamCodecEncoder() *streamCodecEncoder {
	return &streamCodecEncoder{}
}

// addChunk assigns payload the next index, per spec.md §4.A's "encoder
// assigns the index via the codec" design note — stream.go's encoder must
// read this return value rather than keeping its own counter.
func (e *streamCodecEncoder) addChunk(payload []byte) uint32 {
	index := e.next
	e.next = wrapIncIndex(e.next)

	cp := append([]byte(nil), payload...)
	e.window = append(e.window, windowRecord{index, cp})
	if len(e.window) > streamWindow {
		e.window = e.window[1:]
	}
	return index
}

func (e *streamCodecEncoder) generateFEC() []byte {
	if len(e.window) == 0 {
		return nil
	}

	maxLen := 0
	for _, r := range e.window {
		if len(r.payload) > maxLen {
			maxLen = len(r.payload)
		}
	}

	header := 1 + len(e.window)*6
	out := make([]byte, header+maxLen)
	out[0] = byte(len(e.window))
	for i, r := range e.window {
		off := 1 + i*6
		binary.NativeEndian.PutUint32(out[off:], r.index)
		binary.NativeEndian.PutUint16(out[off+4:], uint16(len(r.payload)))
		for j, b := range r.payload {
			out[header+j] ^= b
		}
	}
	return out
}

// processAck decodes the receiver's cumulative "next expected index".
func (e *streamCodecEncoder) processAck(payload []byte) uint32 {
	if len(payload) < 4 {
		return 0
	}
	return binary.NativeEndian.Uint32(payload)
}

type manifestEntry struct {
	index uint32
	size  uint16
}

func parseManifest(payload []byte) ([]manifestEntry, []byte, bool) {
	if len(payload) < 1 {
		return nil, nil, false
	}
	count := int(payload[0])
	header := 1 + count*6
	if len(payload) < header {
		return nil, nil, false
	}
	entries := make([]manifestEntry, count)
	for i := 0; i < count; i++ {
		off := 1 + i*6
		entries[i] = manifestEntry{
			index: binary.NativeEndian.Uint32(payload[off:]),
			size:  binary.NativeEndian.Uint16(payload[off+4:]),
		}
	}
	return entries, payload[header:], true
}

type pendingRecovery struct {
	entries []manifestEntry
	xor     []byte
}

// streamCodecDecoder accumulates originals (direct or FEC-recovered) and
// reports a cumulative ack frontier. Duplicate add_original calls are
// idempotent per spec.md §4.A.
type streamCodecDecoder struct {
	known          map[uint32][]byte
	newOriginals   []Symbol
	pending        []pendingRecovery
	contiguousNext uint32
	lastAcked      uint32
	everAcked      bool
	recoveredCount uint64
}

func newStreamCodecDecoder() *streamCodecDecoder {
	return &streamCodecDecoder{known: make(map[uint32][]byte)}
}

func (d *streamCodecDecoder) addOriginal(payload []byte, index uint32) {
	if _, ok := d.known[index]; ok {
		return
	}
	cp := append([]byte(nil), payload...)
	d.known[index] = cp
	d.newOriginals = append(d.newOriginals, Symbol{Payload: cp, Index: index})
	d.advanceContiguous()
	d.resolvePending()
}

func (d *streamCodecDecoder) addRecovery(payload []byte) error {
	entries, xor, ok := parseManifest(payload)
	if !ok {
		return badSymbol("malformed stream recovery manifest")
	}
	d.tryResolve(pendingRecovery{entries, xor})
	d.resolvePending()
	return nil
}

// tryResolve attempts to recover a single missing original from rec. If
// more than one referenced original is still missing, rec is parked until
// a future addOriginal/addRecovery call narrows the gap to exactly one
// (resolvePending retries every parked recovery symbol).
func (d *streamCodecDecoder) tryResolve(rec pendingRecovery) {
	var missing *manifestEntry
	missingCount := 0
	for i := range rec.entries {
		if _, ok := d.known[rec.entries[i].index]; !ok {
			missingCount++
			missing = &rec.entries[i]
		}
	}
	if missingCount == 0 {
		return
	}
	if missingCount > 1 {
		d.pending = append(d.pending, rec)
		return
	}

	recovered := append([]byte(nil), rec.xor...)
	for _, e := range rec.entries {
		if e.index == missing.index {
			continue
		}
		known := d.known[e.index]
		for j := 0; j < len(known) && j < len(recovered); j++ {
			recovered[j] ^= known[j]
		}
	}
	if int(missing.size) <= len(recovered) {
		recovered = recovered[:missing.size]
	}

	d.known[missing.index] = recovered
	d.newOriginals = append(d.newOriginals, Symbol{Payload: recovered, Index: missing.index})
	d.recoveredCount++
	d.advanceContiguous()
}

func (d *streamCodecDecoder) resolvePending() {
	for len(d.pending) > 0 {
		before := len(d.known)
		remaining := d.pending[:0]
		for _, rec := range d.pending {
			stillPending := false
			missingCount := 0
			for _, e := range rec.entries {
				if _, ok := d.known[e.index]; !ok {
					missingCount++
				}
			}
			if missingCount > 1 {
				stillPending = true
			} else if missingCount == 1 {
				d.tryResolve(rec)
			}
			if stillPending {
				remaining = append(remaining, rec)
			}
		}
		d.pending = remaining
		if len(d.known) == before {
			return
		}
	}
}

func (d *streamCodecDecoder) advanceContiguous() {
	for {
		if _, ok := d.known[d.contiguousNext]; !ok {
			return
		}
		d.contiguousNext = wrapIncIndex(d.contiguousNext)
	}
}

func (d *streamCodecDecoder) isReady() bool {
	return len(d.newOriginals) > 0
}

func (d *streamCodecDecoder) drainNewOriginals() []Symbol {
	out := d.newOriginals
	d.newOriginals = nil
	return out
}

func (d *streamCodecDecoder) getOriginal(index uint32) []byte {
	return d.known[index]
}

// drainRecovered returns and resets the count of originals recovered via
// XOR since the last call.
func (d *streamCodecDecoder) drainRecovered() uint64 {
	n := d.recoveredCount
	d.recoveredCount = 0
	return n
}

// generateAck returns an encoded contiguousNext, or nil if no progress has
// been made since the last call (avoiding redundant ack chatter).
func (d *streamCodecDecoder) generateAck() []byte {
	if d.everAcked && d.contiguousNext == d.lastAcked {
		return nil
	}
	d.lastAcked = d.contiguousNext
	d.everAcked = true
	out := make([]byte, 4)
	binary.NativeEndian.PutUint32(out, d.contiguousNext)
	return out
}
