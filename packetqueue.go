/*
@Description: Priority queue of outbound packets, ordered per spec.md §4.D
@Language: Go 1.23.4
*/

package relay

import "container/heap"

// packetHeap is a max-heap under the Packet priority order: highest
// priority sits at the top so Pop always returns the next packet to
// release. Modeled on the teacher's shardHeap (fec.go), which uses the same
// container/heap + custom Less idiom to keep a decode-order queue.
type packetHeap struct {
	elements []*Packet
}

func (h *packetHeap) Len() int { return len(h.elements) }

func (h *packetHeap) Less(i, j int) bool {
	// max-heap: element i should surface first when element j ranks
	// strictly lower than it.
	return h.elements[j].less(h.elements[i])
}

func (h *packetHeap) Swap(i, j int) {
	h.elements[i], h.elements[j] = h.elements[j], h.elements[i]
}

func (h *packetHeap) Push(x any) {
	h.elements = append(h.elements, x.(*Packet))
}

func (h *packetHeap) Pop() any {
	old := h.elements
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	h.elements = old[:n-1]
	return x
}

// PacketQueue is the priority-ordered packet container each egress queue
// holds (spec.md §3, "Egress queue state"). Insertion order among
// equal-priority packets is preserved explicitly: Push stamps each packet
// with a monotonic sequence number that Packet.less falls back to once type
// and (for BLOCK) packet_index tie, since container/heap is not a stable
// sort on its own.
type PacketQueue struct {
	h       packetHeap
	nextSeq uint64
}

// NewPacketQueue returns an empty priority queue ready for use.
func NewPacketQueue() *PacketQueue {
	q := &PacketQueue{}
	heap.Init(&q.h)
	return q
}

func (q *PacketQueue) Len() int { return q.h.Len() }

func (q *PacketQueue) Empty() bool { return q.h.Len() == 0 }

// Push inserts p into the queue, stamping it with the next insertion
// sequence number first.
func (q *PacketQueue) Push(p *Packet) {
	p.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, p)
}

// Peek returns the highest-priority packet without removing it, or nil if
// the queue is empty.
func (q *PacketQueue) Peek() *Packet {
	if q.Empty() {
		return nil
	}
	return q.h.elements[0]
}

// Pop removes and returns the highest-priority packet. Panics with
// ErrPopFromEmpty if the queue is empty — callers must check Empty first;
// an empty pop is an internal invariant violation (spec.md §7).
func (q *PacketQueue) Pop() *Packet {
	if q.Empty() {
		panic(ErrPopFromEmpty)
	}
	return heap.Pop(&q.h).(*Packet)
}
