/*
@Description: Leaky-bucket shaper and shaped egress queue (spec.md §4.E)
@Language: Go 1.23.4
*/

package relay

import (
	"sync/atomic"
	"time"
)

// farFuture stands in for "+∞" when a queue is empty.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Shaper models a peer's receive buffer as a leaky bucket: capacity
// bufferSize bytes, draining at a rate implied by kbps. State is the pair
// (utilization, utilizationAt) from spec.md §3 — "at time T, utilization
// was U" — grounded on the BandwidthShaper class in the original
// fec-poc's logic.hpp.
type Shaper struct {
	kbps          uint32
	bufferSize    int
	utilization   int
	utilizationAt time.Time
}

// NewShaper creates shaper state starting empty at time now.
func NewShaper(kbps uint32, bufferSize int, now time.Time) *Shaper {
	return &Shaper{kbps: kbps, bufferSize: bufferSize, utilizationAt: now}
}

// timePerByte is how long the bucket takes to drain one byte at kbps,
// reusing the literal constant (8,000,000 ns per kilobit-second byte) the
// original implementation uses for its per-packet pacing.
func (s *Shaper) timePerByte() time.Duration {
	return time.Duration(8_000_000) * time.Nanosecond / time.Duration(s.kbps)
}

// WhenCanSend returns the timestamp at which bytes more could be admitted
// without exceeding bufferSize. A timestamp at or before the shaper's
// current time means "now" (spec.md §4.E).
func (s *Shaper) WhenCanSend(bytes int) time.Time {
	excess := s.utilization + bytes - s.bufferSize
	return s.utilizationAt.Add(time.Duration(excess) * s.timePerByte())
}

// DidSend advances the bucket to now, draining it at rate R, then adds
// bytes to utilization. Panics with ErrClockWentBackwards if now precedes
// the shaper's last known time — the clock must be monotonic
// (spec.md §4.E).
func (s *Shaper) DidSend(now time.Time, bytes int) {
	if now.Before(s.utilizationAt) {
		panic(ErrClockWentBackwards)
	}
	drained := int(now.Sub(s.utilizationAt) / s.timePerByte())
	if drained >= s.utilization {
		s.utilization = 0
	} else {
		s.utilization -= drained
	}
	s.utilizationAt = now
	s.utilization += bytes
}

// EgressQueue combines a priority queue of outbound packets with the
// shaper that paces their release — the per-subscriber unit spec.md §3
// calls "Egress queue state".
type EgressQueue struct {
	queue  *PacketQueue
	shaper *Shaper
	stats  *Stats
}

// NewEgressQueue creates an empty queue for a subscriber with the given
// shaper rate, created on CONTROL.SUBSCRIBE (spec.md §3 "Lifecycles").
func NewEgressQueue(kbps uint32, bufferSize int, now time.Time, stats *Stats) *EgressQueue {
	return &EgressQueue{
		queue:  NewPacketQueue(),
		shaper: NewShaper(kbps, bufferSize, now),
		stats:  stats,
	}
}

// Push enqueues a packet for eventual release to this subscriber. wire is
// what actually gets sent; p supplies the priority fields (Type, and for
// BLOCK, PacketIndex), which the relay obtains by decoding wire. now is used
// only to count ShaperWouldBlock: pushes the shaper can't admit
// immediately, i.e. the subscriber is already behind its rate limit.
func (q *EgressQueue) Push(p *Packet, wire []byte, now time.Time) {
	if q.stats != nil && q.shaper.WhenCanSend(len(wire)).After(now) {
		atomic.AddUint64(&q.stats.ShaperWouldBlock, 1)
	}
	q.queue.Push(&Packet{Type: p.Type, PacketIndex: p.PacketIndex, Payload: wire})
}

// Empty reports whether the queue holds any packets.
func (q *EgressQueue) Empty() bool {
	return q.queue.Empty()
}

// WhenCanPop is §4.E's when_can_pop(): +∞ if empty, else when the shaper
// would admit the top packet's size.
func (q *EgressQueue) WhenCanPop() time.Time {
	top := q.queue.Peek()
	if top == nil {
		return farFuture
	}
	return q.shaper.WhenCanSend(len(top.Payload))
}

// Pop releases the top packet, recording its send against the shaper.
func (q *EgressQueue) Pop(now time.Time) []byte {
	top := q.queue.Pop()
	q.shaper.DidSend(now, len(top.Payload))
	if q.stats != nil {
		q.stats.addPacketOut(len(top.Payload))
		atomic.AddUint64(&q.stats.ShaperPops, 1)
	}
	return top.Payload
}
