/*
@Description: Priority queue ordering tests (spec.md §8 property 7)
@Language: Go 1.23.4
*/

package relay

import "testing"

func TestPacketQueuePriorityOrder(t *testing.T) {
	q := NewPacketQueue()
	q.Push(&Packet{Type: PacketStream})
	q.Push(&Packet{Type: PacketControl})
	q.Push(&Packet{Type: PacketBlock, PacketIndex: 5})
	q.Push(&Packet{Type: PacketBlock, PacketIndex: 1})
	q.Push(&Packet{Type: PacketBlock, PacketIndex: 3})

	want := []struct {
		typ PacketType
		idx uint32
	}{
		{PacketControl, 0},
		{PacketBlock, 1},
		{PacketBlock, 3},
		{PacketBlock, 5},
		{PacketStream, 0},
	}

	for i, w := range want {
		p := q.Pop()
		if p.Type != w.typ || (p.Type == PacketBlock && p.PacketIndex != w.idx) {
			t.Fatalf("pop %d: got (%v,%d), want (%v,%d)", i, p.Type, p.PacketIndex, w.typ, w.idx)
		}
	}
	if !q.Empty() {
		t.Fatal("queue should be empty after draining all pushes")
	}
}

// TestPacketQueueFIFOAmongEqualPriority is spec.md §5's "equal-priority
// packets release in FIFO of insertion" guarantee. STREAM packets carry no
// tiebreak field of their own, so this would be flaky without the
// insertion-sequence fallback in Packet.less.
func TestPacketQueueFIFOAmongEqualPriority(t *testing.T) {
	q := NewPacketQueue()
	first := &Packet{Type: PacketStream, Payload: []byte("first")}
	second := &Packet{Type: PacketStream, Payload: []byte("second")}
	third := &Packet{Type: PacketStream, Payload: []byte("third")}
	q.Push(first)
	q.Push(second)
	q.Push(third)

	for _, want := range []string{"first", "second", "third"} {
		p := q.Pop()
		if string(p.Payload) != want {
			t.Fatalf("expected %q, got %q", want, p.Payload)
		}
	}
}

func TestPacketQueuePopFromEmptyPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic popping from empty queue")
		}
	}()
	NewPacketQueue().Pop()
}
