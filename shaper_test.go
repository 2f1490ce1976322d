/*
@Description: Leaky-bucket shaper and egress queue tests (spec.md §8 properties 6-7)
@Language: Go 1.23.4
*/

package relay

import (
	"testing"
	"time"
)

func TestShaperAdmitsImmediatelyWhenEmpty(t *testing.T) {
	now := time.Now()
	s := NewShaper(8000, 1000, now) // 8000 kbps = 1000 bytes/ms
	when := s.WhenCanSend(500)
	if when.After(now) {
		t.Fatalf("expected immediate admission into an empty bucket, got %v after %v", when, now)
	}
}

func TestShaperDelaysOnceBucketFull(t *testing.T) {
	now := time.Now()
	s := NewShaper(8000, 100, now) // buffer_size smaller than one packet
	s.DidSend(now, 100)

	when := s.WhenCanSend(100)
	if !when.After(now) {
		t.Fatalf("expected a future admission time once buffer is full, got %v", when)
	}
}

func TestShaperPanicsOnClockRegression(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on clock regression")
		}
	}()
	now := time.Now()
	s := NewShaper(1000, 1000, now)
	s.DidSend(now.Add(-time.Second), 10)
}

// TestShaperRateCeiling is spec.md §8 property 6: over [t0, t1], bytes
// released by a single egress queue never exceed buffer_size + R*(t1-t0).
func TestShaperRateCeiling(t *testing.T) {
	start := time.Now()
	q := NewEgressQueue(800, 100, start, nil) // 800 kbps = 100 bytes/ms
	for i := 0; i < 50; i++ {
		wire := EncodeStream(1, uint32(i), make([]byte, 90))
		p, _ := Decode(wire)
		q.Push(p, wire, start)
	}

	now := start
	released := 0
	for i := 0; i < 200 && !q.Empty(); i++ {
		now = now.Add(time.Millisecond)
		for !q.Empty() && !q.WhenCanPop().After(now) {
			wire := q.Pop(now)
			released += len(wire)
		}
	}

	elapsed := now.Sub(start)
	ceiling := 100 + int(elapsed/time.Millisecond)*100 // buffer_size + R*(t1-t0)
	if released > ceiling {
		t.Fatalf("released %d bytes over %v, ceiling is %d", released, elapsed, ceiling)
	}
}

func TestEgressQueueReplacementDiscardsPending(t *testing.T) {
	now := time.Now()
	q := NewEgressQueue(100, NetworkBufferSize, now, nil)
	wire := EncodeStream(1, 0, []byte("queued"))
	p, _ := Decode(wire)
	q.Push(p, wire, now)
	if q.Empty() {
		t.Fatal("expected a pending packet")
	}

	// A fresh queue (as created by a replacing SUBSCRIBE) starts empty,
	// discarding whatever the old one held (spec.md §4.F).
	fresh := NewEgressQueue(2000, NetworkBufferSize, now, nil)
	if !fresh.Empty() {
		t.Fatal("a newly constructed egress queue must start empty")
	}
}
