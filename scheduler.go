/*
@Description: Single-shot wake-up scheduling for shaped egress queues
@Language: Go 1.23.4
*/

package relay

import (
	"container/heap"
	"sync"
	"time"
)

// schedEntry is one pending wake-up: fire at deadline, then hand token back
// to whoever is draining Fired().
type schedEntry struct {
	deadline time.Time
	token    any
}

// schedHeap is a min-heap by deadline, in the same container/heap idiom as
// the teacher's timeFuncHeap (timers.go), but the scheduler below never
// executes anything itself — it only ever hands a token back to the
// caller's own goroutine, which is what lets the relay keep its
// single-task mutation discipline (spec.md §5) instead of the teacher's
// pool-of-worker-goroutines model, which would run callbacks concurrently
// with the I/O task.
type schedHeap []schedEntry

func (h schedHeap) Len() int            { return len(h) }
func (h schedHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h schedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *schedHeap) Push(x any)         { *h = append(*h, x.(schedEntry)) }
func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Scheduler is a single shared timer service: each egress queue calls
// Schedule with its own next wake-up deadline (an earlier entry for the same
// token is not replaced — see Schedule's doc), and the owning task reads
// due tokens off Fired() in its own select loop. The relay keeps to
// spec.md §4.E's "exactly one pending timer per queue" by scheduling only on
// a push into an empty queue or after a drain that leaves packets behind,
// without each queue needing its own goroutine or OS timer.
type Scheduler struct {
	add       chan schedEntry
	fired     chan any
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewScheduler starts the scheduler's single background goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		add:     make(chan schedEntry),
		fired:   make(chan any, 64),
		closeCh: make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule arranges for token to be delivered on Fired() at deadline. If
// token is already pending from an earlier Schedule call, both fire
// (callers are expected to de-duplicate via their own "is this still the
// latest deadline" check, matching how the egress queue only ever wants
// the *next* when_can_pop() honored).
func (s *Scheduler) Schedule(deadline time.Time, token any) {
	select {
	case s.add <- schedEntry{deadline, token}:
	case <-s.closeCh:
	}
}

// Fired delivers tokens whose deadline has elapsed, in deadline order.
func (s *Scheduler) Fired() <-chan any {
	return s.fired
}

// Close stops the scheduler's goroutine. Idempotent.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

func (s *Scheduler) run() {
	var tasks schedHeap
	heap.Init(&tasks)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	rearm := func() {
		if tasks.Len() == 0 {
			return
		}
		if armed {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		d := time.Until(tasks[0].deadline)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		armed = true
	}

	for {
		select {
		case e := <-s.add:
			heap.Push(&tasks, e)
			rearm()

		case now := <-timer.C:
			armed = false
			for tasks.Len() > 0 && !tasks[0].deadline.After(now) {
				e := heap.Pop(&tasks).(schedEntry)
				select {
				case s.fired <- e.token:
				case <-s.closeCh:
					return
				}
			}
			rearm()

		case <-s.closeCh:
			return
		}
	}
}
