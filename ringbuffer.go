/*
@Description: Auto-growing FIFO backing the stream encoder's pending-chunk
queue (spec.md §4.C)
@Language: Go 1.23.4
*/

package relay

// RingBuffer is the pending-chunk queue a StreamEncoder drains one get_symbol()
// call at a time: a circular buffer that grows instead of rejecting a push,
// since nothing upstream paces QueueChunk against the interleaving rate.
type RingBuffer[T any] struct {
	buffer []T // underlying array to store elements
	head   int // index of the first element
	tail   int // index where the next element will be inserted
}

// Empty returns true if the ring buffer contains no elements
func (rb *RingBuffer[T]) Empty() bool {
	return rb.head == rb.tail
}

// Full returns true if the ring buffer is at maximum capacity
// Note: we reserve one slot to distinguish between empty and full states
func (rb *RingBuffer[T]) Full() bool {
	return (rb.tail+1)%len(rb.buffer) == rb.head
}

// Push adds a new element to the tail of the ring buffer
// If the buffer is full, it will automatically grow to accommodate the new element
// Returns true on successful insertion
func (rb *RingBuffer[T]) Push(value T) bool {
	if rb.Full() {
		rb.grow()
	}
	rb.buffer[rb.tail] = value
	rb.tail = (rb.tail + 1) % len(rb.buffer)
	return true
}

// Pop removes and returns the element at the head of the ring buffer
// Returns the element and true if successful, or zero value and false if empty
func (rb *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if rb.Empty() {
		return zero, false
	}
	value := rb.buffer[rb.head]
	rb.buffer[rb.head] = zero // clear the slot to prevent memory leaks
	rb.head = (rb.head + 1) % len(rb.buffer)
	return value, true
}

// Len returns the current number of elements in the ring buffer
func (rb *RingBuffer[T]) Len() int {
	if rb.tail >= rb.head {
		return rb.tail - rb.head
	}
	return len(rb.buffer) - rb.head + rb.tail
}

// ForEach iterates through all elements in the ring buffer from head to tail.
// Only used internally by grow, to repack into the larger buffer.
func (rb *RingBuffer[T]) ForEach(fn func(*T) bool) {
	if rb.Empty() {
		return
	}

	if rb.head < rb.tail {
		// Simple case: no wraparound
		for i := rb.head; i < rb.tail; i++ {
			if !fn(&rb.buffer[i]) {
				return
			}
		}
	} else {
		// Wraparound case: iterate from head to end, then from start to tail
		for i := rb.head; i < len(rb.buffer); i++ {
			if !fn(&rb.buffer[i]) {
				return
			}
		}
		for i := 0; i < rb.tail; i++ {
			if !fn(&rb.buffer[i]) {
				return
			}
		}
	}
}

// grow increases the capacity of the ring buffer when it becomes full
// The new capacity is calculated as current length + 10% + 1 (minimum 2 additional slots)
// All existing elements are copied to the new buffer in order
func (rb *RingBuffer[T]) grow() {
	currentLen := rb.Len()
	newCapacity := currentLen + (currentLen+9)/10 + 1 // grow by ~10% plus extra slot
	if newCapacity < currentLen+2 {
		newCapacity = currentLen + 2 // ensure at least 2 extra slots
	}
	newBuffer := make([]T, newCapacity+1) // +1 for empty/full distinction

	// Copy elements using index instead of append
	index := 0
	rb.ForEach(func(item *T) bool {
		newBuffer[index] = *item
		index++
		return true
	})

	rb.buffer = newBuffer
	rb.head = 0
	rb.tail = currentLen
}
