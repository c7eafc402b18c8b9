package core

import (
	"github.com/denbykov/jkreactor/internal/htab"
	"github.com/denbykov/jkreactor/internal/status"
)

// WriteQueue is the bounded, round-robin ring of pending UDP write events
// described in §3/§4.3, grounded directly on original_source's
// core/udp_wq.c: a flat slice used as `data[0:size]`, a `head` cursor that
// advances without shrinking `size` on pop, and a companion index
// (peer address -> slot) for O(1) add/remove/dedup.
type WriteQueue struct {
	index    *htab.Table[Address, int] // peer address -> slot index into entries
	entries  []*Event
	head     int
	size     int
	capacity int
}

// NewWriteQueue creates a queue with the given power-of-two capacity.
func NewWriteQueue(capacity int) *WriteQueue {
	return &WriteQueue{
		index:    htab.New[Address, int](HashAddress, capacity*2),
		entries:  make([]*Event, capacity),
		capacity: capacity,
	}
}

// Len reports how many slots are currently live ("packed" from 0..size),
// not how many remain to be drained by PopFront (see PopFront's doc).
func (q *WriteQueue) Len() int { return q.size }

func connKey(ev *Event) Address {
	return ev.Conn.RemoteAddr
}

// Add enqueues ev, keyed by its connection's remote address. It fails
// with status.OutOfBuffer when the queue is full and status.Occupied if
// an event for the same peer is already enqueued — §4.3's exact rules.
func (q *WriteQueue) Add(ev *Event) error {
	if q.size == q.capacity {
		return status.New(status.OutOfBuffer, "udp write queue full")
	}

	key := connKey(ev)
	if _, exists := q.index.Lookup(key); exists {
		return status.New(status.Occupied, "udp write queue: peer already enqueued")
	}

	pos := q.size
	if err := q.index.Insert(key, pos); err != nil {
		return err
	}
	q.entries[pos] = ev
	q.size++
	return nil
}

// PopFront returns the event at head and advances head modulo size,
// WITHOUT decrementing size — this is the deliberate "rotation-less
// front pop" from §4.3: the caller must separately call Remove(ev) once
// the send actually completes (or leave the entry in place, on a partial
// send, for the next writability cycle). It returns nil if the queue is
// empty.
func (q *WriteQueue) PopFront() *Event {
	if q.size == 0 {
		return nil
	}
	ev := q.entries[q.head]
	q.head++
	if q.head == q.size {
		q.head = 0
	}
	return ev
}

// Remove deletes ev's entry by looking up its peer in the index, swapping
// the last valid slot into its place (updating the index and head if
// either pointed at the removed/swapped slot), and shrinking size by one.
// Ordering is not stable, as noted in §3.
func (q *WriteQueue) Remove(ev *Event) error {
	key := connKey(ev)
	pos, ok := q.index.Lookup(key)
	if !ok {
		return status.New(status.NotFound, "udp write queue: peer not enqueued")
	}
	q.index.Delete(key)

	if q.size == 1 {
		q.entries[0] = nil
		q.size = 0
		q.head = 0
		return nil
	}

	lastPos := q.size - 1
	lastEv := q.entries[lastPos]

	if lastEv != ev {
		// Re-point the index for the swapped-in entry to its new slot.
		// lastEv's key is still present (pointing at lastPos), so Insert
		// alone would fail status.Occupied — delete the stale mapping first.
		lastKey := connKey(lastEv)
		q.index.Delete(lastKey)
		if err := q.index.Insert(lastKey, pos); err != nil {
			return err
		}
	}

	if q.head == lastPos {
		q.head = 0
	}

	q.entries[pos] = lastEv
	q.entries[lastPos] = nil
	q.size--
	return nil
}
