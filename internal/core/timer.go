package core

import "github.com/denbykov/jkreactor/internal/status"

// TimerHandler is invoked by (*TimerHeap).Pop's caller (the reactor's
// ProcessTimers) when a record expires.
type TimerHandler func(data any)

// TimerID is the stable handle §3/§9 requires: it identifies a slot in
// the pool by index, not by Go pointer, so it stays meaningful even
// though the heap array (ordered by expiry) permutes references around
// it on every Add/Pop.
type TimerID int32

// InvalidTimerID is returned by Add when the heap/pool is full.
const InvalidTimerID TimerID = -1

type timerSlot struct {
	expiry  int64
	handler TimerHandler
	data    any
	enabled bool
	used    bool
}

// TimerHeap is the min-heap-over-a-slot-pool described in §4.1: the heap
// array holds indices into a fixed-capacity pool, so sift-up/down permute
// indices while each record's slot identity (and therefore its TimerID)
// never moves.
type TimerHeap struct {
	pool  []timerSlot
	heap  []TimerID // indices into pool, ordered as a min-heap by expiry
	free  []TimerID // free slot indices, LIFO
	inUse int
}

// NewTimerHeap creates a heap backed by a pool of exactly capacity slots.
// capacity must be > 0, matching jk_th_create's CHECK_INVARIANT.
func NewTimerHeap(capacity int) *TimerHeap {
	if capacity <= 0 {
		panic("core: NewTimerHeap requires capacity > 0")
	}
	th := &TimerHeap{
		pool: make([]timerSlot, capacity),
		heap: make([]TimerID, 0, capacity),
		free: make([]TimerID, capacity),
	}
	for i := 0; i < capacity; i++ {
		th.free[i] = TimerID(capacity - 1 - i)
	}
	return th
}

// Cap returns the pool's fixed capacity.
func (h *TimerHeap) Cap() int { return len(h.pool) }

// Len returns the number of live (allocated) records, enabled or not.
func (h *TimerHeap) Len() int { return len(h.heap) }

// Add copies a new record into a free slot and sifts it up by expiry.
// It returns InvalidTimerID with status.OutOfBuffer when the pool is full.
func (h *TimerHeap) Add(expiry int64, handler TimerHandler, data any) (TimerID, error) {
	if len(h.free) == 0 {
		return InvalidTimerID, status.New(status.OutOfBuffer, "timer heap: pool exhausted")
	}

	id := h.free[len(h.free)-1]
	h.free = h.free[:len(h.free)-1]

	h.pool[id] = timerSlot{expiry: expiry, handler: handler, data: data, enabled: true, used: true}
	h.inUse++

	h.heap = append(h.heap, id)
	h.siftUp(len(h.heap) - 1)

	return id, nil
}

// Cancel disables a timer without disturbing the heap's shape; it is
// discarded the next time it surfaces to the root during ProcessTimers.
func (h *TimerHeap) Cancel(id TimerID) {
	if id == InvalidTimerID || !h.pool[id].used {
		return
	}
	h.pool[id].enabled = false
}

// Peek returns the root's TimerID, or InvalidTimerID if the heap is empty.
func (h *TimerHeap) Peek() TimerID {
	if len(h.heap) == 0 {
		return InvalidTimerID
	}
	return h.heap[0]
}

// PeekRecord returns the root's expiry and enabled flag without popping
// it (ok is false when the heap is empty), for callers that need to
// inspect it (e.g. the reactor computing its next wakeup deadline).
func (h *TimerHeap) PeekRecord() (expiry int64, enabled bool, ok bool) {
	id := h.Peek()
	if id == InvalidTimerID {
		return 0, false, false
	}
	s := h.pool[id]
	return s.expiry, s.enabled, true
}

// HandlerData returns the handler and data stored for id.
func (h *TimerHeap) HandlerData(id TimerID) (TimerHandler, any) {
	s := h.pool[id]
	return s.handler, s.data
}

// Pop removes the root, releasing *its own* pool slot, and sifts down the
// element that was moved into the root position. The pool slot captured
// for release must be the root's slot from before the swap, not whatever
// ends up at heap position 0 afterwards — see §9's open question about
// this exact hazard and TestTimerHeapPopReleasesRootSlotNotMovedSlot.
func (h *TimerHeap) Pop() {
	if len(h.heap) == 0 {
		return
	}

	rootID := h.heap[0]
	last := len(h.heap) - 1
	h.heap[0] = h.heap[last]
	h.heap = h.heap[:last]

	h.release(rootID)

	if len(h.heap) > 0 {
		h.siftDown(0)
	}
}

func (h *TimerHeap) release(id TimerID) {
	h.pool[id] = timerSlot{}
	h.free = append(h.free, id)
	h.inUse--
}

func (h *TimerHeap) expiryOf(id TimerID) int64 { return h.pool[id].expiry }

// Range calls fn for every currently allocated (used) record in the pool,
// in no particular order. Intended for diagnostics and tests.
func (h *TimerHeap) Range(fn func(id TimerID, data any)) {
	for i := range h.pool {
		if h.pool[i].used {
			fn(TimerID(i), h.pool[i].data)
		}
	}
}

func (h *TimerHeap) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if h.expiryOf(h.heap[parent]) <= h.expiryOf(h.heap[idx]) {
			break
		}
		h.heap[parent], h.heap[idx] = h.heap[idx], h.heap[parent]
		idx = parent
	}
}

func (h *TimerHeap) siftDown(idx int) {
	n := len(h.heap)
	for {
		left := 2*idx + 1
		right := left + 1
		smallest := idx
		if left < n && h.expiryOf(h.heap[left]) < h.expiryOf(h.heap[smallest]) {
			smallest = left
		}
		if right < n && h.expiryOf(h.heap[right]) < h.expiryOf(h.heap[smallest]) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		h.heap[idx], h.heap[smallest] = h.heap[smallest], h.heap[idx]
		idx = smallest
	}
}
