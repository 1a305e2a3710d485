// Package mockbinding implements the in-process binding of spec §4.I: no
// shared memory, no transaction log, no crash recovery — just enough of
// the slot-engine contract (allocate/publish/acquire/release, bounded
// capacity, reference counting) to exercise the typed proxy/skeleton
// surface in tests without a real region. The mock binding "stores the
// payload inside the sample reference itself (a boxed value)" per spec
// §4.I; this package is that box.
package mockbinding

import (
	"sync"
)

type slotState int

const (
	slotFree slotState = iota
	slotWriting
	slotReady
)

type mockSlot struct {
	state    slotState
	refCount int
	sequence uint64
	payload  []byte
}

// EventBuffer is the mock binding's stand-in for slotengine.EventBuffer:
// same operations, a plain mutex instead of lock-free atomics, since the
// mock binding only ever runs intra-process and correctness under test is
// the goal, not hot-path throughput (spec §4.I: binding choice is fixed at
// construction, and only the shared-memory binding is required to be
// lock-free per spec §5).
type EventBuffer struct {
	mu       sync.Mutex
	slots    []mockSlot
	cursor   int
	lossy    bool
	nextSeq  uint64
	capacity int
}

// New creates a mock event buffer with the given slot capacity.
func New(slotCount int, lossy bool) *EventBuffer {
	return &EventBuffer{slots: make([]mockSlot, slotCount), lossy: lossy, capacity: slotCount}
}

// Allocatee is a reserved, not-yet-published mock slot.
type Allocatee struct {
	eb   *EventBuffer
	idx  int
	done bool
}

// Payload returns the writable backing slice for this allocatee. Callers
// size and fill it directly; the mock binding performs no fixed-size
// layout since it never leaves process memory.
func (a *Allocatee) Payload() []byte { return a.eb.slots[a.idx].payload }

// SetPayload installs the bytes to publish.
func (a *Allocatee) SetPayload(p []byte) { a.eb.slots[a.idx].payload = p }

// Allocate reserves the first Free slot, or — if lossy — steals the
// oldest Ready, unreferenced slot, mirroring slotengine.EventBuffer.Allocate.
func (eb *EventBuffer) Allocate() (*Allocatee, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	n := len(eb.slots)
	for i := 0; i < n; i++ {
		idx := (eb.cursor + i) % n
		if eb.slots[idx].state == slotFree && eb.slots[idx].refCount == 0 {
			eb.slots[idx].state = slotWriting
			eb.cursor = (idx + 1) % n
			return &Allocatee{eb: eb, idx: idx}, nil
		}
	}

	if eb.lossy {
		best, found := -1, false
		var bestSeq uint64
		for i, s := range eb.slots {
			if s.state == slotReady && s.refCount == 0 {
				if !found || s.sequence < bestSeq {
					best, bestSeq, found = i, s.sequence, true
				}
			}
		}
		if found {
			eb.slots[best].state = slotWriting
			return &Allocatee{eb: eb, idx: best}, nil
		}
	}
	return nil, ErrAllocateFailed
}

// Publish transitions the allocatee to Ready and stamps a sequence number.
func (a *Allocatee) Publish() (uint64, error) {
	a.eb.mu.Lock()
	defer a.eb.mu.Unlock()
	if a.done {
		return 0, ErrAlreadyFinished
	}
	a.done = true
	a.eb.nextSeq++
	seq := a.eb.nextSeq
	a.eb.slots[a.idx].sequence = seq
	a.eb.slots[a.idx].state = slotReady
	return seq, nil
}

// Drop abandons the allocatee without publishing.
func (a *Allocatee) Drop() {
	a.eb.mu.Lock()
	defer a.eb.mu.Unlock()
	if a.done {
		return
	}
	a.done = true
	a.eb.slots[a.idx].state = slotFree
}

// SampleRef is a subscriber-held reference to a Ready mock slot.
type SampleRef struct {
	eb       *EventBuffer
	idx      int
	sequence uint64
	released bool
}

func (s *SampleRef) Sequence() uint64 { return s.sequence }
func (s *SampleRef) Payload() []byte  { return s.eb.slots[s.idx].payload }

// Release drops the reference, freeing the slot once unreferenced.
func (s *SampleRef) Release() {
	s.eb.mu.Lock()
	defer s.eb.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	slot := &s.eb.slots[s.idx]
	slot.refCount--
	if slot.refCount <= 0 {
		slot.refCount = 0
		slot.state = slotFree
	}
}

// TryAcquireNext finds the Ready slot with the smallest sequence greater
// than lastSeen and references it.
func (eb *EventBuffer) TryAcquireNext(lastSeen uint64) (*SampleRef, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	best, found := -1, false
	var bestSeq uint64
	for i, s := range eb.slots {
		if s.state != slotReady || s.sequence <= lastSeen {
			continue
		}
		if !found || s.sequence < bestSeq {
			best, bestSeq, found = i, s.sequence, true
		}
	}
	if !found {
		return nil, ErrNoSample
	}
	eb.slots[best].refCount++
	return &SampleRef{eb: eb, idx: best, sequence: bestSeq}, nil
}

// IntoSample publishes and immediately returns a producer-local reference,
// mirroring slotengine.Allocatee.IntoSample (SPEC_FULL §2.2).
func (a *Allocatee) IntoSample() (*SampleRef, error) {
	a.eb.mu.Lock()
	if a.done {
		a.eb.mu.Unlock()
		return nil, ErrAlreadyFinished
	}
	a.done = true
	a.eb.nextSeq++
	seq := a.eb.nextSeq
	a.eb.slots[a.idx].sequence = seq
	a.eb.slots[a.idx].state = slotReady
	a.eb.slots[a.idx].refCount++
	idx := a.idx
	a.eb.mu.Unlock()
	return &SampleRef{eb: a.eb, idx: idx, sequence: seq}, nil
}

// Capacity returns the configured slot count.
func (eb *EventBuffer) Capacity() int { return eb.capacity }
