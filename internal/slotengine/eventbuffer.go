package slotengine

import (
	"fmt"
	"sync"

	"github.com/ferrox-auto/lola/internal/shm"
)

// ReaderState is the per-subscriber cursor into an event's sequence space
// (spec §4.E.3). Callers own one ReaderState per subscription and must
// not share it across subscriptions (spec invariant 6).
type ReaderState struct {
	LastSeen uint64
}

// EventBuffer is a single-producer, many-consumer, bounded, lossy-on-overrun,
// reference-counted ring of slots for one event (spec §4.E).
type EventBuffer struct {
	mem    []byte
	layout shm.EventLayout
	lossy  bool
	dual   bool

	cbQM   controlBlock
	cbASIL controlBlock

	metrics *Metrics

	subMu     sync.Mutex
	subUsed   []bool // index 0..MaxSubscribers-1
}

// New builds an EventBuffer bound to a laid-out slice of a region. A
// freshly created region's ControlBlock is all zero (offered=false,
// capacity 0, cursor 0); the offering producer stamps it through
// InitControlBlocks, and opening consumers never touch it.
func New(region *shm.Region, layout shm.EventLayout, lossy bool, metrics *Metrics) *EventBuffer {
	eb := &EventBuffer{
		mem:     region.Bytes(),
		layout:  layout,
		lossy:   lossy,
		dual:    layout.DualControl,
		metrics: metrics,
		subUsed: make([]bool, layout.MaxSubscribers),
	}
	eb.cbQM = controlBlock{mem: eb.mem, off: layout.ControlBlockOffset}
	if eb.dual {
		eb.cbASIL = controlBlock{mem: eb.mem, off: layout.ControlBlockASILOff}
	}
	return eb
}

// InitControlBlocks stamps capacity and marks the event offered. Called
// by the offering producer on every Offer (spec §4.E.1).
func (eb *EventBuffer) InitControlBlocks() {
	eb.cbQM.setCapacity(eb.layout.SlotCount)
	eb.cbQM.setOffered(true)
	if eb.dual {
		eb.cbASIL.setCapacity(eb.layout.SlotCount)
		eb.cbASIL.setOffered(true)
	}
}

func (eb *EventBuffer) slot(i uint32) slotHeader {
	return slotHeader{mem: eb.mem, off: eb.layout.SlotHeaderOffset + i*shm.SlotHeaderSize}
}

func (eb *EventBuffer) payload(i uint32) []byte {
	start := eb.layout.PayloadOffset + i*eb.layout.PayloadSize
	return eb.mem[start : start+eb.layout.PayloadSize]
}

func (eb *EventBuffer) txLog(participant uint32) txLog {
	off := eb.layout.TxLogOffset + participant*eb.layout.TxLogStride
	return txLog{mem: eb.mem, off: off, capacity: eb.layout.TxLogCapacity}
}

// producerParticipant is the transaction log reserved for the producer
// itself (spec §3: "the number of logs equals the configured maximum
// number of subscribers plus one for the producer").
func (eb *EventBuffer) producerParticipant() uint32 { return eb.layout.MaxSubscribers }

// AcquireSubscriberSlot hands out one of the MaxSubscribers transaction-log
// slots to a newly subscribing consumer. Returns ErrNoSlot when every slot
// is in use (spec §7 SubscribeFailed: "no transaction-log slot left").
func (eb *EventBuffer) AcquireSubscriberSlot() (uint32, error) {
	eb.subMu.Lock()
	defer eb.subMu.Unlock()
	for i, used := range eb.subUsed {
		if !used {
			eb.subUsed[i] = true
			return uint32(i), nil
		}
	}
	return 0, ErrNoSlot
}

// ReleaseSubscriberSlot returns a transaction-log slot after unsubscribe.
func (eb *EventBuffer) ReleaseSubscriberSlot(idx uint32) {
	eb.subMu.Lock()
	defer eb.subMu.Unlock()
	if int(idx) < len(eb.subUsed) {
		eb.subUsed[idx] = false
	}
}

// Allocate implements spec §4.E.2: scan from the writer cursor for the
// first Free, unreferenced slot; CAS it to Writing. Never blocks. Under a
// lossy configuration, a full ring falls back to stealing the oldest Ready
// slot (spec §4.E.4).
func (eb *EventBuffer) Allocate(class QoSClass) (*Allocatee, error) {
	n := eb.layout.SlotCount
	start := eb.cbQM.writerCursor()
	for i := uint32(0); i < n; i++ {
		idx := (start + i) % n
		sh := eb.slot(idx)
		if sh.state() == SlotFree && sh.totalRefCount() == 0 {
			if sh.casState(SlotFree, SlotWriting) {
				eb.cbQM.setWriterCursor((idx + 1) % n)
				eb.metrics.incAllocated()
				return &Allocatee{eb: eb, slotIndex: idx, class: class}, nil
			}
		}
	}

	if eb.lossy {
		if a := eb.tryStealOldest(class); a != nil {
			eb.metrics.incLossySteal()
			return a, nil
		}
	}
	eb.metrics.incAllocateFailed()
	return nil, ErrAllocateFailed
}

// tryStealOldest picks the Ready, unreferenced slot with the smallest
// sequence number and reclaims it for writing (spec §4.E.4).
func (eb *EventBuffer) tryStealOldest(class QoSClass) *Allocatee {
	n := eb.layout.SlotCount
	var best uint32
	var bestSeq uint64
	found := false
	for i := uint32(0); i < n; i++ {
		sh := eb.slot(i)
		if sh.state() == SlotReady && sh.totalRefCount() == 0 {
			seq := sh.sequence()
			if !found || seq < bestSeq {
				best, bestSeq, found = i, seq, true
			}
		}
	}
	if !found {
		return nil
	}
	sh := eb.slot(best)
	if !sh.casState(SlotReady, SlotWriting) {
		// Lost a race with a concurrent acquire observing the same slot
		// transition away from Ready; the caller's next Allocate retries.
		return nil
	}
	return &Allocatee{eb: eb, slotIndex: best, class: class}
}

// Publish implements spec §4.E.2 step 2-3: stamp a sequence number,
// transition Writing -> Ready, advance the cursor hint.
func (eb *EventBuffer) Publish(a *Allocatee) (uint64, error) {
	sh := eb.slot(a.slotIndex)
	seq := eb.nextSequenceNumber()
	sh.setSequence(seq)
	if !sh.casState(SlotWriting, SlotReady) {
		return 0, fmt.Errorf("slotengine: publish: slot %d not in Writing state", a.slotIndex)
	}
	eb.metrics.incPublished()
	return seq, nil
}

// Drop returns an un-published allocatee's slot to Free (spec §4.E.2
// "drop(allocatee) without publish").
func (eb *EventBuffer) Drop(a *Allocatee) {
	sh := eb.slot(a.slotIndex)
	sh.setState(SlotFree)
}

// TryAcquireNext implements spec §4.E.3: find the Ready slot with the
// smallest sequence greater than lastSeen, bump its reference count, and
// journal the acquire. Returns ErrNoSample if nothing new is Ready.
func (eb *EventBuffer) TryAcquireNext(participant uint32, class QoSClass, lastSeen uint64) (*SampleRef, error) {
	n := eb.layout.SlotCount
	for {
		var best uint32
		var bestSeq uint64
		found := false
		for i := uint32(0); i < n; i++ {
			sh := eb.slot(i)
			if sh.state() != SlotReady {
				continue
			}
			seq := sh.sequence()
			if seq <= lastSeen {
				continue
			}
			if !found || seq < bestSeq {
				best, bestSeq, found = i, seq, true
			}
		}
		if !found {
			return nil, ErrNoSample
		}

		sh := eb.slot(best)
		sh.addRefCount(class, 1)
		if sh.state() != SlotReady || sh.sequence() != bestSeq {
			// Raced with a producer steal (lossy mode) that reclaimed this
			// exact slot between our scan and our increment: back out and
			// retry the scan rather than hand out a reference into a
			// slot that is no longer the sample we think it is.
			sh.addRefCount(class, -1)
			continue
		}

		// Ref count first, log entry second: if the process dies in
		// between, the slot is merely stuck referenced (a leak: recovery
		// only subtracts journaled acquires, so this increment is never
		// undone) rather than under-counted, which could let a future
		// allocate reclaim a slot a live reader still points at.
		eb.txLog(participant).append(opAcquire, best, bestSeq)
		eb.metrics.incAcquired()
		return &SampleRef{eb: eb, slotIndex: best, sequence: bestSeq, participant: participant, class: class}, nil
	}
}

// nextSequenceNumber hands out the next strictly-increasing sequence
// number for this event (spec invariant 4). Backed by a dedicated counter
// reserved in the region layout rather than any slot field, so publishing
// never touches a slot other than the one being written.
func (eb *EventBuffer) nextSequenceNumber() uint64 {
	return addU64(eb.mem, eb.layout.SequenceCounterOffset, 1)
}

// Release implements spec §4.E.3 release: journal first, then decrement,
// so a mid-crash leaves at worst a stuck (over-counted) slot rather than a
// double decrement/underflow once the dead participant's log is replayed.
func (eb *EventBuffer) Release(s *SampleRef) {
	sh := eb.slot(s.slotIndex)
	eb.txLog(s.participant).append(opRelease, s.slotIndex, s.sequence)
	newCount := sh.addRefCount(s.class, -1)
	eb.metrics.incReleased()
	if newCount == 0 {
		// Losing this race to a concurrent acquire is harmless (spec
		// §4.E.3): the slot simply remains Ready with a nonzero count.
		sh.casState(SlotReady, SlotFree)
	}
}

// Recover replays a dead participant's transaction log against the slot
// ref counts it touched (spec §4.E.5) and truncates the log. A slot whose
// count drops to zero is moved Ready -> Free, as Release does.
func (eb *EventBuffer) Recover(participant uint32, class QoSClass) int {
	log := eb.txLog(participant)
	deltas := log.recoverDeltas()
	for _, d := range deltas {
		if d.net <= 0 {
			continue
		}
		sh := eb.slot(d.slotIndex)
		if sh.addRefCount(class, int32(-d.net)) == 0 {
			sh.casState(SlotReady, SlotFree)
		}
	}
	log.truncate()
	eb.metrics.incRecovery()
	return len(deltas)
}

// SlotCount returns the ring capacity configured for this event.
func (eb *EventBuffer) SlotCount() uint32 { return eb.layout.SlotCount }

// ProducerParticipant exposes the producer's reserved transaction-log
// index, used by Allocatee.IntoSample to hold a producer-local reference.
func (eb *EventBuffer) ProducerParticipant() uint32 { return eb.producerParticipant() }
