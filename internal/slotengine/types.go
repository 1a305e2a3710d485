package slotengine

import "unsafe"

// Allocatee is a slot reserved by Allocate, in the Writing state, not yet
// visible to any subscriber (spec §4.E.2).
type Allocatee struct {
	eb        *EventBuffer
	slotIndex uint32
	class     QoSClass
	done      bool
}

// PayloadPtr returns the writable payload bytes for this slot. Valid only
// until Publish or Drop is called.
func (a *Allocatee) PayloadPtr() unsafe.Pointer {
	p := a.eb.payload(a.slotIndex)
	return unsafe.Pointer(&p[0])
}

// Payload returns the writable payload slice for this slot.
func (a *Allocatee) Payload() []byte {
	return a.eb.payload(a.slotIndex)
}

// Publish makes the slot visible to subscribers (spec §4.E.2). The
// allocatee must not be used again afterward.
func (a *Allocatee) Publish() (uint64, error) {
	if a.done {
		return 0, ErrAlreadyFinished
	}
	a.done = true
	return a.eb.Publish(a)
}

// Drop abandons the allocatee without publishing, returning its slot to
// Free (spec §4.E.2).
func (a *Allocatee) Drop() {
	if a.done {
		return
	}
	a.done = true
	a.eb.Drop(a)
}

// IntoSample implements the producer-local no-send path (SPEC_FULL §2.2):
// publish the slot, then immediately acquire a producer-held reference to
// it on the event's reserved producer transaction log, so the producer can
// read back what it just wrote without a round trip through a subscriber.
// Consumer visibility of the resulting sample is the same as any other
// publish; this only grants the producer its own reference (spec §9 open
// question on into_sample, resolved in SPEC_FULL §2.2).
func (a *Allocatee) IntoSample() (*SampleRef, error) {
	if a.done {
		return nil, ErrAlreadyFinished
	}
	a.done = true
	seq, err := a.eb.Publish(a)
	if err != nil {
		return nil, err
	}
	participant := a.eb.ProducerParticipant()
	sh := a.eb.slot(a.slotIndex)
	sh.addRefCount(a.class, 1)
	a.eb.txLog(participant).append(opAcquire, a.slotIndex, seq)
	return &SampleRef{eb: a.eb, slotIndex: a.slotIndex, sequence: seq, participant: participant, class: a.class}, nil
}

// SampleRef is a subscriber- or producer-held reference to a Ready slot,
// counted in the region's reference-count field and journaled in the
// holder's transaction log (spec §4.E.3, §4.H.1).
type SampleRef struct {
	eb          *EventBuffer
	slotIndex   uint32
	sequence    uint64
	participant uint32
	class       QoSClass
	released    bool
}

// Sequence returns the sample's sequence number.
func (s *SampleRef) Sequence() uint64 { return s.sequence }

// PayloadPtr returns the read-only payload bytes of the referenced slot.
func (s *SampleRef) PayloadPtr() unsafe.Pointer {
	p := s.eb.payload(s.slotIndex)
	return unsafe.Pointer(&p[0])
}

// Payload returns the read-only payload slice of the referenced slot.
func (s *SampleRef) Payload() []byte {
	return s.eb.payload(s.slotIndex)
}

// Release drops the reference (spec §4.E.3). Safe to call at most once;
// a second call is a no-op.
func (s *SampleRef) Release() {
	if s.released {
		return
	}
	s.released = true
	s.eb.Release(s)
}
