// Package slotengine is the heart of the design (spec §4.E): typed slot
// arrays, per-slot reference counts visible across processes, crash-safe
// transaction logs, and the allocate/publish/acquire/release protocol.
// Every hot-path operation here is lock-free: state transitions go through
// compare-and-swap, reference counts through atomic add, matching spec §5
// ("All publish/receive paths are lock-free and wait-free").
package slotengine

import "github.com/ferrox-auto/lola/internal/shm"

// SlotState mirrors spec §3 "state": Free, Writing, Ready, Invalid.
type SlotState uint32

const (
	SlotFree SlotState = iota
	SlotWriting
	SlotReady
	SlotInvalid
)

// controlBlock is an accessor over one ControlBlock in shared memory
// (writer cursor, offered flag, capacity, qos-mask — spec §6).
type controlBlock struct {
	mem []byte
	off uint32
}

const (
	cbWriterCursor = 0
	cbOfferedFlag  = 4
	cbCapacity     = 8
	cbQosMask      = 12
)

func (c controlBlock) writerCursor() uint32       { return loadU32(c.mem, c.off+cbWriterCursor) }
func (c controlBlock) setWriterCursor(v uint32)   { storeU32(c.mem, c.off+cbWriterCursor, v) }
func (c controlBlock) capacity() uint32           { return loadU32(c.mem, c.off+cbCapacity) }
func (c controlBlock) setCapacity(v uint32)       { storeU32(c.mem, c.off+cbCapacity, v) }
func (c controlBlock) offered() bool              { return loadU32(c.mem, c.off+cbOfferedFlag) != 0 }
func (c controlBlock) setOffered(v bool)          { storeU32(c.mem, c.off+cbOfferedFlag, boolU32(v)) }

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// slotHeader is an accessor over one SlotHeader entry (spec §3 "Slot
// control header"): state, ref_count_qm, ref_count_asil, sequence.
type slotHeader struct {
	mem []byte
	off uint32
}

const (
	shState      = 0
	shRefCountQM = 4
	shRefCountAS = 8
	// 4 bytes padding at offset 12
	shSequence = 16
)

func (s slotHeader) state() SlotState  { return SlotState(loadU32(s.mem, s.off+shState)) }
func (s slotHeader) casState(old, new SlotState) bool {
	return casU32(s.mem, s.off+shState, uint32(old), uint32(new))
}
func (s slotHeader) setState(v SlotState) { storeU32(s.mem, s.off+shState, uint32(v)) }

func (s slotHeader) refCount(class QoSClass) uint32 {
	return loadU32(s.mem, s.off+refCountOffset(class))
}
func (s slotHeader) addRefCount(class QoSClass, delta int32) uint32 {
	return addU32(s.mem, s.off+refCountOffset(class), delta)
}
func (s slotHeader) totalRefCount() uint32 {
	return loadU32(s.mem, s.off+shRefCountQM) + loadU32(s.mem, s.off+shRefCountAS)
}

func refCountOffset(class QoSClass) uint32 {
	if class == QoSClassASIL {
		return shRefCountAS
	}
	return shRefCountQM
}

func (s slotHeader) sequence() uint64     { return loadU64(s.mem, s.off+shSequence) }
func (s slotHeader) setSequence(v uint64) { storeU64(s.mem, s.off+shSequence, v) }

// QoSClass selects which of a slot's two parallel reference counts a
// consumer advances (spec §4.E.6). QoSClassQM is also used as the sole
// class for events with no dual control configured.
type QoSClass int

const (
	QoSClassQM QoSClass = iota
	QoSClassASIL
)

// regionAccessor narrows *shm.Region to what slotengine needs, easing
// testing with an in-memory byte slice instead of a real mmap.
type regionAccessor interface {
	Bytes() []byte
}

var _ regionAccessor = (*shm.Region)(nil)
