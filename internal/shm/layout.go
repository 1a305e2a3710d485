// Package shm implements the region manager of spec §4.D: it creates or
// opens named, relocatable memory regions with a fixed, deterministically
// offset layout (region header, per-event control/slot/payload/tx-log
// arrays), backed by golang.org/x/sys/unix mmap over a regular file since
// the Go standard library has no POSIX shm_open equivalent.
package shm

import "fmt"

// Wire layout constants (spec §6 "Shared-memory region layout").
const (
	// HeaderSize is the fixed 64-byte region header.
	HeaderSize = 64

	headerMagicOffset      = 0
	headerVersionOffset    = 8
	headerCapMetaOffset    = 12
	headerIfaceLenOffset   = 16
	headerIfaceBytesOffset = 20
	headerIfaceBytesLen    = 40
	headerOpenCountOffset  = 60

	// ControlBlockSize is writer cursor, offered-flag, capacity, qos-mask,
	// each a u32 (spec §6 "ControlBlock").
	ControlBlockSize = 16
	// SlotHeaderSize is state u32, ref_count_qm u32, ref_count_asil u32,
	// 4 bytes padding, sequence u64 (spec §6 "Slot headers").
	SlotHeaderSize = 24
	// TxLogEntrySize is op u32, slot_index u32, sequence u64 (spec §6
	// "Transaction logs").
	TxLogEntrySize = 16
	// txLogHeaderSize reserves an 8-byte writer index ahead of the ring of
	// entries (spec §4.E.5: "writer index written last").
	txLogHeaderSize = 8
)

// Magic is the region header's magic value (spec §6: b"LOLAR1\0\0").
var Magic = [8]byte{'L', 'O', 'L', 'A', 'R', '1', 0, 0}

// align8 rounds n up to the next multiple of 8.
func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// EventLayout is the computed byte layout of a single event's arrays
// within a region (spec §4.E.1).
type EventLayout struct {
	EventID string

	SlotCount      uint32
	MaxSubscribers uint32
	DualControl    bool
	PayloadSize    uint32
	PayloadAlign   uint32
	TxLogCapacity  uint32 // entries per log

	ControlBlockOffset    uint32 // QM (or sole) control block
	ControlBlockASILOff   uint32 // 0 if !DualControl
	SequenceCounterOffset uint32 // producer-private u64 next-sequence counter
	SlotHeaderOffset      uint32
	PayloadOffset         uint32
	TxLogOffset           uint32
	TxLogStride           uint32 // bytes per participant's log
	End                   uint32 // first free byte after this event's block
}

// controlBlockCount returns 1, or 2 under dual QM/ASIL-B control (§4.E.6).
func (e EventLayout) controlBlockCount() uint32 {
	if e.DualControl {
		return 2
	}
	return 1
}

// LayoutBuilder accumulates per-event layouts in declaration order and
// produces a RegionLayout with deterministic offsets (spec §4.D: "a header
// of known offset, followed by per-event control arrays, followed by
// per-event payload arrays, followed by transaction-log arrays" — this
// builder instead interleaves each event's own four arrays contiguously,
// which is layout-compatible with that description since each event's
// slice of the region is self-contained and the overall ordering across
// events is preserved).
type LayoutBuilder struct {
	cursor uint32
	events []EventLayout
}

// NewLayoutBuilder starts a new layout immediately after the region header.
func NewLayoutBuilder() *LayoutBuilder {
	return &LayoutBuilder{cursor: HeaderSize}
}

// AddEvent reserves space for one event's arrays and returns the computed
// layout. payloadAlign must be a power of two.
func (b *LayoutBuilder) AddEvent(eventID string, slotCount, maxSubscribers uint32, payloadSize, payloadAlign uint32, txLogCapacity uint32, dualControl bool) (EventLayout, error) {
	if slotCount == 0 {
		return EventLayout{}, fmt.Errorf("shm: event %q: slot count must be > 0", eventID)
	}
	if maxSubscribers == 0 {
		return EventLayout{}, fmt.Errorf("shm: event %q: max subscribers must be > 0", eventID)
	}
	if payloadAlign == 0 || payloadAlign&(payloadAlign-1) != 0 {
		return EventLayout{}, fmt.Errorf("shm: event %q: payload alignment must be a power of two", eventID)
	}

	e := EventLayout{
		EventID:        eventID,
		SlotCount:      slotCount,
		MaxSubscribers: maxSubscribers,
		DualControl:    dualControl,
		PayloadSize:    payloadSize,
		PayloadAlign:   payloadAlign,
		TxLogCapacity:  txLogCapacity,
	}

	b.cursor = align8(b.cursor)
	e.ControlBlockOffset = b.cursor
	b.cursor += ControlBlockSize
	if dualControl {
		e.ControlBlockASILOff = b.cursor
		b.cursor += ControlBlockSize
	}

	b.cursor = align8(b.cursor)
	e.SequenceCounterOffset = b.cursor
	b.cursor += 8

	b.cursor = alignN(b.cursor, SlotHeaderSize)
	e.SlotHeaderOffset = b.cursor
	b.cursor += SlotHeaderSize * slotCount

	alignedPayload := alignN(b.cursor, payloadAlign)
	b.cursor = alignedPayload
	e.PayloadOffset = b.cursor
	b.cursor += payloadSize * slotCount

	b.cursor = align8(b.cursor)
	e.TxLogOffset = b.cursor
	e.TxLogStride = txLogHeaderSize + TxLogEntrySize*txLogCapacity
	participants := maxSubscribers + 1 // + 1 for the producer
	b.cursor += e.TxLogStride * participants

	e.End = b.cursor
	b.events = append(b.events, e)
	return e, nil
}

// alignN rounds n up to the next multiple of align. It works by remainder,
// so align need not be a power of two (SlotHeaderSize, 24, is not); an
// align of 0 returns n unchanged.
func alignN(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// RegionLayout is the finished, immutable layout of an entire region.
type RegionLayout struct {
	TotalSize uint32
	Events    []EventLayout
}

// Build finalizes the layout.
func (b *LayoutBuilder) Build() RegionLayout {
	return RegionLayout{TotalSize: b.cursor, Events: b.events}
}

// Event looks up a previously added event's layout by id.
func (r RegionLayout) Event(eventID string) (EventLayout, bool) {
	for _, e := range r.Events {
		if e.EventID == eventID {
			return e, true
		}
	}
	return EventLayout{}, false
}
