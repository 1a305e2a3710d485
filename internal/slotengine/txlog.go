package slotengine

// Transaction log wire format (spec §3 "Transaction log", §4.E.5,
// §6 "Transaction logs"): a small, single-writer, append-only ring of
// (op, slot_index, sequence) tuples, with the writer index written last
// so a torn write never fools a recovering reader into trusting a
// partially-written entry.
const (
	opAcquire uint32 = 0
	opRelease uint32 = 1

	txEntrySize = 16 // op u32, slot_index u32, sequence u64
)

// txLog is an accessor over one participant's transaction log.
type txLog struct {
	mem      []byte
	off      uint32 // start of this participant's stride (writer index, then entries)
	capacity uint32 // entries
}

func (l txLog) writerIndex() uint64     { return loadU64(l.mem, l.off) }
func (l txLog) setWriterIndex(v uint64) { storeU64(l.mem, l.off, v) }

func (l txLog) entryOffset(slot uint64) uint32 {
	idx := uint32(slot % uint64(l.capacity))
	return l.off + 8 + idx*txEntrySize
}

// append records one (op, slotIndex, sequence) tuple. Single-writer per
// log: only the owning producer or subscriber ever calls this for its own
// log, so no CAS is needed on the entry itself — only the writer index
// needs release ordering so a concurrent recovery pass sees a complete
// entry before it sees the bumped index (spec §4.E.5: "writer index
// written last (single-writer ring, lock-free)").
func (l txLog) append(op uint32, slotIndex uint32, sequence uint64) {
	widx := l.writerIndex()
	eoff := l.entryOffset(widx)
	storeU32(l.mem, eoff, op)
	storeU32(l.mem, eoff+4, slotIndex)
	storeU64(l.mem, eoff+8, sequence)
	l.setWriterIndex(widx + 1)
}

// txDelta is the net (acquires - releases) for one slot index, discovered
// during recovery.
type txDelta struct {
	slotIndex uint32
	net       int64
}

// recoverDeltas scans the live window of the ring — at most capacity
// entries, since older entries have been overwritten — and returns the net
// acquire count per slot index (spec §4.E.5 "for each slot index, compute
// acquires - releases from the dead subscriber's log").
func (l txLog) recoverDeltas() []txDelta {
	widx := l.writerIndex()
	count := uint64(l.capacity)
	if widx < count {
		count = widx
	}
	deltas := make(map[uint32]int64, count)
	for i := widx - count; i < widx; i++ {
		eoff := l.entryOffset(i)
		op := loadU32(l.mem, eoff)
		slotIndex := loadU32(l.mem, eoff+4)
		if op == opAcquire {
			deltas[slotIndex]++
		} else {
			deltas[slotIndex]--
		}
	}
	out := make([]txDelta, 0, len(deltas))
	for slot, net := range deltas {
		if net != 0 {
			out = append(out, txDelta{slotIndex: slot, net: net})
		}
	}
	return out
}

// truncate resets the log to empty, making the recovery pass idempotent:
// re-running it against a truncated log finds no live entries and
// computes an all-zero delta (spec §4.E.5: "The recovery pass is
// idempotent").
func (l txLog) truncate() {
	l.setWriterIndex(0)
}
