// Package discovery implements spec §4.F: the offer/stop-offer state
// machine, the cross-process discovery shared segment, and find_service.
// Grounded on the iceoryx2-go teacher's service_discovery.go for the
// overall shape of a "scan a shared structure, filter, return handles"
// operation, rewritten here to walk a real mmap'd table instead of
// forwarding to cgo.
package discovery

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Wire layout of one discovery segment entry (spec §6 "Discovery
// segment"): instance_specifier_bytes, region_name_bytes, offer_epoch u64,
// alive_flag u32.
const (
	specifierFieldLen = 128
	regionNameFieldLen = 64
	entrySize          = specifierFieldLen + regionNameFieldLen + 8 + 4 + 4 // +4 pad for u64 alignment

	entrySpecifierOffset = 0
	entryRegionOffset    = specifierFieldLen
	entryEpochOffset     = specifierFieldLen + regionNameFieldLen
	entryAliveOffset     = entryEpochOffset + 8

	segmentHeaderSize = 8 // entry count u32 + reserved u32
)

// entry is an accessor over one fixed-size slot in the segment's table.
type entry struct {
	mem []byte
	off uint32
}

func (e entry) specifier() string {
	return cstring(e.mem[e.off+entrySpecifierOffset : e.off+entrySpecifierOffset+specifierFieldLen])
}

func (e entry) setSpecifier(s string) {
	writeCString(e.mem[e.off+entrySpecifierOffset:e.off+entrySpecifierOffset+specifierFieldLen], s)
}

func (e entry) regionName() string {
	return cstring(e.mem[e.off+entryRegionOffset : e.off+entryRegionOffset+regionNameFieldLen])
}

func (e entry) setRegionName(s string) {
	writeCString(e.mem[e.off+entryRegionOffset:e.off+entryRegionOffset+regionNameFieldLen], s)
}

func (e entry) epoch() uint64 {
	return binary.LittleEndian.Uint64(e.mem[e.off+entryEpochOffset:])
}

// setEpochThenAlive writes the epoch first, then sets alive last with
// release ordering; callers write the region/specifier fields before
// calling it, so a reader that observes alive == 1 is guaranteed to see a
// fully-written entry (spec §6: "Writers
// write with release ordering; readers read with acquire ordering and
// skip entries with alive_flag == 0").
func (e entry) setEpochThenAlive(epoch uint64, alive bool) {
	binary.LittleEndian.PutUint64(e.mem[e.off+entryEpochOffset:], epoch)
	var v uint32
	if alive {
		v = 1
	}
	storeU32Release(e.mem, e.off+entryAliveOffset, v)
}

func (e entry) alive() bool {
	return loadU32Acquire(e.mem, e.off+entryAliveOffset) != 0
}

func cstring(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func writeCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := copy(dst, s)
	_ = n
}

// Segment is the mmap'd discovery table for one interface id (spec §6:
// "Per interface id, a fixed-size table of ... entries").
type Segment struct {
	mem      []byte
	capacity uint32
	path     string
}

// OpenOrCreate maps (creating if necessary) the discovery segment file for
// interfaceID under baseDir, sized for capacity entries.
func OpenOrCreate(baseDir, interfaceID string, capacity uint32) (*Segment, error) {
	path := fmt.Sprintf("%s/discovery-%s.seg", baseDir, sanitize(interfaceID))
	size := segmentHeaderSize + int(capacity)*entrySize

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		return nil, fmt.Errorf("discovery: open %s: %w", path, err)
	}
	defer unix.Close(fd)

	st, err := fileSize(fd)
	if err != nil {
		return nil, err
	}
	if st == 0 {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, fmt.Errorf("discovery: truncate %s: %w", path, err)
		}
	} else if int(st) < size {
		return nil, fmt.Errorf("discovery: existing segment %s smaller than required %d bytes", path, size)
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("discovery: mmap %s: %w", path, err)
	}

	s := &Segment{mem: mem, capacity: capacity, path: path}
	if st == 0 {
		binary.LittleEndian.PutUint32(s.mem[0:], capacity)
	}
	return s, nil
}

// Close unmaps the segment. The file itself is left for other processes;
// it is not reference-counted like an event region since discovery
// segments are cheap and keyed purely by interface id.
func (s *Segment) Close() error {
	return unix.Munmap(s.mem)
}

func (s *Segment) entryAt(i uint32) entry {
	return entry{mem: s.mem, off: segmentHeaderSize + i*entrySize}
}

// Publish writes or refreshes this instance's entry (offer()). It scans
// for an existing entry with the same specifier first so re-offering the
// same instance reuses its slot instead of leaking a new one.
func (s *Segment) Publish(specifier, regionName string, epoch uint64) error {
	for i := uint32(0); i < s.capacity; i++ {
		e := s.entryAt(i)
		if e.alive() && e.specifier() == specifier {
			e.setEpochThenAlive(epoch, false)
			e.setRegionName(regionName)
			e.setEpochThenAlive(epoch, true)
			return nil
		}
	}
	for i := uint32(0); i < s.capacity; i++ {
		e := s.entryAt(i)
		if !e.alive() {
			e.setSpecifier(specifier)
			e.setRegionName(regionName)
			e.setEpochThenAlive(epoch, true)
			return nil
		}
	}
	return fmt.Errorf("discovery: segment for interface is full (capacity %d)", s.capacity)
}

// Withdraw marks the entry for specifier not alive (stop_offer()).
func (s *Segment) Withdraw(specifier string) {
	for i := uint32(0); i < s.capacity; i++ {
		e := s.entryAt(i)
		if e.alive() && e.specifier() == specifier {
			e.setEpochThenAlive(e.epoch(), false)
			return
		}
	}
}

// Advertisement is a snapshot of one alive entry.
type Advertisement struct {
	InstanceSpecifier string
	RegionName        string
	OfferEpoch        uint64
}

// Scan returns every currently-alive entry (spec §4.F: "find_service ...
// scans the discovery segment ... Concurrent finds never block writes").
func (s *Segment) Scan() []Advertisement {
	out := make([]Advertisement, 0, s.capacity)
	for i := uint32(0); i < s.capacity; i++ {
		e := s.entryAt(i)
		if !e.alive() {
			continue
		}
		spec := e.specifier()
		epoch := e.epoch()
		if !e.alive() {
			// Withdrawn between the two reads; skip rather than report a
			// stale advertisement.
			continue
		}
		out = append(out, Advertisement{InstanceSpecifier: spec, RegionName: e.regionName(), OfferEpoch: epoch})
	}
	return out
}

func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c == '/' || c == '\\' || c == 0 {
			b[i] = '_'
		}
	}
	return string(b)
}

func fileSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}
