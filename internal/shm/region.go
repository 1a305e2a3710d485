package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Region is a mapped shared-memory region: a byte slice backed by a file
// under a configurable directory, mapped MAP_SHARED so that writes are
// visible to every process holding the same name open (spec §4.D).
type Region struct {
	name  string
	bytes []byte
	path  string
}

// Name returns the region's name, as passed to OpenOrCreate.
func (r *Region) Name() string { return r.name }

// Bytes exposes the raw mapped memory. Callers (the slot engine) compute
// offsets with the layout package and perform atomic operations directly
// on this slice; no pointer stored here ever crosses back out of the
// region (spec §9: "never store native pointers inside shared memory").
func (r *Region) Bytes() []byte { return r.bytes }

// AddressOf returns a pointer to the byte at the given offset, satisfying
// the region manager's "relocatable access only" contract (spec §4.D):
// callers must only dereference it as a fixed-width integer/atomic, never
// store it, and never follow a pointer loaded from within the region.
func (r *Region) AddressOf(offset uint32) unsafe.Pointer {
	if int(offset) >= len(r.bytes) {
		panic(fmt.Sprintf("shm: offset %d out of bounds (region size %d)", offset, len(r.bytes)))
	}
	return unsafe.Pointer(&r.bytes[offset])
}

// header offsets into an open region, for the manager's own bookkeeping.
func (r *Region) openCountPtr() *uint32 {
	return (*uint32)(r.AddressOf(headerOpenCountOffset))
}

// Manager creates and opens named regions, tracking the deterministic
// fixed layout described in spec §4.D. The manager itself is
// process-local; cross-process liveness of the region is tracked through
// an atomic open-count stored in the region header (offset
// headerOpenCountOffset), so "last process to release reclaims it" (spec
// §4.D) holds even though no two processes share this Manager value.
type Manager struct {
	baseDir string
	logger  zerolog.Logger

	mu    sync.Mutex
	local map[string]*localRef
}

type localRef struct {
	region *Region
	count  int
}

// NewManager constructs a region manager rooted at baseDir. The directory
// is created if absent; a tmpfs-backed path (e.g. /dev/shm/lola) is the
// natural choice in production, mirroring POSIX shm_open semantics, but
// any writable directory works for tests.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("shm: create base dir: %w", err)
	}
	return &Manager{baseDir: baseDir, logger: zerolog.Nop(), local: make(map[string]*localRef)}, nil
}

// WithLogger attaches a logger that receives an Info event on every
// region open/close (SPEC_FULL §1.1). Returns m for chaining; the zero
// zerolog.Logger (the default) discards silently.
func (m *Manager) WithLogger(logger zerolog.Logger) *Manager {
	m.logger = logger
	return m
}

// OpenOrCreate maps the named region, creating and laying out its header
// if it does not already exist on disk. interfaceID is stamped into the
// header on creation only.
func (m *Manager) OpenOrCreate(name string, layout RegionLayout, interfaceID string) (*Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref, ok := m.local[name]; ok {
		ref.count++
		return ref.region, nil
	}

	path := filepath.Join(m.baseDir, sanitizeName(name))
	created := false
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		created = true
		if err := f.Truncate(int64(layout.TotalSize)); err != nil {
			return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
		}
	} else if uint32(info.Size()) < layout.TotalSize {
		return nil, fmt.Errorf("shm: region %s exists with incompatible (smaller) size %d < %d", name, info.Size(), layout.TotalSize)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(layout.TotalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	region := &Region{name: name, bytes: data, path: path}
	if created {
		writeHeader(region, interfaceID, layout.TotalSize)
	}
	atomic.AddUint32(region.openCountPtr(), 1)

	m.local[name] = &localRef{region: region, count: 1}
	m.logger.Info().
		Str("region", name).
		Str("interface", interfaceID).
		Bool("created", created).
		Msg("shm: region opened")
	return region, nil
}

// Close decrements the region's open count. When the count reaches zero —
// across every process that ever opened it, since the counter lives in
// shared memory — the mapping is removed and the backing file reclaimed.
func (m *Manager) Close(r *Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.local[r.name]
	if !ok {
		return fmt.Errorf("shm: region %s not open in this manager", r.name)
	}
	ref.count--
	if ref.count > 0 {
		return nil
	}
	delete(m.local, r.name)

	remaining := atomic.AddUint32(r.openCountPtr(), ^uint32(0)) // -1
	path := r.path
	if err := unix.Munmap(r.bytes); err != nil {
		return fmt.Errorf("shm: munmap %s: %w", path, err)
	}
	if remaining == 0 {
		_ = os.Remove(path)
	}
	m.logger.Info().
		Str("region", r.name).
		Uint32("remaining_openers", remaining).
		Msg("shm: region closed")
	return nil
}

func writeHeader(r *Region, interfaceID string, capMeta uint32) {
	b := r.bytes
	copy(b[headerMagicOffset:headerMagicOffset+8], Magic[:])
	binary.LittleEndian.PutUint32(b[headerVersionOffset:], 1)
	binary.LittleEndian.PutUint32(b[headerCapMetaOffset:], capMeta)

	idBytes := []byte(interfaceID)
	if len(idBytes) > headerIfaceBytesLen {
		idBytes = idBytes[:headerIfaceBytesLen]
	}
	binary.LittleEndian.PutUint32(b[headerIfaceLenOffset:], uint32(len(idBytes)))
	copy(b[headerIfaceBytesOffset:headerIfaceBytesOffset+headerIfaceBytesLen], idBytes)
}

// InterfaceID reads back the interface id stamped into the region header.
func (r *Region) InterfaceID() string {
	b := r.bytes
	n := binary.LittleEndian.Uint32(b[headerIfaceLenOffset:])
	if int(n) > headerIfaceBytesLen {
		n = headerIfaceBytesLen
	}
	return string(b[headerIfaceBytesOffset : headerIfaceBytesOffset+n])
}

// ValidMagic reports whether the region header carries the expected magic
// and is therefore a region this package wrote.
func (r *Region) ValidMagic() bool {
	return string(r.bytes[headerMagicOffset:headerMagicOffset+8]) == string(Magic[:])
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
