package discovery

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OfferState mirrors the per-instance state machine of spec §4.F:
//
//	Unoffered --offer--> Offered --stop_offer--> Unoffered
//
// dropping an offered producer without stop_offer is a program error,
// caught at the lola facade rather than here.
type OfferState int

const (
	Unoffered OfferState = iota
	Offered
)

func (s OfferState) String() string {
	if s == Offered {
		return "offered"
	}
	return "unoffered"
}

type instanceKey struct {
	interfaceID       string
	instanceSpecifier string
}

type instanceRecord struct {
	state      OfferState
	regionName string
	epoch      uint64
}

// Registry is the intra-process map (interface_id, instance_specifier) ->
// OfferState (spec §4.F), backed by one cross-process Segment per
// interface id for advertisement. Guarded by a mutex taken only on
// offer/stop_offer/find, matching spec §5's concurrency rules.
type Registry struct {
	baseDir string
	logger  zerolog.Logger

	mu        sync.Mutex
	instances map[instanceKey]*instanceRecord
	segments  map[string]*Segment

	segmentCapacity uint32
}

// newEpoch derives a fresh offer epoch from a random UUID's low 64 bits
// (SPEC_FULL §1.4: google/uuid "generates the offer-epoch stamped into
// each OfferState"). Collisions are astronomically unlikely and harmless
// even if they occurred: stale advertisements are distinguished by
// liveness, not by epoch uniqueness alone.
func newEpoch() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[8:16])
}

// NewRegistry creates a registry rooted at baseDir, where discovery
// segment files live. segmentCapacity bounds how many instances of a
// single interface can be advertised concurrently. logger receives an
// Info event on every offer/stop_offer transition (SPEC_FULL §1.1); the
// zero zerolog.Logger discards silently, so a caller that does not care
// about diagnostics need not supply one.
func NewRegistry(baseDir string, segmentCapacity uint32, logger zerolog.Logger) *Registry {
	return &Registry{
		baseDir:         baseDir,
		logger:          logger,
		instances:       make(map[instanceKey]*instanceRecord),
		segments:        make(map[string]*Segment),
		segmentCapacity: segmentCapacity,
	}
}

func (r *Registry) segmentFor(interfaceID string) (*Segment, error) {
	if s, ok := r.segments[interfaceID]; ok {
		return s, nil
	}
	s, err := OpenOrCreate(r.baseDir, interfaceID, r.segmentCapacity)
	if err != nil {
		return nil, err
	}
	r.segments[interfaceID] = s
	return s, nil
}

// Offer transitions an instance Unoffered -> Offered, advertises it in the
// interface's discovery segment, and returns the freshly assigned offer
// epoch, which distinguishes this offering from earlier ones of the same
// instance. Re-offering does not reset the event buffers' sequence
// counters.
func (r *Registry) Offer(interfaceID, instanceSpecifier, regionName string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := instanceKey{interfaceID, instanceSpecifier}
	if rec, ok := r.instances[key]; ok && rec.state == Offered {
		return 0, fmt.Errorf("discovery: instance %s/%s already offered", interfaceID, instanceSpecifier)
	}

	seg, err := r.segmentFor(interfaceID)
	if err != nil {
		return 0, err
	}

	epoch := newEpoch()
	if err := seg.Publish(instanceSpecifier, regionName, epoch); err != nil {
		return 0, err
	}

	r.instances[key] = &instanceRecord{state: Offered, regionName: regionName, epoch: epoch}
	r.logger.Info().
		Str("interface", interfaceID).
		Str("instance", instanceSpecifier).
		Uint64("offer_epoch", epoch).
		Msg("registry: instance offered")
	return epoch, nil
}

// StopOffer transitions an instance Offered -> Unoffered and withdraws its
// discovery advertisement.
func (r *Registry) StopOffer(interfaceID, instanceSpecifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := instanceKey{interfaceID, instanceSpecifier}
	rec, ok := r.instances[key]
	if !ok || rec.state != Offered {
		return fmt.Errorf("discovery: instance %s/%s is not offered", interfaceID, instanceSpecifier)
	}
	rec.state = Unoffered

	if seg, ok := r.segments[interfaceID]; ok {
		seg.Withdraw(instanceSpecifier)
	}
	r.logger.Info().
		Str("interface", interfaceID).
		Str("instance", instanceSpecifier).
		Msg("registry: instance unoffered")
	return nil
}

// Handle is the opaque value issued by discovery (spec §4.B): identity is
// the (interface_id, instance_specifier, offer-epoch) triple.
type Handle struct {
	InterfaceID       string
	InstanceSpecifier string
	RegionName        string
	OfferEpoch        uint64
}

// Equals reports whether two handles refer to the same offering of the
// same instance (spec §4.B: "two handles compare equal iff they refer to
// the same offering of the same instance").
func (h Handle) Equals(other Handle) bool {
	return h.InterfaceID == other.InterfaceID &&
		h.InstanceSpecifier == other.InstanceSpecifier &&
		h.OfferEpoch == other.OfferEpoch
}

// FindService implements spec §4.F find_service: for a specific instance
// specifier, returns at most one matching handle; for Any (pass an empty
// instanceSpecifier), returns every advertised instance of interfaceID
// (SPEC_FULL §4: "Any ... shared-memory find_service(Any) returns every
// advertised instance of the requested interface"). It holds the registry
// mutex only while looking up (or opening) the interface's segment, then
// scans the segment without it.
func (r *Registry) FindService(interfaceID, instanceSpecifier string) ([]Handle, error) {
	r.mu.Lock()
	seg, err := r.segmentFor(interfaceID)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []Handle
	for _, ad := range seg.Scan() {
		if instanceSpecifier != "" && ad.InstanceSpecifier != instanceSpecifier {
			continue
		}
		out = append(out, Handle{
			InterfaceID:       interfaceID,
			InstanceSpecifier: ad.InstanceSpecifier,
			RegionName:        ad.RegionName,
			OfferEpoch:        ad.OfferEpoch,
		})
	}
	return out, nil
}

// Close releases all open discovery segments.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, seg := range r.segments {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
