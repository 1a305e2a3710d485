package slotengine

import "errors"

// Sentinel errors returned by this package. The lola facade maps these
// onto its own process-visible errors (spec §6/§7); slotengine keeps its
// own set so it stays usable independent of the root package's API shape.
var (
	ErrAllocateFailed  = errors.New("slotengine: no free slot available")
	ErrNoSample        = errors.New("slotengine: no new sample available")
	ErrNoSlot          = errors.New("slotengine: no transaction-log slot available")
	ErrAlreadyFinished = errors.New("slotengine: allocatee already published or dropped")
)
