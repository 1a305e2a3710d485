package mockbinding

import "errors"

var (
	ErrAllocateFailed  = errors.New("mockbinding: no free slot available")
	ErrNoSample        = errors.New("mockbinding: no new sample available")
	ErrAlreadyFinished = errors.New("mockbinding: allocatee already published or dropped")
)
