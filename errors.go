// Copyright (c) 2024 Contributors to the Eclipse Foundation
//
// See the NOTICE file(s) distributed with this work for additional
// information regarding copyright ownership.
//
// This program and the accompanying materials are made available under the
// terms of the Apache Software License 2.0 which is available at
// https://www.apache.org/licenses/LICENSE-2.0, or the MIT license
// which is available at https://opensource.org/licenses/MIT.
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package lola

import (
	"errors"
	"fmt"
)

// ContextualError wraps an error with the operation that produced it.
// It implements Unwrap() for use with errors.Is()/errors.As().
type ContextualError struct {
	Op  string
	Err error
}

func (e *ContextualError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *ContextualError) Unwrap() error { return e.Err }

// WrapError wraps err with operation context. Returns nil if err is nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ContextualError{Op: op, Err: err}
}

// Process-visible error kinds (spec §6 "Process-visible errors", §7).
// The first four are the process-visible kinds; the sentinels after them
// name narrower conditions that specific operations return. Contract
// violations are program errors (spec §7 "Propagation policy") that panic
// rather than return.
var (
	// ErrFail is the catch-all for recoverable invariant violations: bad
	// parameters, an unknown instance, a binding mismatch.
	ErrFail = errors.New("lola: fail")

	// ErrTimeout indicates an async receive timed out.
	ErrTimeout = errors.New("lola: timeout")

	// ErrAllocateFailed indicates no free slot was available on a
	// non-lossy send; the caller may retry or drop (spec §4.E.2, §7).
	ErrAllocateFailed = errors.New("lola: allocate failed")

	// ErrSubscribeFailed indicates resource exhaustion (no transaction-log
	// slot left) or that the service is no longer offered (spec §7).
	ErrSubscribeFailed = errors.New("lola: subscribe failed")

	// ErrNoSample names the "nothing new" condition. TryReceive does not
	// return it: an empty reception is reported as a count of 0 with a
	// nil error.
	ErrNoSample = errors.New("lola: no sample")

	// ErrInvalidInstanceSpecifier is returned by ParseInstanceSpecifier.
	ErrInvalidInstanceSpecifier = errors.New("lola: invalid instance specifier")

	// ErrNotOffered is returned by Producer.Offer when the runtime's
	// configuration has no record of the instance. Subscribing against a
	// stale handle returns ErrSubscribeFailed instead.
	ErrNotOffered = errors.New("lola: instance not offered")

	// ErrRuntimeExists is returned by a second RuntimeBuilder.Create call
	// in the same process when the runtime refuses to coalesce (spec
	// §4.J: "creating two runtimes in one process is undefined —
	// implementations may either coalesce or refuse").
	ErrRuntimeExists = errors.New("lola: runtime already created in this process")

	// ErrClosed is returned by any operation on a producer, subscriber,
	// sample, or subscription that has already been torn down.
	ErrClosed = errors.New("lola: closed")
)

// programError panics to surface a contract violation that the caller
// cannot safely continue from (spec §7 "Propagation policy": "Contract
// violations that cannot be safely continued from... the implementation
// may abort the process"). It is never used for ordinary, recoverable
// failures — those return one of the sentinel errors above.
func programError(format string, args ...any) {
	panic(fmt.Sprintf("lola: program error: "+format, args...))
}
