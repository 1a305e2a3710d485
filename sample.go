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

import "unsafe"

// SampleMut is the "maybe-uninit sample" of spec §4.G: a reserved,
// not-yet-published slot of payload type T, supporting a placement
// write. Go has no placement-new; Write copies a value of T directly over
// the slot's backing bytes, which is the closest equivalent for a
// Relocatable (flat, pointer-free) payload type.
type SampleMut[T any] struct {
	a    allocatee
	done bool
}

func newSampleMut[T any](a allocatee) *SampleMut[T] {
	return &SampleMut[T]{a: a}
}

// Write performs a placement write of value into the reserved slot (spec
// §4.G: "write(value) (placement write of a value of the payload type)").
func (s *SampleMut[T]) Write(value T) {
	dst := s.slotBytes()
	src := unsafe.Slice((*byte)(unsafe.Pointer(&value)), int(unsafe.Sizeof(value)))
	copy(dst, src)
}

// WriteDefault in-place default-constructs T, skipping a move (spec §4.G:
// "write_default() (in-place default construction for types that admit
// it, skipping a move)"). For a flat Relocatable type, Go's zero value is
// exactly its default.
func (s *SampleMut[T]) WriteDefault() {
	var zero T
	s.Write(zero)
}

func (s *SampleMut[T]) slotBytes() []byte {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if s.a.binding == BindingMock {
		if len(s.a.mock.Payload()) != size {
			s.a.mock.SetPayload(make([]byte, size))
		}
		return s.a.mock.Payload()
	}
	return s.a.sm.Payload()[:size]
}

// Send publishes the sample, making it visible to subscribers (spec
// §4.E.2/§4.G). The SampleMut must not be used again afterward.
func (s *SampleMut[T]) Send() (uint64, error) {
	if s.done {
		return 0, ErrClosed
	}
	s.done = true
	seq, err := s.a.publish()
	if err != nil {
		return 0, WrapError("SampleMut.Send", err)
	}
	return seq, nil
}

// IntoSample publishes the sample and returns a producer-local reference
// to it, instead of handing visibility to subscribers only (SPEC_FULL
// §2.2, spec §9 into_sample open question).
func (s *SampleMut[T]) IntoSample() (*SampleRef[T], error) {
	if s.done {
		return nil, ErrClosed
	}
	s.done = true
	ref, err := s.a.intoSample()
	if err != nil {
		return nil, WrapError("SampleMut.IntoSample", err)
	}
	return &SampleRef[T]{ref: ref}, nil
}

// Drop abandons the sample without sending, returning its slot to Free
// (spec §4.E.2 "drop(allocatee) without publish").
func (s *SampleMut[T]) Drop() {
	if s.done {
		return
	}
	s.done = true
	s.a.drop()
}

// SampleRef is a typed, read-only reference to a published sample of type
// T, held across one or more processes via the slot's reference count
// (spec §4.E.3, §4.H.1). The zero value is not usable; obtain one from
// TryReceive or IntoSample.
type SampleRef[T any] struct {
	ref      sampleRef
	released bool
}

// Sequence returns the sample's sequence number (spec invariant 4:
// "Sequence numbers are strictly increasing per event over the lifetime
// of one offer").
func (s *SampleRef[T]) Sequence() uint64 { return s.ref.sequence() }

// Value copies out the payload as a T.
func (s *SampleRef[T]) Value() T {
	var out T
	src := s.ref.payload()
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&out)), int(unsafe.Sizeof(out)))
	copy(dst, src)
	return out
}

// Release drops the reference (spec §4.E.3). Safe to call more than once;
// later calls are no-ops.
func (s *SampleRef[T]) Release() {
	if s.released {
		return
	}
	s.released = true
	s.ref.release()
}

// Container is the bounded, ordered sample holder of spec §4.H.1: a FIFO
// of at most capacity SampleRef values, oldest first.
type Container[T any] struct {
	capacity int
	items    []*SampleRef[T]
}

// NewContainer creates an empty container with the given capacity.
func NewContainer[T any](capacity int) *Container[T] {
	return &Container[T]{capacity: capacity, items: make([]*SampleRef[T], 0, capacity)}
}

// Len returns the number of samples currently held.
func (c *Container[T]) Len() int { return len(c.items) }

// Capacity returns the container's fixed capacity.
func (c *Container[T]) Capacity() int { return c.capacity }

// Newest returns the most recently added sample, or nil if empty.
func (c *Container[T]) Newest() *SampleRef[T] {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[len(c.items)-1]
}

// Items returns the held samples, oldest first. The returned slice is
// owned by the caller.
func (c *Container[T]) Items() []*SampleRef[T] {
	out := make([]*SampleRef[T], len(c.items))
	copy(out, c.items)
	return out
}

// dropFront releases and removes the oldest element (spec §4.H.1: "Each
// drop releases one reference").
func (c *Container[T]) dropFront() {
	if len(c.items) == 0 {
		return
	}
	c.items[0].Release()
	c.items = c.items[1:]
}

// pushBack appends a new sample, evicting the oldest if already at
// capacity (spec §4.H.1: "If the container is at capacity, drop the
// front before the push").
func (c *Container[T]) pushBack(s *SampleRef[T]) {
	if len(c.items) >= c.capacity {
		c.dropFront()
	}
	c.items = append(c.items, s)
}
