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
	"github.com/ferrox-auto/lola/internal/mockbinding"
	"github.com/ferrox-auto/lola/internal/slotengine"
)

// Binding selects which implementation satisfies the public API (spec
// §4.I): the real shared-memory binding, or an in-process mock used for
// testing. Binding choice is fixed at RuntimeBuilder construction time.
type Binding int

const (
	// BindingSharedMemory is the real cross-process binding (spec §4.D, §4.E).
	BindingSharedMemory Binding = iota
	// BindingMock is the in-process, boxed-payload binding used for tests.
	BindingMock
)

func (b Binding) String() string {
	if b == BindingMock {
		return "mock"
	}
	return "shared-memory"
}

// allocatee is the discriminated variant over bindings (spec §4.I):
// exactly one of sm/mock is set, selected once at construction and never
// switched. It carries no separate reference-tracker field.
type allocatee struct {
	binding Binding
	sm      *slotengine.Allocatee
	mock    *mockbinding.Allocatee
}

func (a allocatee) payload() []byte {
	if a.binding == BindingMock {
		return a.mock.Payload()
	}
	return a.sm.Payload()
}

func (a allocatee) setMockPayload(p []byte) {
	if a.binding == BindingMock {
		a.mock.SetPayload(p)
	}
}

func (a allocatee) publish() (uint64, error) {
	if a.binding == BindingMock {
		return a.mock.Publish()
	}
	return a.sm.Publish()
}

func (a allocatee) drop() {
	if a.binding == BindingMock {
		a.mock.Drop()
		return
	}
	a.sm.Drop()
}

func (a allocatee) intoSample() (sampleRef, error) {
	if a.binding == BindingMock {
		s, err := a.mock.IntoSample()
		if err != nil {
			return sampleRef{}, err
		}
		return sampleRef{binding: BindingMock, mock: s}, nil
	}
	s, err := a.sm.IntoSample()
	if err != nil {
		return sampleRef{}, err
	}
	return sampleRef{binding: BindingSharedMemory, sm: s}, nil
}

// sampleRef is the discriminated variant over bindings for a held sample
// reference (spec §4.I: "The mock binding stores the payload inside the
// sample reference itself ...; the shared-memory binding stores a pointer
// into shared memory and a back-pointer into the transaction log").
type sampleRef struct {
	binding Binding
	sm      *slotengine.SampleRef
	mock    *mockbinding.SampleRef
}

func (s sampleRef) sequence() uint64 {
	if s.binding == BindingMock {
		return s.mock.Sequence()
	}
	return s.sm.Sequence()
}

func (s sampleRef) payload() []byte {
	if s.binding == BindingMock {
		return s.mock.Payload()
	}
	return s.sm.Payload()
}

func (s sampleRef) release() {
	if s.binding == BindingMock {
		s.mock.Release()
		return
	}
	s.sm.Release()
}

// eventBinding is the minimal per-event contract both bindings satisfy;
// Publisher and Subscription are written entirely against this interface
// so they never branch on Binding themselves (spec §4.I: "Binding choice
// is fixed at construction time through the runtime builder").
type eventBinding interface {
	allocate() (allocatee, error)
	tryAcquireNext(lastSeen uint64) (sampleRef, error)
}

// smEventBinding adapts *slotengine.EventBuffer to eventBinding.
type smEventBinding struct {
	eb          *slotengine.EventBuffer
	class       slotengine.QoSClass
	participant uint32
}

func (b smEventBinding) allocate() (allocatee, error) {
	a, err := b.eb.Allocate(b.class)
	if err != nil {
		return allocatee{}, err
	}
	return allocatee{binding: BindingSharedMemory, sm: a}, nil
}

func (b smEventBinding) tryAcquireNext(lastSeen uint64) (sampleRef, error) {
	s, err := b.eb.TryAcquireNext(b.participant, b.class, lastSeen)
	if err != nil {
		return sampleRef{}, err
	}
	return sampleRef{binding: BindingSharedMemory, sm: s}, nil
}

// mockEventBinding adapts *mockbinding.EventBuffer to eventBinding.
type mockEventBinding struct {
	eb *mockbinding.EventBuffer
}

func (b mockEventBinding) allocate() (allocatee, error) {
	a, err := b.eb.Allocate()
	if err != nil {
		return allocatee{}, err
	}
	return allocatee{binding: BindingMock, mock: a}, nil
}

func (b mockEventBinding) tryAcquireNext(lastSeen uint64) (sampleRef, error) {
	s, err := b.eb.TryAcquireNext(lastSeen)
	if err != nil {
		return sampleRef{}, err
	}
	return sampleRef{binding: BindingMock, mock: s}, nil
}
