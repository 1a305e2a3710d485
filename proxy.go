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
	"os"
	"sync"
	"unsafe"

	"github.com/ferrox-auto/lola/internal/slotengine"
)

// Subscriber binds a service handle and an event identifier (spec §4.H:
// "A subscriber binds a service handle and an event identifier").
type Subscriber[T any] struct {
	rt     *Runtime
	handle ServiceHandle
	event  string
	class  slotengine.QoSClass
}

// NewSubscriber builds a subscriber for handle's event eventID. T's
// relocatability is verified immediately (spec §4.A).
func NewSubscriber[T any](rt *Runtime, handle ServiceHandle, eventID string) *Subscriber[T] {
	VerifyPayloadType[T]()
	return &Subscriber[T]{rt: rt, handle: handle, event: eventID, class: slotengine.QoSClassQM}
}

// WithASILClass selects the ASIL-B reference-count track of a
// dual-control event instead of the QM track (spec §4.E.6). Has no effect
// under the mock binding.
func (s *Subscriber[T]) WithASILClass() *Subscriber[T] {
	s.class = slotengine.QoSClassASIL
	return s
}

// subscriptionState mirrors spec §4.H's subscription state machine:
// Unsubscribed -- subscribe(n) --> Subscribed(capacity=n)
// Subscribed -- unsubscribe --> Unsubscribed (returns the underlying subscriber)
type subscriptionState int

const (
	stateUnsubscribed subscriptionState = iota
	stateSubscribed
)

// Subscribe opens the subscription with the given sample-container
// capacity (spec §4.H: "subscribe(max_samples) -> Subscription |
// SubscribeFailed").
func (s *Subscriber[T]) Subscribe(maxSamples int) (*Subscription[T], error) {
	var zero T
	size := uint32(unsafe.Sizeof(zero))
	align := uint32(unsafe.Alignof(zero))

	var binding eventBinding
	var participant uint32
	var eb *slotengine.EventBuffer
	var pid int32
	if s.rt.binding == BindingMock {
		mb, _, err := s.rt.mockEventBuffer(s.handle.InterfaceID(), s.handle.InstanceSpecifier(), s.event)
		if err != nil {
			return nil, WrapError("Subscriber.Subscribe", ErrSubscribeFailed)
		}
		binding = mockEventBinding{eb: mb}
	} else {
		var err error
		eb, _, err = s.rt.sharedEventBuffer(s.handle.InterfaceID(), s.handle.InstanceSpecifier(), s.event, size, align)
		if err != nil {
			return nil, WrapError("Subscriber.Subscribe", ErrSubscribeFailed)
		}
		participant, err = eb.AcquireSubscriberSlot()
		if err != nil {
			return nil, WrapError("Subscriber.Subscribe", ErrSubscribeFailed)
		}
		binding = smEventBinding{eb: eb, class: s.class, participant: participant}

		// This subscription's OS process is the liveness oracle's unit of
		// tracking (spec §6): if this process dies holding the
		// transaction-log participant slot, sweep recovers it on our
		// behalf.
		pid = int32(os.Getpid())
		s.rt.liveness.Track(pid, eb, participant, s.class)
	}

	return &Subscription[T]{
		subscriber:  s,
		state:       stateSubscribed,
		binding:     binding,
		eb:          eb,
		participant: participant,
		pid:         pid,
		container:   NewContainer[T](maxSamples),
	}, nil
}

// Subscription is the opened handle returned by Subscribe (spec §4.H).
type Subscription[T any] struct {
	subscriber  *Subscriber[T]
	state       subscriptionState
	binding     eventBinding
	eb          *slotengine.EventBuffer // nil under the mock binding
	participant uint32
	pid         int32
	lastSeen    uint64
	container   *Container[T]

	mu      sync.Mutex
	handler ReceiveHandler
}

// TryReceive implements spec §4.H.1 verbatim: rejects an oversized
// request, pre-trims the container to leave room, repeatedly acquires new
// samples, and returns the count of newly added samples.
func (sub *Subscription[T]) TryReceive(maxSamples int) (int, error) {
	if sub.state != stateSubscribed {
		return 0, WrapError("Subscription.TryReceive", ErrClosed)
	}
	if maxSamples > sub.container.Capacity() {
		return 0, WrapError("Subscription.TryReceive", ErrFail)
	}

	for sub.container.Len() >= maxSamples {
		sub.container.dropFront()
	}

	added := 0
	for added < maxSamples {
		ref, err := sub.binding.tryAcquireNext(sub.lastSeen)
		if err != nil {
			break
		}
		sub.lastSeen = ref.sequence()
		// Trim against maxSamples on every push, not just once up front:
		// maxSamples may be smaller than the container's fixed capacity,
		// and pushBack on its own only evicts against that capacity
		// (grounded on original_source's consumer.rs acquire loop: "while
		// scratch.sample_count() >= max_samples { scratch.pop_front() }"
		// executed per push).
		for sub.container.Len() >= maxSamples {
			sub.container.dropFront()
		}
		sub.container.pushBack(&SampleRef[T]{ref: ref})
		added++
	}
	return added, nil
}

// Container returns the subscription's sample container.
func (sub *Subscription[T]) Container() *Container[T] { return sub.container }

// Unsubscribe transitions back to Unsubscribed, releasing the
// transaction-log slot (under the shared-memory binding) and every
// sample still held in the container (spec §4.H: "returns the underlying
// subscriber").
func (sub *Subscription[T]) Unsubscribe() *Subscriber[T] {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.state != stateSubscribed {
		return sub.subscriber
	}
	sub.state = stateUnsubscribed
	sub.handler = nil // sub.mu is already held; UnsetHandler would deadlock

	for sub.container.Len() > 0 {
		sub.container.dropFront()
	}
	if sub.eb != nil {
		sub.eb.ReleaseSubscriberSlot(sub.participant)
		sub.subscriber.rt.liveness.Untrack(sub.pid, sub.eb, sub.participant)
	}
	return sub.subscriber
}
