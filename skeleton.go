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
	"runtime"
	"sync"
	"unsafe"

	"github.com/ferrox-auto/lola/internal/mockbinding"
	"github.com/ferrox-auto/lola/internal/slotengine"
)

// ProducerBuilder configures a not-yet-offered producer (spec §4.J
// "producer_builder<I>(spec) -> ProducerBuilder", §4.G).
type ProducerBuilder struct {
	rt                *Runtime
	interfaceID       InterfaceID
	instanceSpecifier InstanceSpecifier
}

// Build validates T's relocatability (spec §4.A) and returns a Producer
// handle, not yet offered.
func Build[T any](b *ProducerBuilder) (*Producer[T], error) {
	VerifyPayloadType[T]()
	return &Producer[T]{rt: b.rt, interfaceID: b.interfaceID, instanceSpecifier: b.instanceSpecifier}, nil
}

// Producer is a not-yet-offered handle (spec §4.G: "A producer is a
// not-yet-offered handle").
type Producer[T any] struct {
	rt                *Runtime
	interfaceID       InterfaceID
	instanceSpecifier InstanceSpecifier
}

// Offer consumes the producer and yields an OfferedProducer that owns the
// per-event publishers requested (spec §4.G, §4.F offer()).
func (p *Producer[T]) Offer(eventIDs ...string) (*OfferedProducer[T], error) {
	var zero T
	size := uint32(unsafe.Sizeof(zero))
	align := uint32(unsafe.Alignof(zero))

	op := &OfferedProducer[T]{rt: p.rt, interfaceID: p.interfaceID, instanceSpecifier: p.instanceSpecifier, publishers: make(map[string]*Publisher[T])}

	inst, ok := p.rt.config.Instance(string(p.interfaceID), p.instanceSpecifier.String())
	if !ok {
		return nil, WrapError("Producer.Offer", ErrNotOffered)
	}

	for _, eventID := range eventIDs {
		var binding eventBinding
		if p.rt.binding == BindingMock {
			eb, _, err := p.rt.mockEventBuffer(p.interfaceID, p.instanceSpecifier, eventID)
			if err != nil {
				return nil, WrapError("Producer.Offer", err)
			}
			binding = mockEventBinding{eb: eb}
		} else {
			eb, params, err := p.rt.sharedEventBuffer(p.interfaceID, p.instanceSpecifier, eventID, size, align)
			if err != nil {
				return nil, WrapError("Producer.Offer", err)
			}
			eb.InitControlBlocks()
			class := slotengine.QoSClassQM
			if params.DualControl {
				class = slotengine.QoSClassASIL
			}
			binding = smEventBinding{eb: eb, class: class, participant: eb.ProducerParticipant()}
		}
		op.publishers[eventID] = &Publisher[T]{binding: binding}
	}

	regionName := inst.RegionName
	epoch, err := p.rt.registry.Offer(string(p.interfaceID), p.instanceSpecifier.String(), regionName)
	if err != nil {
		return nil, WrapError("Producer.Offer", err)
	}
	op.offerEpoch = epoch

	offeredInstancesGaugeVec.WithLabelValues(string(p.interfaceID)).Inc()
	p.rt.logger.Info().
		Str("interface", string(p.interfaceID)).
		Str("instance", p.instanceSpecifier.String()).
		Uint64("offer_epoch", epoch).
		Msg("instance offered")

	// Enforces spec §4.F/§7's hard contract ("drop without stop_offer is
	// illegal") even when a caller forgets to call Unoffer explicitly:
	// the finalizer panics via mustBeUnoffered, rather than letting the
	// violation pass silently. Cleared in Unoffer once the contract is
	// honored.
	runtime.SetFinalizer(op, (*OfferedProducer[T]).mustBeUnoffered)

	return op, nil
}

// OfferedProducer owns per-event Publisher objects for the lifetime of one
// offer (spec §4.G). It must be explicitly Unoffer'd; dropping it without
// doing so is a program error (spec §4.F: "drop without stop_offer is
// illegal").
type OfferedProducer[T any] struct {
	rt                *Runtime
	interfaceID       InterfaceID
	instanceSpecifier InstanceSpecifier
	offerEpoch        uint64

	mu         sync.Mutex
	publishers map[string]*Publisher[T]
	unoffered  bool
}

// Publisher returns the publisher for eventID, or nil if it was not
// included in Offer's eventIDs.
func (op *OfferedProducer[T]) Publisher(eventID string) *Publisher[T] {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.publishers[eventID]
}

// Unoffer transitions the instance back to Unoffered and withdraws its
// discovery advertisement (spec §4.F, §4.G). It does not close the
// events' shared-memory regions: their open counts are left unchanged and
// the runtime keeps them mapped.
func (op *OfferedProducer[T]) Unoffer() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.unoffered {
		return nil
	}
	op.unoffered = true
	err := op.rt.registry.StopOffer(string(op.interfaceID), op.instanceSpecifier.String())
	offeredInstancesGaugeVec.WithLabelValues(string(op.interfaceID)).Dec()
	op.rt.logger.Info().
		Str("interface", string(op.interfaceID)).
		Str("instance", op.instanceSpecifier.String()).
		Msg("instance unoffered")
	runtime.SetFinalizer(op, nil)
	return err
}

// mustBeUnoffered is the finalizer Offer installs: it panics with a
// program error if the producer was never Unoffer'd (spec §7
// "Propagation policy"). Tests also call it directly.
func (op *OfferedProducer[T]) mustBeUnoffered() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.unoffered {
		programError("OfferedProducer dropped without Unoffer for %s/%s", op.interfaceID, op.instanceSpecifier)
	}
}

// Publisher exposes allocate/send for one event of an offered producer
// (spec §4.G).
type Publisher[T any] struct {
	binding eventBinding
}

// Allocate reserves a slot for a placement write, forwarding to spec
// §4.E.2 (spec §4.G: "allocate() -> Maybe-uninit sample | AllocateFailed").
func (p *Publisher[T]) Allocate() (*SampleMut[T], error) {
	a, err := p.binding.allocate()
	if errors.Is(err, slotengine.ErrAllocateFailed) || errors.Is(err, mockbinding.ErrAllocateFailed) {
		return nil, WrapError("Publisher.Allocate", ErrAllocateFailed)
	}
	if err != nil {
		return nil, WrapError("Publisher.Allocate", err)
	}
	return newSampleMut[T](a), nil
}

// Send is the fused convenience equivalent to
// allocate().write(value).send() (spec §4.G).
func (p *Publisher[T]) Send(value T) (uint64, error) {
	sample, err := p.Allocate()
	if err != nil {
		return 0, err
	}
	sample.Write(value)
	return sample.Send()
}
