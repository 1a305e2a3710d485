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

import "github.com/ferrox-auto/lola/internal/discovery"

// ServiceHandle is an opaque value designating one concrete offered
// instance of (interface_id, instance_specifier). Issued by discovery,
// consumed by proxy construction (spec §4.B). Copyable.
type ServiceHandle struct {
	interfaceID       InterfaceID
	instanceSpecifier InstanceSpecifier
	regionName        string
	offerEpoch        uint64
}

// InterfaceID returns the handle's interface identifier.
func (h ServiceHandle) InterfaceID() InterfaceID { return h.interfaceID }

// InstanceSpecifier returns the handle's instance specifier.
func (h ServiceHandle) InstanceSpecifier() InstanceSpecifier { return h.instanceSpecifier }

// Equals reports whether two handles refer to the same offering of the
// same instance: the (interface_id, instance_specifier, offer-epoch)
// triple (spec §4.B).
func (h ServiceHandle) Equals(other ServiceHandle) bool {
	return h.interfaceID == other.interfaceID &&
		h.instanceSpecifier.Equals(other.instanceSpecifier) &&
		h.offerEpoch == other.offerEpoch
}

func handleFromDiscovery(interfaceID InterfaceID, d discovery.Handle) (ServiceHandle, error) {
	spec, err := ParseInstanceSpecifier(d.InstanceSpecifier)
	if err != nil {
		return ServiceHandle{}, WrapError("handleFromDiscovery", err)
	}
	return ServiceHandle{
		interfaceID:       interfaceID,
		instanceSpecifier: spec,
		regionName:        d.RegionName,
		offerEpoch:        d.OfferEpoch,
	}, nil
}

// ServiceDiscovery is the handle-producing facade returned by
// Runtime.FindService (spec §4.J: "find_service<I>(spec) -> ServiceDiscovery").
type ServiceDiscovery struct {
	rt          *Runtime
	interfaceID InterfaceID
}

// FindSpecifier selects what FindService matches against: a specific,
// validated InstanceSpecifier, or Any (the zero value) to enumerate every
// advertised instance of the interface (spec §9: "Any ... shared-memory
// find_service(Any) returns every advertised instance of the requested
// interface").
type FindSpecifier struct {
	specifier InstanceSpecifier
	any       bool
}

// Specific matches exactly one instance specifier.
func Specific(spec InstanceSpecifier) FindSpecifier {
	return FindSpecifier{specifier: spec}
}

// Any matches every advertised instance of the requested interface.
func Any() FindSpecifier {
	return FindSpecifier{any: true}
}

// Find runs find_service against the discovery segment for this
// interface (spec §4.F). Never blocks.
func (d ServiceDiscovery) Find(spec FindSpecifier) ([]ServiceHandle, error) {
	query := ""
	if !spec.any {
		query = spec.specifier.String()
	}
	found, err := d.rt.registry.FindService(string(d.interfaceID), query)
	if err != nil {
		return nil, WrapError("ServiceDiscovery.Find", err)
	}
	out := make([]ServiceHandle, 0, len(found))
	for _, f := range found {
		h, err := handleFromDiscovery(d.interfaceID, f)
		if err != nil {
			continue // malformed advertisement; skip rather than fail the whole scan
		}
		out = append(out, h)
	}
	return out, nil
}

// CallbackProgression controls whether a bounded scan keeps visiting
// advertised instances or stops early (SPEC_FULL §2 item 4, grounded on
// the teacher's iox2_callback_progression_e / CallbackProgression, used
// the same way by ListServices and the node/waitset callbacks in
// pkg/iceoryx2).
type CallbackProgression int

const (
	// CallbackProgressionContinue visits the next handle, if any.
	CallbackProgressionContinue CallbackProgression = iota
	// CallbackProgressionStop ends the scan immediately.
	CallbackProgressionStop
)

// DiscoverAll enumerates every advertised instance of interfaceID
// (SPEC_FULL §2 item 1: a ListServices-style enumeration helper layered
// over find_service(Any), carried over from the teacher's
// ListServices/ServiceListCallback). A nil callback simply collects every
// handle; a non-nil one is invoked once per handle in discovery order and
// may return CallbackProgressionStop to bound the scan early (§2 item 4),
// in which case DiscoverAll returns only the handles visited so far.
// Never blocks.
func (rt *Runtime) DiscoverAll(interfaceID InterfaceID, callback func(ServiceHandle) CallbackProgression) []ServiceHandle {
	handles, err := rt.FindService(interfaceID).Find(Any())
	if err != nil {
		return nil
	}
	if callback == nil {
		return handles
	}
	out := make([]ServiceHandle, 0, len(handles))
	for _, h := range handles {
		out = append(out, h)
		if callback(h) == CallbackProgressionStop {
			break
		}
	}
	return out
}
