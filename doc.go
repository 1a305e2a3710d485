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

// Package lola provides a typed, zero-copy, shared-memory inter-process
// communication middleware for safety-critical automotive compute
// platforms.
//
// Producer processes ("skeletons") offer services composed of named
// events; consumer processes ("proxies") discover those services and
// subscribe to events. Event payloads are transported through relocatable
// shared-memory slots without serialization; ownership of each slot is
// tracked across process boundaries with reference counts and crash-safe
// transaction logs, so writers never overwrite samples still held by a
// live reader.
//
// # Getting started
//
// Build a runtime, offer a service, and send a sample:
//
//	rt, err := lola.NewRuntimeBuilder().ManifestPath("services.yaml").Create()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	producer, err := lola.Build[Tire](rt.ProducerBuilder("com.example.Tires", spec))
//	offered, err := producer.Offer("left_tire")
//	defer offered.Unoffer()
//
//	pub := offered.Publisher("left_tire")
//	pub.Send(Tire{Pressure: 32.5})
//
// On the consumer side:
//
//	handles, err := rt.FindService("com.example.Tires").Find(lola.Specific(spec))
//	sub := lola.NewSubscriber[Tire](rt, handles[0], "left_tire")
//	subscription, err := sub.Subscribe(3)
//	n, err := subscription.TryReceive(3)
//
// # Relocatable payload types
//
// Payload types must be flat and pointer-free: embed lola.Reloc, or let
// VerifyPayloadType's reflective check enforce it at registration time.
//
// # Bindings
//
// RuntimeBuilder.WithBinding selects between the real shared-memory
// binding and an in-process mock used for testing; both satisfy the same
// public API.
package lola
