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
	"fmt"
	"reflect"
)

// Relocatable is the marker a payload type asserts (spec §4.A): every bit
// pattern of an instance remains valid after copying its byte image into a
// different virtual address range. A generated composite grants itself the
// marker by embedding Reloc once its code-generation helper has verified
// the type has a fixed, repr-stable layout with no self-pointers and no
// references to out-of-region memory.
//
// Types that do not embed Reloc (primitives, plain test structs) are still
// accepted as payloads: VerifyRelocatable performs the equivalent check
// with reflection at registration time, standing in for the compile-time
// rejection the source language gives for free.
type Relocatable interface {
	isRelocatable()
}

// Reloc is embedded in a generated composite to grant it the Relocatable
// marker. It contributes no fields and no runtime behavior.
type Reloc struct{}

func (Reloc) isRelocatable() {}

// VerifyRelocatable walks t's value graph and fails if it can find a
// pointer, interface, map, channel, function, string, or slice anywhere —
// any of which would dangle or alias out-of-region memory once the byte
// image is copied into another process's address space. Fixed-size arrays
// and structs recurse into their elements/fields.
func VerifyRelocatable(t reflect.Type) error {
	return verifyRelocatable(t, make(map[reflect.Type]bool))
}

func verifyRelocatable(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Array:
		if err := verifyRelocatable(t.Elem(), seen); err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
		return nil
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := verifyRelocatable(f.Type, seen); err != nil {
				return fmt.Errorf("%s.%s: %w", t, f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("type %s is not relocatable (kind %s): self-pointers or out-of-region references are forbidden in shared-memory payloads", t, t.Kind())
	}
}

// VerifyPayloadType is the registration-time gate that Build and
// NewSubscriber call for an event's payload type. A type that embeds Reloc is trusted without
// re-walking its fields — the code generator already attested to it. Any
// other type is structurally verified. Failure is a program error (spec
// §7): misusing the contract is a bug in the caller's service description,
// not a recoverable runtime condition.
func VerifyPayloadType[T any]() {
	var zero T
	if _, ok := any(zero).(Relocatable); ok {
		return
	}
	t := reflect.TypeOf(zero)
	if t == nil {
		programError("payload type has no concrete representation")
	}
	if err := VerifyRelocatable(t); err != nil {
		programError("payload type %s fails the relocatable contract: %v", t, err)
	}
}
