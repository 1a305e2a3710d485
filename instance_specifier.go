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
	"strings"
)

// InstanceSpecifier is an absolute, slash-separated path naming one
// instance of a service interface (spec §3 "Instance specifier"), e.g.
// "/My/Funk/ServiceName". Equality is string equality after validation;
// there is no normalization beyond rejecting invalid inputs.
type InstanceSpecifier struct {
	path string
}

// ParseInstanceSpecifier validates and builds an InstanceSpecifier.
// Rules (spec §3): exactly one leading slash, no empty segments, no
// trailing slash, no double slashes, each segment matching [A-Za-z0-9_]+.
func ParseInstanceSpecifier(s string) (InstanceSpecifier, error) {
	if !strings.HasPrefix(s, "/") {
		return InstanceSpecifier{}, fmt.Errorf("%w: %q: missing leading slash", ErrInvalidInstanceSpecifier, s)
	}
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		return InstanceSpecifier{}, fmt.Errorf("%w: %q: trailing slash", ErrInvalidInstanceSpecifier, s)
	}
	segments := strings.Split(s[1:], "/")
	if len(segments) == 0 {
		return InstanceSpecifier{}, fmt.Errorf("%w: %q: no segments", ErrInvalidInstanceSpecifier, s)
	}
	for _, seg := range segments {
		if seg == "" {
			return InstanceSpecifier{}, fmt.Errorf("%w: %q: empty segment", ErrInvalidInstanceSpecifier, s)
		}
		for _, r := range seg {
			if !isSegmentRune(r) {
				return InstanceSpecifier{}, fmt.Errorf("%w: %q: invalid character %q", ErrInvalidInstanceSpecifier, s, r)
			}
		}
	}
	return InstanceSpecifier{path: s}, nil
}

// MustParseInstanceSpecifier panics on an invalid specifier. Intended for
// static/compile-time-known names (e.g. tests, generated code).
func MustParseInstanceSpecifier(s string) InstanceSpecifier {
	spec, err := ParseInstanceSpecifier(s)
	if err != nil {
		panic(err)
	}
	return spec
}

func isSegmentRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer, returning the validated path.
func (s InstanceSpecifier) String() string {
	return s.path
}

// Equals reports whether two specifiers name the same path.
func (s InstanceSpecifier) Equals(other InstanceSpecifier) bool {
	return s.path == other.path
}

// IsZero reports whether s is the zero value (never a valid specifier).
func (s InstanceSpecifier) IsZero() bool {
	return s.path == ""
}

// InterfaceID is a stable string constant associated with a generated
// service description (spec §3 "Interface identifier"). Two processes
// agree on this identifier to be compatible; the core treats it as an
// opaque comparable string.
type InterfaceID string
