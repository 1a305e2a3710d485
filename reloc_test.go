package lola_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola"
)

type flatPayload struct {
	Pressure float32
	Count    uint32
}

type pointerPayload struct {
	Name string
}

type nestedFlatPayload struct {
	Inner flatPayload
	IDs   [4]uint32
}

type embeddedReloc struct {
	lola.Reloc
	Name string // would fail structural verification, but Reloc short-circuits it
}

func TestVerifyPayloadTypeAcceptsFlatTypes(t *testing.T) {
	require.NotPanics(t, func() { lola.VerifyPayloadType[flatPayload]() })
	require.NotPanics(t, func() { lola.VerifyPayloadType[nestedFlatPayload]() })
	require.NotPanics(t, func() { lola.VerifyPayloadType[uint64]() })
}

func TestVerifyPayloadTypeRejectsPointerBearingTypes(t *testing.T) {
	require.Panics(t, func() { lola.VerifyPayloadType[pointerPayload]() })
}

func TestVerifyPayloadTypeTrustsEmbeddedReloc(t *testing.T) {
	require.NotPanics(t, func() { lola.VerifyPayloadType[embeddedReloc]() })
}
