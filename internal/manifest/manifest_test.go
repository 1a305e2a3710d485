package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola/internal/manifest"
)

const sampleManifest = `
instances:
  - interface_id: com.example.Tires
    instance_specifier: /My/Funk/ServiceName
    region_name: tires
    events:
      left_tire:
        slot_count: 3
        max_subscribers: 1
      right_tire:
        slot_count: 3
        max_subscribers: 2
        lossy: true
`

func TestParseManifest(t *testing.T) {
	desc, err := manifest.Parse([]byte(sampleManifest))
	require.NoError(t, err)

	params, ok := desc.Lookup("com.example.Tires", "/My/Funk/ServiceName", "left_tire")
	require.True(t, ok)
	require.Equal(t, uint32(3), params.SlotCount)
	require.False(t, params.Lossy)

	params, ok = desc.Lookup("com.example.Tires", "/My/Funk/ServiceName", "right_tire")
	require.True(t, ok)
	require.True(t, params.Lossy)
}

func TestParseManifestRejectsInvalidSlotParams(t *testing.T) {
	_, err := manifest.Parse([]byte(`
instances:
  - interface_id: com.example.Tires
    instance_specifier: /My/Funk/ServiceName
    region_name: tires
    events:
      left_tire:
        slot_count: 0
        max_subscribers: 1
`))
	require.Error(t, err)
}
