package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrox-auto/lola/internal/config"
)

func TestSlotParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  config.SlotParams
		wantErr bool
	}{
		{"valid", config.SlotParams{SlotCount: 3, MaxSubscribers: 1}, false},
		{"zero slot count", config.SlotParams{SlotCount: 0, MaxSubscribers: 1}, true},
		{"zero max subscribers", config.SlotParams{SlotCount: 3, MaxSubscribers: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewDescriptorRejectsDuplicateInstances(t *testing.T) {
	inst := config.ServiceInstance{
		InterfaceID:       "com.example.Tires",
		InstanceSpecifier: "/My/Funk/ServiceName",
		RegionName:        "tires",
		Events:            map[string]config.SlotParams{"left_tire": {SlotCount: 3, MaxSubscribers: 1}},
	}
	_, err := config.NewDescriptor([]config.ServiceInstance{inst, inst})
	require.Error(t, err)
}

func TestDescriptorLookup(t *testing.T) {
	desc, err := config.NewDescriptor([]config.ServiceInstance{{
		InterfaceID:       "com.example.Tires",
		InstanceSpecifier: "/My/Funk/ServiceName",
		RegionName:        "tires",
		Events: map[string]config.SlotParams{
			"left_tire": {SlotCount: 3, MaxSubscribers: 1},
		},
	}})
	require.NoError(t, err)

	params, ok := desc.Lookup("com.example.Tires", "/My/Funk/ServiceName", "left_tire")
	require.True(t, ok)
	require.Equal(t, uint32(3), params.SlotCount)

	_, ok = desc.Lookup("com.example.Tires", "/My/Funk/ServiceName", "right_tire")
	require.False(t, ok)

	_, ok = desc.Lookup("com.example.Other", "/My/Funk/ServiceName", "left_tire")
	require.False(t, ok)
}

func TestNilDescriptorLookupIsSafe(t *testing.T) {
	var desc *config.Descriptor
	_, ok := desc.Lookup("x", "y", "z")
	require.False(t, ok)
	require.Nil(t, desc.Instances())
}
