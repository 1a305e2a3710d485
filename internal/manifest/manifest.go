// Package manifest loads the YAML deployment manifest into the core's
// config.Descriptor value record. Manifest parsing is explicitly outside
// the slot-engine core (spec §4.C: "Parsing and validation live outside
// the core") but the repo still ships this loader as a collaborator
// package, grounded on grafana-tempo's and adred-codev-ws_poc's YAML
// config-file conventions.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ferrox-auto/lola/internal/config"
)

// Document is the on-disk shape of a manifest file.
type Document struct {
	Instances []InstanceDocument `yaml:"instances"`
}

// InstanceDocument is one offered-service-instance entry in the manifest.
type InstanceDocument struct {
	InterfaceID       string                  `yaml:"interface_id"`
	InstanceSpecifier string                  `yaml:"instance_specifier"`
	RegionName        string                  `yaml:"region_name"`
	Events            map[string]EventDocument `yaml:"events"`
}

// EventDocument is one event's slot parameters in the manifest.
type EventDocument struct {
	SlotCount      uint32 `yaml:"slot_count"`
	MaxSubscribers uint32 `yaml:"max_subscribers"`
	Lossy          bool   `yaml:"lossy"`
	DualControl    bool   `yaml:"dual_control"`
}

// Load reads and parses a YAML manifest at path, then builds a validated
// config.Descriptor from it.
func Load(path string) (*config.Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a config.Descriptor from raw YAML bytes.
func Parse(raw []byte) (*config.Descriptor, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}

	instances := make([]config.ServiceInstance, 0, len(doc.Instances))
	for _, id := range doc.Instances {
		events := make(map[string]config.SlotParams, len(id.Events))
		for name, ed := range id.Events {
			events[name] = config.SlotParams{
				SlotCount:      ed.SlotCount,
				MaxSubscribers: ed.MaxSubscribers,
				Lossy:          ed.Lossy,
				DualControl:    ed.DualControl,
			}
		}
		instances = append(instances, config.ServiceInstance{
			InterfaceID:       id.InterfaceID,
			InstanceSpecifier: id.InstanceSpecifier,
			RegionName:        id.RegionName,
			Events:            events,
		})
	}

	return config.NewDescriptor(instances)
}
