// Package config defines the configuration descriptor the core consumes
// (spec §4.C). Parsing and validation of on-disk manifests live outside
// this package, in internal/manifest; config only models the parsed
// result and the lookup the core is allowed to perform on it.
package config

import "fmt"

// QoSClass distinguishes the two integrity levels a slot engine can carry
// side by side (spec §4.E.6).
type QoSClass int

const (
	// QoSClassNone marks a service with no QoS split: a single control block
	// covers the event.
	QoSClassNone QoSClass = iota
	QoSClassQM
	QoSClassASILB
)

func (c QoSClass) String() string {
	switch c {
	case QoSClassQM:
		return "QM"
	case QoSClassASILB:
		return "ASIL-B"
	default:
		return "None"
	}
}

// SlotParams are the per-event runtime parameters a manifest supplies
// (spec §3 "Event buffer", §4.C).
type SlotParams struct {
	// SlotCount is the ring capacity for this event.
	SlotCount uint32
	// MaxSubscribers bounds the number of transaction logs reserved beyond
	// the producer's own (spec §3 "Transaction log").
	MaxSubscribers uint32
	// Lossy selects the steal-oldest-Ready-slot overflow behavior of
	// spec §4.E.4 instead of AllocateFailed backpressure.
	Lossy bool
	// DualControl enables the QM/ASIL-B parallel control blocks of §4.E.6.
	DualControl bool
}

// Validate rejects parameter combinations the slot engine cannot serve.
func (p SlotParams) Validate() error {
	if p.SlotCount == 0 {
		return fmt.Errorf("config: slot count must be > 0")
	}
	if p.MaxSubscribers == 0 {
		return fmt.Errorf("config: max subscribers must be > 0")
	}
	return nil
}

// EventConfig is one event's configuration within a service instance.
type EventConfig struct {
	EventID string
	Params  SlotParams
}

// ServiceInstance is one offered instance's configuration, keyed by
// (interface id, instance specifier) at the Descriptor level.
type ServiceInstance struct {
	InterfaceID       string
	InstanceSpecifier string
	RegionName        string
	Events            map[string]SlotParams
}

// Descriptor is the immutable record handed to the runtime at startup
// (spec §4.C, §6 "Runtime configuration input"). It is produced by an
// external loader (internal/manifest) and never mutated by the core.
type Descriptor struct {
	instances map[string]ServiceInstance // key: interfaceID + "\x00" + instanceSpecifier
}

// NewDescriptor builds a Descriptor from a flat list of service instances.
// Duplicate (interfaceID, instanceSpecifier) pairs are rejected.
func NewDescriptor(instances []ServiceInstance) (*Descriptor, error) {
	d := &Descriptor{instances: make(map[string]ServiceInstance, len(instances))}
	for _, inst := range instances {
		key := descriptorKey(inst.InterfaceID, inst.InstanceSpecifier)
		if _, exists := d.instances[key]; exists {
			return nil, fmt.Errorf("config: duplicate instance %s/%s", inst.InterfaceID, inst.InstanceSpecifier)
		}
		for eventID, params := range inst.Events {
			if err := params.Validate(); err != nil {
				return nil, fmt.Errorf("config: instance %s event %s: %w", inst.InstanceSpecifier, eventID, err)
			}
		}
		d.instances[key] = inst
	}
	return d, nil
}

// Lookup implements the core's sole read path into configuration:
// config(instance_specifier, event_id) -> SlotParams (spec §4.C).
func (d *Descriptor) Lookup(interfaceID, instanceSpecifier, eventID string) (SlotParams, bool) {
	if d == nil {
		return SlotParams{}, false
	}
	inst, ok := d.instances[descriptorKey(interfaceID, instanceSpecifier)]
	if !ok {
		return SlotParams{}, false
	}
	params, ok := inst.Events[eventID]
	return params, ok
}

// Instance returns the full instance record, used by the region manager to
// learn the region name and by discovery to learn what to advertise.
func (d *Descriptor) Instance(interfaceID, instanceSpecifier string) (ServiceInstance, bool) {
	if d == nil {
		return ServiceInstance{}, false
	}
	inst, ok := d.instances[descriptorKey(interfaceID, instanceSpecifier)]
	return inst, ok
}

// Instances returns every configured service instance, in no particular
// order.
func (d *Descriptor) Instances() []ServiceInstance {
	if d == nil {
		return nil
	}
	out := make([]ServiceInstance, 0, len(d.instances))
	for _, inst := range d.instances {
		out = append(out, inst)
	}
	return out
}

func descriptorKey(interfaceID, instanceSpecifier string) string {
	return interfaceID + "\x00" + instanceSpecifier
}
