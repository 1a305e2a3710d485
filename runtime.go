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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ferrox-auto/lola/internal/config"
	"github.com/ferrox-auto/lola/internal/discovery"
	"github.com/ferrox-auto/lola/internal/manifest"
	"github.com/ferrox-auto/lola/internal/mockbinding"
	"github.com/ferrox-auto/lola/internal/shm"
	"github.com/ferrox-auto/lola/internal/slotengine"
)

// processRuntimeExists guards spec §4.J's "creating two runtimes in one
// process is undefined — implementations may either coalesce or refuse":
// this implementation refuses.
var (
	processRuntimeMu     sync.Mutex
	processRuntimeExists bool
)

// RuntimeBuilder configures and constructs a Runtime (spec §4.J): manifest
// path, binding choice, and (implicitly) process identity used to key
// transaction logs, plus optional metrics and logger settings.
type RuntimeBuilder struct {
	manifestPath string
	binding      Binding
	metrics      prometheus.Registerer
	logger       zerolog.Logger
	env          manifest.RuntimeEnv
	envLoaded    bool
}

// NewRuntimeBuilder starts a builder with the shared-memory binding and no
// manifest configured.
func NewRuntimeBuilder() *RuntimeBuilder {
	return &RuntimeBuilder{binding: BindingSharedMemory, logger: log.Logger}
}

// ManifestPath sets the path to the service-instance configuration file
// the internal/manifest loader will parse (spec §4.J "manifest_path").
func (b *RuntimeBuilder) ManifestPath(path string) *RuntimeBuilder {
	b.manifestPath = path
	return b
}

// WithBinding selects shared-memory or mock (spec §4.J "binding").
func (b *RuntimeBuilder) WithBinding(binding Binding) *RuntimeBuilder {
	b.binding = binding
	return b
}

// WithMetrics registers the runtime's optional Prometheus instrumentation
// on reg (SPEC_FULL §1.3). Passing nil disables metrics.
func (b *RuntimeBuilder) WithMetrics(reg prometheus.Registerer) *RuntimeBuilder {
	b.metrics = reg
	return b
}

// WithLogger overrides the zerolog logger used for runtime diagnostics
// (SPEC_FULL §1.1).
func (b *RuntimeBuilder) WithLogger(logger zerolog.Logger) *RuntimeBuilder {
	b.logger = logger
	return b
}

// Create builds the Runtime, reading the manifest (if any) and process
// environment overrides exactly once (SPEC_FULL §1.2).
func (b *RuntimeBuilder) Create() (*Runtime, error) {
	processRuntimeMu.Lock()
	defer processRuntimeMu.Unlock()
	if processRuntimeExists {
		return nil, ErrRuntimeExists
	}

	env, err := manifest.LoadRuntimeEnv()
	if err != nil {
		return nil, WrapError("RuntimeBuilder.Create", err)
	}

	var desc *config.Descriptor
	if b.manifestPath != "" {
		desc, err = manifest.Load(b.manifestPath)
		if err != nil {
			return nil, WrapError("RuntimeBuilder.Create", err)
		}
	} else {
		desc, _ = config.NewDescriptor(nil)
	}

	regionMgr, err := shm.NewManager(env.BaseDir)
	if err != nil {
		return nil, WrapError("RuntimeBuilder.Create", err)
	}
	regionMgr.WithLogger(b.logger)

	registry := discovery.NewRegistry(env.BaseDir, env.DiscoverySegmentCapacity, b.logger)

	rt := &Runtime{
		binding:     b.binding,
		config:      desc,
		regionMgr:   regionMgr,
		registry:    registry,
		metrics:     b.metrics,
		logger:      b.logger,
		env:         env,
		smBuffers:   make(map[string]*slotengine.EventBuffer),
		mockBuffers: make(map[string]*mockbinding.EventBuffer),
	}
	rt.liveness = newLiveness(env.LivenessPollInterval).WithLogger(b.logger)
	if err := RegisterRuntimeGauges(rt.metrics); err != nil {
		rt.logger.Warn().Err(err).Msg("runtime gauges not registered")
	}

	processRuntimeExists = true
	return rt, nil
}

// Runtime is the process-wide facade (spec §4.J): not clonable, created
// once per process, exposing find_service and producer_builder.
type Runtime struct {
	binding   Binding
	config    *config.Descriptor
	regionMgr *shm.Manager
	registry  *discovery.Registry
	metrics   prometheus.Registerer
	logger    zerolog.Logger
	env       manifest.RuntimeEnv
	liveness  *Liveness

	mu          sync.Mutex
	smBuffers   map[string]*slotengine.EventBuffer
	mockBuffers map[string]*mockbinding.EventBuffer

	closed bool
}

// FindService returns a cheap, thread-safe discovery facade for
// interfaceID (spec §4.J: "find_service<I>(spec) -> ServiceDiscovery").
func (rt *Runtime) FindService(interfaceID InterfaceID) ServiceDiscovery {
	return ServiceDiscovery{rt: rt, interfaceID: interfaceID}
}

// ProducerBuilder returns a builder for a not-yet-offered producer of
// interfaceID/instanceSpecifier (spec §4.J: "producer_builder<I>(spec) ->
// ProducerBuilder").
func (rt *Runtime) ProducerBuilder(interfaceID InterfaceID, instanceSpecifier InstanceSpecifier) *ProducerBuilder {
	return &ProducerBuilder{rt: rt, interfaceID: interfaceID, instanceSpecifier: instanceSpecifier}
}

// Close stops the liveness oracle, releases the runtime's discovery
// segments, and frees the process-runtime singleton slot. The
// shared-memory event regions it opened are not closed: they stay mapped
// and their backing files are not removed. Implements io.Closer.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	rt.liveness.Close()
	err := rt.registry.Close()

	processRuntimeMu.Lock()
	processRuntimeExists = false
	processRuntimeMu.Unlock()
	return err
}

func eventKey(interfaceID InterfaceID, instanceSpecifier InstanceSpecifier, eventID string) string {
	return fmt.Sprintf("%s/%s/%s", interfaceID, instanceSpecifier.String(), eventID)
}

// regionNameFor derives the per-event shared-memory region's backing file
// name. One region per (instance, event) rather than one combined region
// per instance: this keeps each region's layout computable purely from
// that one event's own slot parameters and payload type, without needing
// every event of an instance to share a single producer-determined type
// registration order (documented simplification, see DESIGN.md).
func regionNameFor(inst config.ServiceInstance, eventID string) string {
	return fmt.Sprintf("%s.%s", inst.RegionName, eventID)
}

// sharedEventBuffer opens (creating if necessary) the shared-memory event
// buffer for one event, given the payload type's size and alignment.
func (rt *Runtime) sharedEventBuffer(interfaceID InterfaceID, instanceSpecifier InstanceSpecifier, eventID string, payloadSize, payloadAlign uint32) (*slotengine.EventBuffer, config.SlotParams, error) {
	params, ok := rt.config.Lookup(string(interfaceID), instanceSpecifier.String(), eventID)
	if !ok {
		return nil, config.SlotParams{}, fmt.Errorf("lola: no configuration for %s/%s/%s", interfaceID, instanceSpecifier, eventID)
	}
	inst, ok := rt.config.Instance(string(interfaceID), instanceSpecifier.String())
	if !ok {
		return nil, config.SlotParams{}, fmt.Errorf("lola: no instance record for %s/%s", interfaceID, instanceSpecifier)
	}

	key := eventKey(interfaceID, instanceSpecifier, eventID)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if eb, ok := rt.smBuffers[key]; ok {
		return eb, params, nil
	}

	builder := shm.NewLayoutBuilder()
	layout, err := builder.AddEvent(eventID, params.SlotCount, params.MaxSubscribers, payloadSize, payloadAlign, params.SlotCount, params.DualControl)
	if err != nil {
		return nil, config.SlotParams{}, WrapError("sharedEventBuffer", err)
	}
	region, err := rt.regionMgr.OpenOrCreate(regionNameFor(inst, eventID), builder.Build(), string(interfaceID))
	if err != nil {
		return nil, config.SlotParams{}, WrapError("sharedEventBuffer", err)
	}

	var metrics *slotengine.Metrics
	if rt.metrics != nil {
		metrics = slotengine.NewMetrics(rt.metrics, string(interfaceID), instanceSpecifier.String(), eventID)
	}
	eb := slotengine.New(region, layout, params.Lossy, metrics)
	rt.smBuffers[key] = eb
	return eb, params, nil
}

func (rt *Runtime) mockEventBuffer(interfaceID InterfaceID, instanceSpecifier InstanceSpecifier, eventID string) (*mockbinding.EventBuffer, config.SlotParams, error) {
	params, ok := rt.config.Lookup(string(interfaceID), instanceSpecifier.String(), eventID)
	if !ok {
		return nil, config.SlotParams{}, fmt.Errorf("lola: no configuration for %s/%s/%s", interfaceID, instanceSpecifier, eventID)
	}

	key := eventKey(interfaceID, instanceSpecifier, eventID)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if eb, ok := rt.mockBuffers[key]; ok {
		return eb, params, nil
	}
	eb := mockbinding.New(int(params.SlotCount), params.Lossy)
	rt.mockBuffers[key] = eb
	return eb, params, nil
}
