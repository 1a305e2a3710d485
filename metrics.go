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

import "github.com/prometheus/client_golang/prometheus"

// NewMetricsRegistry returns a fresh Prometheus registry suitable for
// RuntimeBuilder.WithMetrics, pre-populated with the standard process and
// Go runtime collectors (SPEC_FULL §1.3, grounded: grafana-tempo,
// adred-codev-ws_poc).
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())
	return reg
}

// offeredInstancesGaugeVec tracks the number of currently-offered
// instances in this process, one package-level gauge vector labeled by
// interface id (SPEC_FULL §1.3: "a gauge of offered instances").
var offeredInstancesGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "lola",
	Name:      "offered_instances",
	Help:      "Number of service instances currently offered by this process.",
}, []string{"interface"})

// RegisterRuntimeGauges registers the process-wide offered-instances gauge
// on reg. Safe to call once per registry.
func RegisterRuntimeGauges(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	return reg.Register(offeredInstancesGaugeVec)
}
