// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/utils/wrappers"
)

type workerMetrics struct {
	leased    metric.Counter
	verified  metric.Counter
	submitted metric.Counter
	idle      metric.Counter
}

func newMetrics(registerer metric.Registerer) (*workerMetrics, error) {
	m := &workerMetrics{
		leased: metric.NewCounter(metric.CounterOpts{
			Name: "worker_leases_taken",
			Help: "Number of assignments leased",
		}),
		verified: metric.NewCounter(metric.CounterOpts{
			Name: "worker_values_verified",
			Help: "Number of values run through the verification kernel",
		}),
		submitted: metric.NewCounter(metric.CounterOpts{
			Name: "worker_proofs_submitted",
			Help: "Number of proofs accepted by the coordinator",
		}),
		idle: metric.NewCounter(metric.CounterOpts{
			Name: "worker_idle_waits",
			Help: "Number of times the worker found no work available",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.leased)),
		registerer.Register(metric.AsCollector(m.verified)),
		registerer.Register(metric.AsCollector(m.submitted)),
		registerer.Register(metric.AsCollector(m.idle)),
	)
	return m, errs.Err
}
