// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/utils/wrappers"
)

type coordinatorMetrics struct {
	created   metric.Counter
	audits    metric.Counter
	leases    metric.Counter
	extended  metric.Counter
	reaped    metric.Counter
	expired   metric.Counter
	merges    metric.Counter
	frontier  metric.Gauge
	completed metric.Gauge
}

func newMetrics(registerer metric.Registerer) (*coordinatorMetrics, error) {
	m := &coordinatorMetrics{
		created: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_assignments_created",
			Help: "Number of assignments generated from the frontier",
		}),
		audits: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_audits_queued",
			Help: "Number of spot-check assignments queued",
		}),
		leases: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_leases_granted",
			Help: "Number of leases granted",
		}),
		extended: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_leases_extended",
			Help: "Number of leases extended by re-leasing",
		}),
		reaped: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_leases_reaped",
			Help: "Number of expired leases reclaimed",
		}),
		expired: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_assignments_expired",
			Help: "Number of assignments expired and superseded",
		}),
		merges: metric.NewCounter(metric.CounterOpts{
			Name: "coordinator_snapshots_merged",
			Help: "Number of remote snapshots merged",
		}),
		frontier: metric.NewGauge(metric.GaugeOpts{
			Name: "coordinator_frontier",
			Help: "Next unassigned value of the verification frontier",
		}),
		completed: metric.NewGauge(metric.GaugeOpts{
			Name: "coordinator_assignments_completed",
			Help: "Number of assignments with a finalized result",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.created)),
		registerer.Register(metric.AsCollector(m.audits)),
		registerer.Register(metric.AsCollector(m.leases)),
		registerer.Register(metric.AsCollector(m.extended)),
		registerer.Register(metric.AsCollector(m.reaped)),
		registerer.Register(metric.AsCollector(m.expired)),
		registerer.Register(metric.AsCollector(m.merges)),
		registerer.Register(metric.AsCollector(m.frontier)),
		registerer.Register(metric.AsCollector(m.completed)),
	)
	return m, errs.Err
}
