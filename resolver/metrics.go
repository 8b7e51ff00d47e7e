// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/utils/wrappers"
)

type resolverMetrics struct {
	ingested     metric.Counter
	ignored      metric.Counter
	duplicate    metric.Counter
	invalid      metric.Counter
	finalized    metric.Counter
	conflicts    metric.Counter
	reopened     metric.Counter
	unresolvable metric.Counter
	spotChecks   metric.Counter
}

func newMetrics(registerer metric.Registerer) (*resolverMetrics, error) {
	m := &resolverMetrics{
		ingested: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_proofs_ingested",
			Help: "Number of proofs counted toward a quorum",
		}),
		ignored: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_proofs_ignored",
			Help: "Number of proofs discarded from banned workers or settled assignments",
		}),
		duplicate: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_proofs_duplicate",
			Help: "Number of proofs discarded as duplicates",
		}),
		invalid: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_proofs_invalid",
			Help: "Number of proofs discarded by validation",
		}),
		finalized: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_assignments_finalized",
			Help: "Number of assignments finalized by quorum or adjudication",
		}),
		conflicts: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_conflicts",
			Help: "Number of conflicts declared, including tie-break escalations",
		}),
		reopened: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_assignments_reopened",
			Help: "Number of finalized assignments reopened by a contradicting audit",
		}),
		unresolvable: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_assignments_unresolvable",
			Help: "Number of assignments left for administrative resolution",
		}),
		spotChecks: metric.NewCounter(metric.CounterOpts{
			Name: "resolver_spot_checks_sampled",
			Help: "Number of finalized assignments sampled for audit",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.ingested)),
		registerer.Register(metric.AsCollector(m.ignored)),
		registerer.Register(metric.AsCollector(m.duplicate)),
		registerer.Register(metric.AsCollector(m.invalid)),
		registerer.Register(metric.AsCollector(m.finalized)),
		registerer.Register(metric.AsCollector(m.conflicts)),
		registerer.Register(metric.AsCollector(m.reopened)),
		registerer.Register(metric.AsCollector(m.unresolvable)),
		registerer.Register(metric.AsCollector(m.spotChecks)),
	)
	return m, errs.Err
}
