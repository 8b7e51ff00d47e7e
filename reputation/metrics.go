// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reputation

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/utils/wrappers"
)

type ledgerMetrics struct {
	registered metric.Counter
	agreed     metric.Counter
	disagreed  metric.Counter
	reversed   metric.Counter
	banned     metric.Counter
}

func newMetrics(registerer metric.Registerer) (*ledgerMetrics, error) {
	m := &ledgerMetrics{
		registered: metric.NewCounter(metric.CounterOpts{
			Name: "reputation_workers_registered",
			Help: "Number of workers registered in the ledger",
		}),
		agreed: metric.NewCounter(metric.CounterOpts{
			Name: "reputation_verdicts_agreed",
			Help: "Number of agreeing verdicts applied",
		}),
		disagreed: metric.NewCounter(metric.CounterOpts{
			Name: "reputation_verdicts_disagreed",
			Help: "Number of disagreeing verdicts applied",
		}),
		reversed: metric.NewCounter(metric.CounterOpts{
			Name: "reputation_verdicts_reversed",
			Help: "Number of verdicts reversed by spot checks",
		}),
		banned: metric.NewCounter(metric.CounterOpts{
			Name: "reputation_workers_banned",
			Help: "Number of workers banned",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.registered)),
		registerer.Register(metric.AsCollector(m.agreed)),
		registerer.Register(metric.AsCollector(m.disagreed)),
		registerer.Register(metric.AsCollector(m.reversed)),
		registerer.Register(metric.AsCollector(m.banned)),
	)
	return m, errs.Err
}
