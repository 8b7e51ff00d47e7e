// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/utils/wrappers"
)

type nodeMetrics struct {
	published metric.Counter
	merged    metric.Counter
}

func newMetrics(registerer metric.Registerer) (*nodeMetrics, error) {
	m := &nodeMetrics{
		published: metric.NewCounter(metric.CounterOpts{
			Name: "node_snapshots_published",
			Help: "Number of snapshots published to the content store",
		}),
		merged: metric.NewCounter(metric.CounterOpts{
			Name: "node_snapshots_merged",
			Help: "Number of remote snapshots merged",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(metric.AsCollector(m.published)),
		registerer.Register(metric.AsCollector(m.merged)),
	)
	return m, errs.Err
}
