// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node runs a coordinator replica: it reaps expired leases, tops up
// the frontier when the backlog runs low, publishes snapshots to the content
// store, and merges snapshots published by other replicas. Replicas share
// nothing but the store; every loop here survives the store being down and
// resumes when it returns.
package node

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/version"

	"github.com/luxfi/quorum/coordinator"
	"github.com/luxfi/quorum/store"
	"github.com/luxfi/quorum/utils/timer/mockable"
)

// Version is the replica software version.
var Version = &version.Semantic{
	Major: 1,
	Minor: 0,
	Patch: 0,
}

// Config parameterizes a replica's maintenance loops.
type Config struct {
	// Topic is the store name snapshots are published under. Every replica
	// of a network uses the same topic.
	Topic string

	// PublishInterval is how often the replica publishes its snapshot.
	PublishInterval time.Duration

	// ReapInterval is how often expired leases are reclaimed.
	ReapInterval time.Duration

	// LowWater is the available-assignment count below which the replica
	// generates more work from the frontier.
	LowWater int

	// BatchCount and RangeSize shape each frontier top-up.
	BatchCount int
	RangeSize  uint64
}

// DefaultConfig returns the production replica parameters.
func DefaultConfig() Config {
	return Config{
		Topic:           "quorum/snapshot",
		PublishInterval: 5 * time.Minute,
		ReapInterval:    time.Minute,
		LowWater:        32,
		BatchCount:      64,
		RangeSize:       1_000_000,
	}
}

// Node drives one coordinator replica's background loops.
type Node struct {
	cfg     Config
	coord   *coordinator.Coordinator
	store   store.Store
	clock   *mockable.Clock
	log     log.Logger
	metrics *nodeMetrics
}

// New returns a replica harness around coord, exchanging snapshots through s.
func New(
	coord *coordinator.Coordinator,
	s store.Store,
	cfg Config,
	clock *mockable.Clock,
	logger log.Logger,
	registerer metric.Registerer,
) (*Node, error) {
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Node{
		cfg:     cfg,
		coord:   coord,
		store:   s,
		clock:   clock,
		log:     logger,
		metrics: metrics,
	}, nil
}

// Run starts the maintenance loops and blocks until ctx is cancelled. The
// loops only ever return the context's error; store failures are logged and
// retried on the next tick.
func (n *Node) Run(ctx context.Context) error {
	// Adopt whatever the network already agreed on before generating or
	// leasing anything locally.
	if err := n.bootstrap(ctx); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return n.reapLoop(ctx) })
	eg.Go(func() error { return n.publishLoop(ctx) })
	eg.Go(func() error { return n.mergeLoop(ctx) })
	return eg.Wait()
}

// bootstrap merges the topic's current snapshot, if one exists. A missing
// topic is a fresh network; an unavailable store is tolerated because the
// merge loop will deliver the snapshot once subscribed.
func (n *Node) bootstrap(ctx context.Context) error {
	id, err := n.store.Resolve(ctx, n.cfg.Topic)
	switch {
	case errors.Is(err, store.ErrNotFound):
		n.log.Info("no published snapshot, starting fresh",
			log.String("topic", n.cfg.Topic),
		)
		return nil
	case errors.Is(err, store.ErrStoreUnavailable):
		n.log.Warn("store unavailable at startup, continuing locally",
			zap.Error(err),
		)
		return nil
	case err != nil:
		return err
	}
	return n.mergeID(ctx, id)
}

func (n *Node) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.ReapOnce()
		}
	}
}

// ReapOnce reclaims expired leases and tops up the frontier if the backlog
// of available assignments has fallen below the low-water mark.
func (n *Node) ReapOnce() {
	reaped, err := n.coord.Reap(n.clock.Time())
	if err != nil {
		n.log.Error("reap failed", zap.Error(err))
		return
	}
	if reaped > 0 {
		n.log.Info("reaped expired leases", log.Int("count", reaped))
	}

	stats := n.coord.Stats()
	if stats.Available >= n.cfg.LowWater {
		return
	}
	if _, err := n.coord.GenerateRange(n.cfg.BatchCount, n.cfg.RangeSize); err != nil {
		n.log.Error("frontier top-up failed", zap.Error(err))
	}
}

func (n *Node) publishLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.PublishOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				n.log.Warn("snapshot publication failed", zap.Error(err))
			}
		}
	}
}

// PublishOnce publishes the replica's current snapshot under the topic.
func (n *Node) PublishOnce(ctx context.Context) error {
	snapshot, err := n.coord.Snapshot()
	if err != nil {
		return err
	}
	bytes, err := snapshot.Bytes()
	if err != nil {
		return err
	}

	id, err := n.store.Publish(ctx, n.cfg.Topic, bytes)
	if err != nil {
		return err
	}
	n.metrics.published.Inc()
	n.log.Debug("published snapshot",
		log.Stringer("content", id),
		log.Int("bytes", len(bytes)),
	)
	return nil
}

// mergeLoop follows the topic and merges every snapshot it points at,
// including our own publications; the merge is idempotent so that is a
// cheap no-op. A dropped subscription is reopened after a short wait.
func (n *Node) mergeLoop(ctx context.Context) error {
	for {
		ch, err := n.store.Subscribe(ctx, n.cfg.Topic)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			n.log.Warn("subscription failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.cfg.ReapInterval):
			}
			continue
		}

		for id := range ch {
			if err := n.mergeID(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
				n.log.Warn("snapshot merge failed",
					log.Stringer("content", id),
					zap.Error(err),
				)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// mergeID fetches and merges one published snapshot.
func (n *Node) mergeID(ctx context.Context, id ids.ID) error {
	bytes, err := n.store.Fetch(ctx, id)
	if err != nil {
		return err
	}
	snapshot, err := coordinator.ParseSnapshot(bytes)
	if err != nil {
		return err
	}
	if err := n.coord.Merge(snapshot); err != nil {
		return err
	}
	n.metrics.merged.Inc()
	n.log.Debug("merged snapshot",
		log.Stringer("content", id),
		log.Int("assignments", len(snapshot.Assignments)),
		log.Int("proofs", len(snapshot.Proofs)),
	)
	return nil
}
