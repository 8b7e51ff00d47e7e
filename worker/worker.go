// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package worker runs the verification loop: lease an assignment, run the
// kernel over its range, sign the result, submit the proof. A worker is a
// client of the coordinator, not part of it; its only state is the signing
// key that carries its identity and accumulated reputation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/coordinator"
	"github.com/luxfi/quorum/proof"
	"github.com/luxfi/quorum/resolver"
	"github.com/luxfi/quorum/utils/timer/mockable"
	"github.com/luxfi/quorum/verify"
)

// maxBackoff bounds the wait after consecutive cycle failures.
const maxBackoff = 30 * time.Second

// Source hands out assignments and accepts the proofs for them. It is
// implemented by the coordinator.
type Source interface {
	Lease(worker ids.ShortID, now time.Time) (*coordinator.Assignment, error)
	Submit(p *proof.Proof, now time.Time) (*resolver.Record, resolver.Action, error)
}

var _ Source = (*coordinator.Coordinator)(nil)

// Config parameterizes a worker's verification loop.
type Config struct {
	// Verify is the kernel configuration proofs commit to. It must match
	// the network's configuration or every proof will fail validation.
	Verify verify.Config

	// NoWorkWait is how long the worker sleeps after finding no leasable
	// assignment.
	NoWorkWait time.Duration
}

// DefaultConfig returns the production worker parameters.
func DefaultConfig() Config {
	return Config{
		Verify:     verify.DefaultConfig(),
		NoWorkWait: 15 * time.Second,
	}
}

// Worker leases ranges, verifies them, and submits signed proofs until its
// context is cancelled.
type Worker struct {
	key     *secp256k1.PrivateKey
	source  Source
	verify  verify.Func
	cfg     Config
	digest  ids.ID
	clock   *mockable.Clock
	log     log.Logger
	metrics *workerMetrics
}

// New returns a worker that submits proofs signed by key to source, running
// fn over each leased range.
func New(
	key *secp256k1.PrivateKey,
	source Source,
	fn verify.Func,
	cfg Config,
	clock *mockable.Clock,
	logger log.Logger,
	registerer metric.Registerer,
) (*Worker, error) {
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Worker{
		key:     key,
		source:  source,
		verify:  fn,
		cfg:     cfg,
		digest:  cfg.Verify.Digest(),
		clock:   clock,
		log:     logger,
		metrics: metrics,
	}, nil
}

// Address returns the worker's network identity, derived from its signing
// key.
func (w *Worker) Address() ids.ShortID {
	return w.key.Address()
}

// Run drives the lease-verify-submit loop until ctx is cancelled or the
// worker is banned. Transient failures back off and retry; they never stop
// the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting",
		log.Stringer("worker", w.Address()),
	)

	consecutiveErrors := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.step(ctx)
		switch {
		case err == nil:
			consecutiveErrors = 0
			continue
		case errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, coordinator.ErrWorkerBanned):
			w.log.Error("worker banned, stopping",
				log.Stringer("worker", w.Address()),
			)
			return err
		}

		consecutiveErrors++
		if consecutiveErrors <= 5 {
			w.log.Error("work cycle failed",
				zap.Error(err),
				log.Int("consecutiveErrors", consecutiveErrors),
			)
		}
		backoff := time.Duration(math.Min(
			float64(time.Second)*float64(consecutiveErrors*consecutiveErrors),
			float64(maxBackoff),
		))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// step performs one lease-verify-submit cycle. A nil return means the cycle
// either completed or found nothing to do.
func (w *Worker) step(ctx context.Context) error {
	a, err := w.source.Lease(w.Address(), w.clock.Time())
	switch {
	case errors.Is(err, coordinator.ErrNoWorkAvailable):
		w.metrics.idle.Inc()
		w.log.Debug("no work available",
			log.Duration("wait", w.cfg.NoWorkWait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.NoWorkWait):
			return nil
		}
	case err != nil:
		return err
	}

	w.metrics.leased.Inc()
	w.log.Debug("leased assignment",
		log.Stringer("assignment", a.ID),
		log.Uint64("rangeStart", a.RangeStart),
		log.Uint64("rangeEnd", a.RangeEnd),
	)

	// Assignments cover [RangeStart, RangeEnd); the kernel takes an
	// inclusive upper bound.
	result, err := w.verify(ctx, a.RangeStart, a.RangeEnd-1, w.cfg.Verify)
	if err != nil {
		return fmt.Errorf("verification of [%d, %d) failed: %w",
			a.RangeStart, a.RangeEnd, err)
	}
	w.metrics.verified.Add(float64(a.RangeEnd - a.RangeStart))

	p, err := proof.Build(
		w.key,
		a.ID,
		a.RangeStart,
		a.RangeEnd,
		w.digest,
		result,
		w.clock.Time(),
	)
	if err != nil {
		return fmt.Errorf("couldn't build proof for assignment %s: %w", a.ID, err)
	}

	_, action, err := w.source.Submit(p, w.clock.Time())
	switch {
	case errors.Is(err, resolver.ErrConsensusConflict),
		errors.Is(err, resolver.ErrUnresolvable):
		// An escalation, not a failure: the proof was counted, the
		// assignment just disagrees with someone. Adjudication is the
		// coordinator's problem.
		w.metrics.submitted.Inc()
		w.log.Info("submitted proof into a disputed assignment",
			log.Stringer("assignment", a.ID),
			log.Stringer("proof", p.ID()),
		)
		return nil
	case errors.Is(err, coordinator.ErrWorkerExcluded):
		// The assignment became an audit of our own work while we held the
		// lease. Drop the proof; the lease expires on its own.
		w.log.Info("proof rejected after exclusion",
			log.Stringer("assignment", a.ID),
		)
		return nil
	case err != nil:
		return fmt.Errorf("couldn't submit proof %s: %w", p.ID(), err)
	}

	w.metrics.submitted.Inc()
	w.log.Info("submitted proof",
		log.Stringer("assignment", a.ID),
		log.Stringer("proof", p.ID()),
		log.Stringer("action", action),
		log.String("result", result.Key()),
	)
	return nil
}
