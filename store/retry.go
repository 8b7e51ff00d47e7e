// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// RetryConfig bounds the backoff loop around transient store failures.
type RetryConfig struct {
	// InitialWait is the first backoff; it doubles per attempt up to MaxWait,
	// with up to one extra wait of jitter so replicas don't retry in step.
	InitialWait time.Duration
	MaxWait     time.Duration
	MaxAttempts int
}

// DefaultRetryConfig returns the production backoff parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialWait: 500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		MaxAttempts: 5,
	}
}

type retryStore struct {
	inner Store
	cfg   RetryConfig
	log   log.Logger
}

// WithRetry wraps a store with exponential backoff over failures marked
// ErrStoreUnavailable. Permanent errors and context cancellation pass
// through untouched.
func WithRetry(inner Store, cfg RetryConfig, logger log.Logger) Store {
	def := DefaultRetryConfig()
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = def.InitialWait
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &retryStore{
		inner: inner,
		cfg:   cfg,
		log:   logger,
	}
}

func (r *retryStore) Publish(ctx context.Context, topic string, data []byte) (ids.ID, error) {
	var id ids.ID
	err := r.do(ctx, "publish", func() error {
		var err error
		id, err = r.inner.Publish(ctx, topic, data)
		return err
	})
	return id, err
}

func (r *retryStore) Resolve(ctx context.Context, name string) (ids.ID, error) {
	var id ids.ID
	err := r.do(ctx, "resolve", func() error {
		var err error
		id, err = r.inner.Resolve(ctx, name)
		return err
	})
	return id, err
}

func (r *retryStore) Fetch(ctx context.Context, id ids.ID) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "fetch", func() error {
		var err error
		data, err = r.inner.Fetch(ctx, id)
		return err
	})
	return data, err
}

func (r *retryStore) Subscribe(ctx context.Context, topic string) (<-chan ids.ID, error) {
	var updates <-chan ids.ID
	err := r.do(ctx, "subscribe", func() error {
		var err error
		updates, err = r.inner.Subscribe(ctx, topic)
		return err
	})
	return updates, err
}

// do runs fn with exponential backoff until it succeeds, fails permanently,
// or the attempts run out.
func (r *retryStore) do(ctx context.Context, op string, fn func() error) error {
	wait := r.cfg.InitialWait
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil || !errors.Is(lastErr, ErrStoreUnavailable) {
			return lastErr
		}
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		jittered := wait + time.Duration(rand.Int63n(int64(wait))) //#nosec G404
		r.log.Debug("store unavailable, backing off",
			log.String("op", op),
			log.Int("attempt", attempt+1),
			log.Duration("wait", jittered),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		wait *= 2
		if wait > r.cfg.MaxWait {
			wait = r.cfg.MaxWait
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}
