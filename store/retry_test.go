// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// flakyStore fails every call with failures' head error until it runs out,
// then succeeds.
type flakyStore struct {
	failures []error
	calls    int
	id       ids.ID
}

func (f *flakyStore) next() error {
	f.calls++
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func (f *flakyStore) Publish(context.Context, string, []byte) (ids.ID, error) {
	return f.id, f.next()
}

func (f *flakyStore) Resolve(context.Context, string) (ids.ID, error) {
	return f.id, f.next()
}

func (f *flakyStore) Fetch(context.Context, ids.ID) ([]byte, error) {
	return []byte("blob"), f.next()
}

func (f *flakyStore) Subscribe(context.Context, string) (<-chan ids.ID, error) {
	return nil, f.next()
}

func testRetryConfig() RetryConfig {
	return RetryConfig{
		InitialWait: time.Millisecond,
		MaxWait:     4 * time.Millisecond,
		MaxAttempts: 4,
	}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	require := require.New(t)

	inner := &flakyStore{
		failures: []error{ErrStoreUnavailable, ErrStoreUnavailable},
		id:       ids.GenerateTestID(),
	}
	s := WithRetry(inner, testRetryConfig(), log.NoLog{})

	id, err := s.Publish(context.Background(), "topic", []byte("data"))
	require.NoError(err)
	require.Equal(inner.id, id)
	require.Equal(3, inner.calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	require := require.New(t)

	inner := &flakyStore{
		failures: []error{
			ErrStoreUnavailable,
			ErrStoreUnavailable,
			ErrStoreUnavailable,
			ErrStoreUnavailable,
			ErrStoreUnavailable,
		},
	}
	s := WithRetry(inner, testRetryConfig(), log.NoLog{})

	_, err := s.Resolve(context.Background(), "topic")
	require.ErrorIs(err, ErrStoreUnavailable)
	require.Equal(4, inner.calls)
}

func TestRetryPassesPermanentErrorsThrough(t *testing.T) {
	require := require.New(t)

	inner := &flakyStore{failures: []error{ErrNotFound}}
	s := WithRetry(inner, testRetryConfig(), log.NoLog{})

	_, err := s.Fetch(context.Background(), ids.GenerateTestID())
	require.ErrorIs(err, ErrNotFound)
	require.Equal(1, inner.calls)
}

func TestRetryHonorsContext(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyStore{failures: []error{ErrStoreUnavailable}}
	s := WithRetry(inner, testRetryConfig(), log.NoLog{})

	_, err := s.Subscribe(ctx, "topic")
	require.ErrorIs(err, context.Canceled)
	require.Zero(inner.calls)
}
