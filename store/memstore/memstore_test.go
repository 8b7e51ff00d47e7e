// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/store"
)

func TestPublishFetchRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()

	id, err := s.Publish(ctx, "topic", []byte("payload"))
	require.NoError(err)

	data, err := s.Fetch(ctx, id)
	require.NoError(err)
	require.Equal([]byte("payload"), data)

	// Content addressing: identical payloads share an ID.
	again, err := s.Publish(ctx, "other", []byte("payload"))
	require.NoError(err)
	require.Equal(id, again)

	_, err = s.Fetch(ctx, ids.GenerateTestID())
	require.ErrorIs(err, store.ErrNotFound)
}

func TestResolveFollowsLatestPointer(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New()

	_, err := s.Resolve(ctx, "topic")
	require.ErrorIs(err, store.ErrNotFound)

	first, err := s.Publish(ctx, "topic", []byte("one"))
	require.NoError(err)
	second, err := s.Publish(ctx, "topic", []byte("two"))
	require.NoError(err)
	require.NotEqual(first, second)

	id, err := s.Resolve(ctx, "topic")
	require.NoError(err)
	require.Equal(second, id)

	// The older blob remains fetchable by ID.
	data, err := s.Fetch(ctx, first)
	require.NoError(err)
	require.Equal([]byte("one"), data)
}

func TestSubscribeStreamsUpdates(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	updates, err := s.Subscribe(ctx, "topic")
	require.NoError(err)

	first, err := s.Publish(ctx, "topic", []byte("one"))
	require.NoError(err)
	require.Equal(first, <-updates)

	second, err := s.Publish(ctx, "topic", []byte("two"))
	require.NoError(err)
	require.Equal(second, <-updates)

	// Other topics don't leak in.
	_, err = s.Publish(ctx, "elsewhere", []byte("three"))
	require.NoError(err)
	select {
	case id := <-updates:
		require.FailNow("unexpected update", "%s", id)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSubscribeSeedsLateJoiner(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	id, err := s.Publish(ctx, "topic", []byte("existing"))
	require.NoError(err)

	updates, err := s.Subscribe(ctx, "topic")
	require.NoError(err)
	require.Equal(id, <-updates)
}

func TestSubscribeCoalescesBursts(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	updates, err := s.Subscribe(ctx, "topic")
	require.NoError(err)

	var last ids.ID
	for _, payload := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		last, err = s.Publish(ctx, "topic", payload)
		require.NoError(err)
	}

	// A slow subscriber skips straight to the newest pointer.
	require.Equal(last, <-updates)
	select {
	case id, ok := <-updates:
		require.True(ok)
		require.FailNow("stale update delivered", "%s", id)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSubscribeEndsWithContext(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := New()

	updates, err := s.Subscribe(ctx, "topic")
	require.NoError(err)

	cancel()
	select {
	case _, ok := <-updates:
		require.False(ok)
	case <-time.After(time.Second):
		require.FailNow("subscription did not close")
	}

	// Publishing afterwards must not panic on the removed channel.
	_, err = s.Publish(context.Background(), "topic", []byte("after"))
	require.NoError(err)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	id, err := s.Publish(ctx, "topic", []byte("data"))
	require.NoError(err)

	sub, err := s.Subscribe(ctx, "topic")
	require.NoError(err)
	require.Equal(id, <-sub)

	s.Close()

	_, ok := <-sub
	require.False(ok)

	_, err = s.Publish(ctx, "topic", []byte("data"))
	require.ErrorIs(err, store.ErrStoreUnavailable)
	_, err = s.Resolve(ctx, "topic")
	require.ErrorIs(err, store.ErrStoreUnavailable)
	_, err = s.Fetch(ctx, id)
	require.ErrorIs(err, store.ErrStoreUnavailable)
	_, err = s.Subscribe(ctx, "topic")
	require.ErrorIs(err, store.ErrStoreUnavailable)
}
