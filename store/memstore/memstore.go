// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package memstore provides an in-process content store: SHA-256 addressed
// blobs, mutable name pointers, and fan-out update notifications. It backs
// tests and single-process runs.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store in memory. Safe for concurrent use.
type Store struct {
	lock   sync.RWMutex
	blobs  map[ids.ID][]byte
	names  map[string]ids.ID
	subs   map[string][]chan ids.ID
	closed bool
}

func New() *Store {
	return &Store{
		blobs: make(map[ids.ID][]byte),
		names: make(map[string]ids.ID),
		subs:  make(map[string][]chan ids.ID),
	}
}

// Close marks the store unavailable and tears down every subscription.
// Further calls fail with store.ErrStoreUnavailable, which makes a closed
// memstore a stand-in for an unreachable remote one.
func (s *Store) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, chans := range s.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	s.subs = make(map[string][]chan ids.ID)
}

func (s *Store) Publish(ctx context.Context, topic string, data []byte) (ids.ID, error) {
	if err := ctx.Err(); err != nil {
		return ids.Empty, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ids.Empty, store.ErrStoreUnavailable
	}

	id := ids.ID(hash.ComputeHash256Array(data))
	s.blobs[id] = slices.Clone(data)
	s.names[topic] = id

	// Non-blocking fan-out: a subscriber that hasn't drained its last
	// pointer gets this one instead. Names are pointers to the newest
	// snapshot, so coalescing loses nothing.
	for _, ch := range s.subs[topic] {
		select {
		case ch <- id:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		ch <- id
	}
	return id, nil
}

func (s *Store) Resolve(ctx context.Context, name string) (ids.ID, error) {
	if err := ctx.Err(); err != nil {
		return ids.Empty, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ids.Empty, store.ErrStoreUnavailable
	}

	id, ok := s.names[name]
	if !ok {
		return ids.Empty, store.ErrNotFound
	}
	return id, nil
}

func (s *Store) Fetch(ctx context.Context, id ids.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, store.ErrStoreUnavailable
	}

	data, ok := s.blobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *Store) Subscribe(ctx context.Context, topic string) (<-chan ids.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil, store.ErrStoreUnavailable
	}

	ch := make(chan ids.ID, 1)
	s.subs[topic] = append(s.subs[topic], ch)
	if id, ok := s.names[topic]; ok {
		// Seed late joiners with the current pointer.
		ch <- id
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()

		s.lock.Lock()
		defer s.lock.Unlock()
		if s.closed {
			// Close already tore the channel down.
			return
		}
		chans := s.subs[topic]
		for i, c := range chans {
			if c == ch {
				s.subs[topic] = slices.Delete(chans, i, i+1)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}
