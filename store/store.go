// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store defines the content store replicas exchange state through:
// immutable content-addressed blobs published under mutable topic names.
// Delivery is at-least-once and eventually consistent; nothing here assumes
// ordering, and replica state must stay valid while the store is down.
package store

import (
	"context"
	"errors"

	"github.com/luxfi/ids"
)

var (
	// ErrStoreUnavailable marks transient failures worth retrying. Anything
	// else is permanent.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound means the blob or name does not exist (yet); the topic may
	// simply not have been published.
	ErrNotFound = errors.New("content not found")
)

// Store publishes and retrieves replica state.
type Store interface {
	// Publish stores data as a content-addressed blob and repoints topic at
	// its ID.
	Publish(ctx context.Context, topic string, data []byte) (ids.ID, error)

	// Resolve returns the content ID the name currently points at.
	Resolve(ctx context.Context, name string) (ids.ID, error)

	// Fetch returns the blob with the given content ID.
	Fetch(ctx context.Context, id ids.ID) ([]byte, error)

	// Subscribe streams content IDs as the topic is repointed. The stream
	// may coalesce bursts to the newest pointer; it is closed when ctx is
	// done.
	Subscribe(ctx context.Context, topic string) (<-chan ids.ID, error)
}
