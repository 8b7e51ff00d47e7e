// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/database"
)

var keyKey = []byte("worker_key")

// LoadKey returns the worker's signing key from db, generating and
// persisting a fresh one on first use. The worker's network identity is the
// key's address, so the same database always yields the same identity.
func LoadKey(db database.Database) (*secp256k1.PrivateKey, error) {
	keyBytes, err := db.Get(keyKey)
	switch {
	case err == nil:
		key, err := secp256k1.ToPrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse stored worker key: %w", err)
		}
		return key, nil
	case errors.Is(err, database.ErrNotFound):
		key, err := secp256k1.NewPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("couldn't generate worker key: %w", err)
		}
		if err := db.Put(keyKey, key.Bytes()); err != nil {
			return nil, fmt.Errorf("couldn't persist worker key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("couldn't read worker key: %w", err)
	}
}
