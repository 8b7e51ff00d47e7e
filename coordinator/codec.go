// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"

	"github.com/luxfi/quorum/utils/wrappers"
)

const CodecVersion = 0

// Codec serializes assignments for the coordinator database and snapshots
// for replica exchange.
var Codec codec.Manager

func init() {
	lc := linearcodec.NewDefault()

	errs := wrappers.Errs{}
	errs.Add(
		lc.RegisterType(&Assignment{}),
		lc.RegisterType(&Snapshot{}),
	)
	if errs.Errored() {
		panic(errs.Err)
	}

	Codec = codec.NewDefaultManager()
	if err := Codec.RegisterCodec(CodecVersion, lc); err != nil {
		panic(err)
	}
}
