// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/quorum/cmd/quorumd/run"
	"github.com/luxfi/quorum/cmd/quorumd/version"
)

func main() {
	root := &cobra.Command{
		Use:   "quorumd",
		Short: "Distributed range-verification quorum replica",
	}
	root.AddCommand(
		run.Command(),
		version.Command(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
