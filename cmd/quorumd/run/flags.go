// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/luxfi/quorum/node"
)

const (
	DBDirKey           = "db-dir"
	TopicKey           = "topic"
	WorkerKey          = "worker"
	MetricsAddrKey     = "metrics-addr"
	PublishIntervalKey = "publish-interval"
	ReapIntervalKey    = "reap-interval"
	LowWaterKey        = "low-water"
	BatchCountKey      = "batch-count"
	RangeSizeKey       = "range-size"
)

func AddFlags(flags *pflag.FlagSet) {
	defaults := node.DefaultConfig()
	flags.String(DBDirKey, "", "Database directory; empty runs in memory")
	flags.String(TopicKey, defaults.Topic, "Content store topic snapshots are exchanged under")
	flags.Bool(WorkerKey, false, "Run a verification worker alongside the replica")
	flags.String(MetricsAddrKey, "", "Address to serve Prometheus metrics on; empty disables")
	flags.Duration(PublishIntervalKey, defaults.PublishInterval, "How often to publish snapshots")
	flags.Duration(ReapIntervalKey, defaults.ReapInterval, "How often to reclaim expired leases")
	flags.Int(LowWaterKey, defaults.LowWater, "Available-assignment count that triggers frontier top-up")
	flags.Int(BatchCountKey, defaults.BatchCount, "Assignments generated per frontier top-up")
	flags.Uint64(RangeSizeKey, defaults.RangeSize, "Values covered by each generated assignment")
}

type Config struct {
	DBDir           string
	Topic           string
	Worker          bool
	MetricsAddr     string
	PublishInterval time.Duration
	ReapInterval    time.Duration
	LowWater        int
	BatchCount      int
	RangeSize       uint64
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	dbDir, err := flags.GetString(DBDirKey)
	if err != nil {
		return nil, err
	}

	topic, err := flags.GetString(TopicKey)
	if err != nil {
		return nil, err
	}

	worker, err := flags.GetBool(WorkerKey)
	if err != nil {
		return nil, err
	}

	metricsAddr, err := flags.GetString(MetricsAddrKey)
	if err != nil {
		return nil, err
	}

	publishInterval, err := flags.GetDuration(PublishIntervalKey)
	if err != nil {
		return nil, err
	}

	reapInterval, err := flags.GetDuration(ReapIntervalKey)
	if err != nil {
		return nil, err
	}

	lowWater, err := flags.GetInt(LowWaterKey)
	if err != nil {
		return nil, err
	}

	batchCount, err := flags.GetInt(BatchCountKey)
	if err != nil {
		return nil, err
	}

	rangeSize, err := flags.GetUint64(RangeSizeKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBDir:           dbDir,
		Topic:           topic,
		Worker:          worker,
		MetricsAddr:     metricsAddr,
		PublishInterval: publishInterval,
		ReapInterval:    reapInterval,
		LowWater:        lowWater,
		BatchCount:      batchCount,
		RangeSize:       rangeSize,
	}, nil
}
