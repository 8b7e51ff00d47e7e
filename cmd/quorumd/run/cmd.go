// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/coordinator"
	"github.com/luxfi/quorum/node"
	"github.com/luxfi/quorum/proof"
	"github.com/luxfi/quorum/reputation"
	"github.com/luxfi/quorum/resolver"
	"github.com/luxfi/quorum/store"
	"github.com/luxfi/quorum/store/memstore"
	"github.com/luxfi/quorum/utils/timer/mockable"
	"github.com/luxfi/quorum/verify"
	"github.com/luxfi/quorum/worker"
)

var (
	ledgerPrefix = []byte("ledger")
	coordPrefix  = []byte("coordinator")
	workerPrefix = []byte("worker")
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a coordinator replica",
		RunE:  runFunc,
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	cfg, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogger("quorumd")
	registry := metric.NewRegistry()
	clock := &mockable.Clock{}

	var db database.Database
	if cfg.DBDir == "" {
		db = memdb.New()
	} else {
		db, err = badgerdb.New(cfg.DBDir, nil, "", nil)
		if err != nil {
			return err
		}
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("couldn't close database", zap.Error(err))
		}
	}()

	digest := verify.DefaultConfig().Digest()
	ledger, err := reputation.New(
		prefixdb.New(ledgerPrefix, db),
		logger,
		clock,
		registry,
	)
	if err != nil {
		return err
	}

	res, err := resolver.New(
		ledger,
		proof.DefaultValidationConfig(digest),
		clock,
		nil,
		logger,
		registry,
	)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(
		prefixdb.New(coordPrefix, db),
		ledger,
		res,
		coordinator.DefaultConfig(digest),
		clock,
		logger,
		registry,
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := coord.Close(); err != nil {
			logger.Error("couldn't close coordinator", zap.Error(err))
		}
	}()

	// The in-process store serves single-node networks; a remote
	// content-addressed backend plugs in behind the same interface.
	mem := memstore.New()
	defer mem.Close()
	contentStore := store.WithRetry(mem, store.DefaultRetryConfig(), logger)

	nodeCfg := node.DefaultConfig()
	nodeCfg.Topic = cfg.Topic
	nodeCfg.PublishInterval = cfg.PublishInterval
	nodeCfg.ReapInterval = cfg.ReapInterval
	nodeCfg.LowWater = cfg.LowWater
	nodeCfg.BatchCount = cfg.BatchCount
	nodeCfg.RangeSize = cfg.RangeSize

	replica, err := node.New(coord, contentStore, nodeCfg, clock, logger, registry)
	if err != nil {
		return err
	}

	logger.Info("starting replica",
		log.Stringer("version", node.Version),
		log.String("topic", cfg.Topic),
		log.Bool("worker", cfg.Worker),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return replica.Run(ctx)
	})

	if cfg.Worker {
		key, err := worker.LoadKey(prefixdb.New(workerPrefix, db))
		if err != nil {
			return err
		}
		w, err := worker.New(
			key,
			coord,
			verify.Hailstone,
			worker.DefaultConfig(),
			clock,
			logger,
			registry,
		)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return w.Run(ctx)
		})
	}

	if cfg.MetricsAddr != "" {
		eg.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr, registry, logger)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics exposes the registry over HTTP until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, registerer metric.Registerer, logger log.Logger) error {
	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		logger.Warn("metrics registry is not a prometheus gatherer, not serving")
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errs
		return ctx.Err()
	}
}
