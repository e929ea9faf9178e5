package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammstate/internal/indexer"
	"ammstate/internal/paths"
	"ammstate/internal/registry"
	"ammstate/internal/storage"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Discover pools and keep their state in sync with chain events",
		RunE:  runSync,
	}
	discoveryFlags(cmd)
	stateFlags(cmd)
	cmd.Flags().Uint64("from", 0, "start block (inclusive), defaults to the block after discovery")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().String("routes", "", "optional route file (YAML)")
	cmd.Flags().String("raw-out", "", "optional raw logs JSONL path")
	cmd.Flags().String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9100")
	cmd.Flags().Bool("follow", false, "keep polling for new blocks")
	cmd.Flags().Duration("poll-interval", 5*time.Second, "poll interval in follow mode")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Int("dedupe-size", indexer.DefaultDedupeSize, "recent logs remembered for dedupe")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	a, err := newApp(ctx, cmd, promReg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Block == 0 {
		latest, err := a.client.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		a.cfg.Block = latest
	}
	reg, err := a.discover(ctx)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer b.close()

	deps := indexer.Deps{
		Source:   a.client,
		Registry: reg,
		State:    b.state,
		Errors:   storage.NewJsonlErrors(a.cfg.Errors),
		Metrics:  a.metrics,
		Logger:   a.logger.Named("indexer"),
	}
	if a.cfg.RawOut != "" {
		deps.Raw = storage.NewJsonlStorage(a.cfg.RawOut)
	}
	if a.cfg.Routes != "" {
		m, err := loadPaths(a.cfg.Routes, a.logger)
		if err != nil {
			return err
		}
		deps.Paths = m
		deps.OnUpdate = logUpdate(a.logger)
	}

	if a.cfg.MetricsAddr != "" {
		srv := serveMetrics(a.cfg.MetricsAddr, promReg, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		ChainID:      a.chain.ID,
		FromBlock:    a.cfg.FromBlock,
		ToBlock:      a.cfg.ToBlock,
		BatchSize:    a.cfg.BatchSize,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
		Follow:       a.cfg.Follow,
		PollInterval: a.cfg.PollInterval,
		DedupeSize:   a.cfg.DedupeSize,
	}, deps)
	if err != nil {
		return err
	}

	a.logger.Info("sync start",
		zap.Uint64("chain_id", a.chain.ID),
		zap.Uint64("discovery_block", a.cfg.Block),
		zap.Uint64("to", a.cfg.ToBlock),
		zap.Int("pools", reg.PoolCount()),
		zap.Int("topics", len(reg.Topics())),
		zap.Bool("follow", a.cfg.Follow),
		zap.String("state_backend", a.cfg.StateBackend),
	)

	runErr := runner.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ctx may be done by now; the final snapshot still gets written.
	if err := writeSnapshots(context.Background(), reg, b.snapshots); err != nil && runErr == nil {
		runErr = err
	}
	a.logger.Info("sync stopped", zap.Uint64("last_processed_block", reg.LastProcessedBlock()))
	return runErr
}

func logUpdate(logger *zap.Logger) func(indexer.Update) {
	return func(u indexer.Update) {
		logger.Info("paths affected",
			zap.String("pool", u.Pool.Hex()),
			zap.Uint64("block", u.Block),
			zap.String("tx", u.TxHash.Hex()),
			zap.Int("paths", len(u.Paths.Source.Paths)),
			zap.Int("target_chains", len(u.Paths.Targets)),
		)
		if logger.Core().Enabled(zap.DebugLevel) {
			for _, p := range u.Paths.Source.Paths {
				logger.Debug("path", zap.String("summary", paths.FormatPathSummary(p)))
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("metrics server start", zap.String("addr", addr))
	return srv
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a raw log file to pools discovered at a block",
		RunE:  runReplay,
	}
	discoveryFlags(cmd)
	cmd.Flags().String("in", "", "input raw logs JSONL")
	cmd.Flags().StringSlice("topic0", nil, "only replay these topic0 hashes (comma-separated)")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "rejected logs JSONL")
	return cmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	inPath, _ := cmd.Flags().GetString("in")
	topicFlags, _ := cmd.Flags().GetStringSlice("topic0")
	if inPath == "" {
		return fmt.Errorf("input file is required")
	}
	topics, err := indexer.ParseTopic0(topicFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.discover(ctx)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	runner, err := indexer.NewRunner(indexer.RunConfig{ChainID: a.chain.ID}, indexer.Deps{
		Registry: reg,
		Errors:   storage.NewJsonlErrors(a.cfg.Errors),
		Logger:   a.logger.Named("replay"),
	})
	if err != nil {
		return err
	}
	stats, err := runner.Replay(ctx, in, topics)
	if err != nil {
		return err
	}

	printReplay(cmd, reg, stats)
	if a.cfg.SnapshotsOut != "" {
		return writeSnapshots(ctx, reg, []storage.SnapshotSink{storage.NewJsonlSnapshots(a.cfg.SnapshotsOut)})
	}
	return nil
}

func printReplay(cmd *cobra.Command, reg *registry.Registry, stats indexer.ReplayStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "replayed %d records: %d applied, %d skipped, %d rejected\n", stats.Total, stats.Applied, stats.Skipped, stats.Rejected)
	for _, p := range reg.AllPools() {
		fmt.Fprintln(out, p.LogSummary())
	}
}
