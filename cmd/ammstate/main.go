package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ammstate/internal/chain"
	"ammstate/internal/config"
	"ammstate/internal/discovery"
	"ammstate/internal/metrics"
	"ammstate/internal/registry"
)

func main() {
	root := &cobra.Command{
		Use:          "ammstate",
		Short:        "AMM pool state and swap math",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().Uint64("chain-id", 1, "chain id selecting the chains entry of the config")
	root.PersistentFlags().String("rpc", "", "RPC URL, overrides the chain entry")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newFetchCmd(), newQuoteCmd(), newPathsCmd(), newSyncCmd(), newReplayCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// discoveryFlags are shared by every command that builds pools from chain state.
func discoveryFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated), overrides the chain entry")
	cmd.Flags().Uint64("block", 0, "block to read pool state at, 0 means latest")
	cmd.Flags().String("factory-fees", "", "extra factory->fee mappings (comma-separated key=value)")
	cmd.Flags().String("snapshots-out", "", "optional pool snapshots JSONL path")
}

// stateFlags select where checkpoints and snapshots are persisted.
func stateFlags(cmd *cobra.Command) {
	cmd.Flags().String("state-backend", config.BackendFile, "state backend (file, postgres, sqlite)")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("sqlite-path", "./data/ammstate.db", "SQLite database path")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "rejected logs JSONL")
}

// app is what every command needs once the config is loaded.
type app struct {
	cfg     config.Config
	chain   config.Chain
	logger  *zap.Logger
	client  *chain.Client
	pools   *registry.Registry
	fetcher *discovery.Fetcher
	metrics *metrics.Metrics
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newApp loads the config, connects to the chain and builds the fetcher. reg, when set,
// receives the collectors.
func newApp(ctx context.Context, cmd *cobra.Command, reg prometheus.Registerer) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	chainCfg, err := cfg.Chain()
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(ctx, chainCfg.RPC, chain.Options{
		RateLimit: chainCfg.RateLimit,
		RateBurst: chainCfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg, "ammstate")
	}

	pools := registry.New(chainCfg.ID, logger.Named("registry"))
	pools.SetFactoryToFee(chainCfg.FactoryFees)
	pools.SetAeroFactories(chainCfg.AeroFactories)

	fetcher, err := discovery.NewFetcher(client, chain.NewMulticall(client, chainCfg.Multicall), discovery.Options{
		ChainID:            chainCfg.ID,
		Fees:               pools,
		RamsesQuoters:      chainCfg.RamsesQuoters,
		FactoryDefaultFees: chainCfg.FactoryDefaultFees,
		DefaultFee:         chainCfg.DefaultFee,
		Retry:              chain.RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff},
	}, logger.Named("discovery"), m)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		chain:   chainCfg,
		logger:  logger,
		client:  client,
		pools:   pools,
		fetcher: fetcher,
		metrics: m,
	}, nil
}

func (a *app) Close() {
	a.client.Close()
	_ = a.logger.Sync()
}

func (a *app) block() *big.Int {
	if a.cfg.Block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(a.cfg.Block)
}

// discover fetches every configured pool into the app registry, whose fee overrides the
// fetcher reads. A pool that cannot be built is logged and left out.
func (a *app) discover(ctx context.Context) (*registry.Registry, error) {
	if len(a.chain.Pools) == 0 {
		return nil, fmt.Errorf("pool list is required")
	}

	reg := a.pools
	start := time.Now()
	block := a.block()
	for _, address := range a.chain.Pools {
		p, err := a.fetcher.Fetch(ctx, address, block)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.logger.Warn("pool discovery failed", zap.String("pool", address.Hex()), zap.Error(err))
			continue
		}
		reg.Register(p)
	}
	if a.cfg.Block > 0 {
		reg.SetLastProcessedBlock(a.cfg.Block)
	}

	a.logger.Info("discovery complete",
		zap.Uint64("chain_id", a.chain.ID),
		zap.Int("requested", len(a.chain.Pools)),
		zap.Int("pools", reg.PoolCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	if reg.PoolCount() == 0 {
		return nil, fmt.Errorf("no pool could be discovered")
	}
	return reg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
