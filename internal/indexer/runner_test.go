package indexer

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ammstate/internal/model"
	"ammstate/internal/paths"
	"ammstate/internal/pool"
	"ammstate/internal/registry"
	"ammstate/internal/storage"
)

var (
	pairAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type fakeSource struct {
	mu     sync.Mutex
	head   uint64
	logs   []types.Log
	ranges []BlockRange
}

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

func (s *fakeSource) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = append(s.ranges, BlockRange{From: from, To: to})

	addrSet := make(map[common.Address]bool, len(addresses))
	for _, a := range addresses {
		addrSet[a] = true
	}
	topicSet := make(map[common.Hash]bool, len(topic0))
	for _, t := range topic0 {
		topicSet[t] = true
	}
	var out []types.Log
	for _, log := range s.logs {
		if log.BlockNumber < from || log.BlockNumber > to || !addrSet[log.Address] {
			continue
		}
		if len(topicSet) > 0 && !topicSet[log.Topics[0]] {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (s *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

type errorCollector struct {
	errs []model.DecodeError
}

func (c *errorCollector) PutDecodeErrors(errs []model.DecodeError) error {
	c.errs = append(c.errs, errs...)
	return nil
}

func newPair() *pool.V2Pool {
	return pool.NewV2Pool(pool.V2Params{
		Address:  pairAddr,
		Token0:   token0,
		Token1:   token1,
		Reserve0: big.NewInt(1000),
		Reserve1: big.NewInt(1000),
		Fee:      3000,
	})
}

func pairLog(t *testing.T, name string, block uint64, index uint, values ...interface{}) types.Log {
	t.Helper()
	parsed, err := pool.V2PairEvents()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", name, err)
	}
	topics := []common.Hash{event.ID}
	if name == "Swap" {
		topics = append(topics, common.BytesToHash(token0.Bytes()), common.BytesToHash(token1.Bytes()))
	}
	return types.Log{
		Address:     pairAddr,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func syncLog(t *testing.T, block uint64, index uint, r0, r1 int64) types.Log {
	return pairLog(t, "Sync", block, index, big.NewInt(r0), big.NewInt(r1))
}

func swapLog(t *testing.T, block uint64, index uint) types.Log {
	return pairLog(t, "Swap", block, index, big.NewInt(10), big.NewInt(0), big.NewInt(0), big.NewInt(9))
}

func newPathRegistry(t *testing.T) *paths.MultichainRegistry {
	t.Helper()
	m := paths.NewMultichainRegistry(nil)
	m.NewPathRegistry(1)
	err := m.SetPaths([]paths.SingleChainPaths{{
		ChainID:     1,
		AnchorToken: token0,
		Paths:       []paths.Path{{{Pool: pairAddr, TokenIn: token0, TokenOut: token1}}},
	}})
	if err != nil {
		t.Fatalf("set paths: %v", err)
	}
	return m
}

func TestRunnerAppliesLogs(t *testing.T) {
	reg := registry.New(1, nil)
	pair := newPair()
	reg.Register(pair)

	truncated := syncLog(t, 6, 0, 1, 1)
	truncated.Data = truncated.Data[:32]
	dup := syncLog(t, 5, 0, 500, 700)
	source := &fakeSource{
		head: 9,
		logs: []types.Log{
			dup,
			dup,
			truncated,
			syncLog(t, 7, 0, 510, 690),
			swapLog(t, 7, 1),
			syncLog(t, 20, 0, 1, 1),
		},
	}

	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	errs := &errorCollector{}
	var updates []Update

	runner, err := NewRunner(RunConfig{
		ChainID:   1,
		FromBlock: 1,
		BatchSize: 4,
	}, Deps{
		Source:   source,
		Registry: reg,
		Paths:    newPathRegistry(t),
		State:    NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true),
		Raw:      storage.NewJsonlStorage(rawPath),
		Errors:   errs,
		OnUpdate: func(u Update) { updates = append(updates, u) },
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	r0, r1 := pair.Reserves()
	if r0.Int64() != 510 || r1.Int64() != 690 {
		t.Fatalf("reserves mismatch: %s %s", r0, r1)
	}
	if reg.LastProcessedBlock() != 9 {
		t.Fatalf("last processed block: %d", reg.LastProcessedBlock())
	}
	if len(source.ranges) != 3 || source.ranges[0] != (BlockRange{From: 1, To: 4}) || source.ranges[2] != (BlockRange{From: 9, To: 9}) {
		t.Fatalf("unexpected ranges: %+v", source.ranges)
	}

	if len(errs.errs) != 1 || errs.errs[0].BlockNumber != 6 {
		t.Fatalf("expected one rejected log at block 6, got %+v", errs.errs)
	}
	rejected := errs.errs[0]
	if rejected.Event != "Sync" || rejected.Topic0 != pool.TopicV2Sync.Hex() || rejected.Reason != model.ReasonDecode {
		t.Fatalf("rejection lacks event context: %+v", rejected)
	}
	if rejected.PoolKind != string(pool.KindV2) || rejected.PoolSubType != string(pool.SubTypeUniswapV2) {
		t.Fatalf("rejection lacks pool context: %+v", rejected)
	}
	if len(updates) != 1 || updates[0].Pool != pairAddr || updates[0].Block != 7 {
		t.Fatalf("unexpected updates: %+v", updates)
	}
	if len(updates[0].Paths.Source.Paths) != 1 {
		t.Fatalf("update carries no paths: %+v", updates[0])
	}

	raw, err := os.ReadFile(rawPath)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if n := bytes.Count(raw, []byte("\n")); n != 4 {
		t.Fatalf("expected 4 raw records, got %d", n)
	}

	cp, ok, err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	if err != nil || !ok {
		t.Fatalf("load checkpoint: %v %v", ok, err)
	}
	if cp.LastProcessedBlock != 9 || cp.Name != "sync-1" {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}
}

func TestRunnerResumesFromState(t *testing.T) {
	dir := t.TempDir()
	state := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true)
	if err := state.Save("sync-1", 10); err != nil {
		t.Fatalf("save: %v", err)
	}

	reg := registry.New(1, nil)
	reg.Register(newPair())
	source := &fakeSource{head: 12}
	runner, err := NewRunner(RunConfig{ChainID: 1, BatchSize: 100}, Deps{Source: source, Registry: reg, State: state})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(source.ranges) != 1 || source.ranges[0] != (BlockRange{From: 11, To: 12}) {
		t.Fatalf("unexpected ranges: %+v", source.ranges)
	}

	source.ranges = nil
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(source.ranges) != 0 {
		t.Fatalf("second run should have nothing to sync, got %+v", source.ranges)
	}
}

func TestRunnerFollowStopsOnCancel(t *testing.T) {
	reg := registry.New(1, nil)
	reg.Register(newPair())
	source := &fakeSource{head: 3, logs: []types.Log{syncLog(t, 2, 0, 42, 43)}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner, err := NewRunner(RunConfig{
		ChainID:      1,
		FromBlock:    1,
		BatchSize:    10,
		Follow:       true,
		PollInterval: 5 * time.Millisecond,
	}, Deps{Source: source, Registry: reg})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for reg.LastProcessedBlock() < 3 {
		select {
		case <-deadline:
			t.Fatalf("runner did not reach the head")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestApplyIgnoresUnknownPools(t *testing.T) {
	reg := registry.New(1, nil)
	runner, err := NewRunner(RunConfig{ChainID: 1}, Deps{Registry: reg})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	ok, err := runner.Apply(syncLog(t, 1, 0, 1, 2))
	if ok || err != nil {
		t.Fatalf("expected unknown pool to be ignored, got %v %v", ok, err)
	}
}

func TestLogIDDistinguishesIndex(t *testing.T) {
	a := types.Log{BlockNumber: 1, Index: 0}
	b := types.Log{BlockNumber: 1, Index: 1}
	if logID(a) == logID(b) {
		t.Fatalf("log ids collide")
	}
	if logID(a) != logID(types.Log{BlockNumber: 1, Index: 0}) {
		t.Fatalf("log id is not stable")
	}
}

func TestReplay(t *testing.T) {
	reg := registry.New(1, nil)
	pair := newPair()
	reg.Register(pair)

	var input bytes.Buffer
	records := []model.LogRecord{
		buildLogRecord(1, syncLog(t, 5, 0, 600, 400), 0, time.Now()),
		buildLogRecord(2, syncLog(t, 6, 0, 1, 1), 0, time.Now()),
		buildLogRecord(1, swapLog(t, 6, 1), 0, time.Now()),
		buildLogRecord(1, syncLog(t, 5, 0, 600, 400), 0, time.Now()),
	}
	for _, rec := range records {
		line, err := rec.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		input.Write(line)
		input.WriteByte('\n')
	}
	input.WriteString("{broken\n")

	errs := &errorCollector{}
	runner, err := NewRunner(RunConfig{ChainID: 1}, Deps{Registry: reg, Errors: errs})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	stats, err := runner.Replay(context.Background(), &input, []common.Hash{pool.TopicV2Sync})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if stats.Total != 4 || stats.Applied != 1 || stats.Skipped != 3 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	r0, r1 := pair.Reserves()
	if r0.Int64() != 600 || r1.Int64() != 400 {
		t.Fatalf("reserves mismatch: %s %s", r0, r1)
	}
	if reg.LastProcessedBlock() != 5 {
		t.Fatalf("last processed block: %d", reg.LastProcessedBlock())
	}
	if len(errs.errs) != 1 || errs.errs[0].Reason != model.ReasonDecode {
		t.Fatalf("expected the broken line to be reported, got %+v", errs.errs)
	}
}
