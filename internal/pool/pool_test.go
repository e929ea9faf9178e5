package pool

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ammstate/internal/clmm"
	"ammstate/internal/clmm/sqrtpricemath"
	"ammstate/internal/model"
)

var (
	poolAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenA   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenC   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	owner    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func buildLog(t *testing.T, get func() (abi.ABI, error), name string, indexed []common.Hash, values ...interface{}) types.Log {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", name, err)
	}
	return types.Log{
		Address:     poolAddr,
		Topics:      append([]common.Hash{event.ID}, indexed...),
		Data:        data,
		BlockNumber: 12345,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromInt24(value int32) common.Hash {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal)
}

func newTestV2(subType SubType) *V2Pool {
	return NewV2Pool(V2Params{
		Address:   poolAddr,
		Token0:    tokenA,
		Token1:    tokenB,
		Decimals0: 18,
		Decimals1: 18,
		Reserve0:  big.NewInt(1000),
		Reserve1:  big.NewInt(1000),
		Fee:       3000,
		SubType:   subType,
	})
}

func newTestV3(subType SubType) *V3Pool {
	return NewV3Pool(V3Params{
		Address:      poolAddr,
		Token0:       tokenA,
		Token1:       tokenB,
		Decimals0:    18,
		Decimals1:    6,
		Fee:          3000,
		TickSpacing:  60,
		SqrtPriceX96: new(big.Int).Set(sqrtpricemath.Q96),
		Tick:         0,
		Liquidity:    e18(2),
		Ticks: []clmm.Tick{
			{Index: -1200, LiquidityNet: e18(1), LiquidityGross: e18(1)},
			{Index: -600, LiquidityNet: e18(1), LiquidityGross: e18(1)},
			{Index: 600, LiquidityNet: new(big.Int).Neg(e18(1)), LiquidityGross: e18(1)},
			{Index: 1200, LiquidityNet: new(big.Int).Neg(e18(1)), LiquidityGross: e18(1)},
		},
		SubType: subType,
	})
}

func TestV2PoolIdentity(t *testing.T) {
	p := newTestV2("")
	if p.SubType() != SubTypeUniswapV2 || p.Kind() != KindV2 {
		t.Fatalf("kind mismatch: %s/%s", p.Kind(), p.SubType())
	}
	wantID := "v2-" + poolAddr.Hex() + "-" + tokenA.Hex() + "-" + tokenB.Hex()
	if p.ID() != wantID {
		t.Fatalf("id mismatch: %s", p.ID())
	}
	if !p.Fee().Equal(feeRatio(3000)) || p.Fee().String() != "0.003" {
		t.Fatalf("fee mismatch: %s", p.Fee())
	}
	if !p.ContainsToken(tokenB) || p.ContainsToken(tokenC) {
		t.Fatalf("contains token mismatch")
	}
	want := "V2 Pool " + poolAddr.Hex() + " - " + tokenA.Hex() + " <> " + tokenB.Hex() + " (reserves: 1000, 1000)"
	if p.LogSummary() != want {
		t.Fatalf("summary mismatch: %s", p.LogSummary())
	}
}

func TestV2PoolQuotes(t *testing.T) {
	p := newTestV2("")

	out, err := p.CalculateOutput(tokenA, big.NewInt(100))
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if out.Int64() != 90 {
		t.Fatalf("output mismatch: %s", out)
	}

	in, err := p.CalculateInput(tokenB, big.NewInt(90))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	back, err := p.CalculateOutput(tokenA, in)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if back.Cmp(big.NewInt(90)) < 0 {
		t.Fatalf("input %s buys only %s", in, back)
	}

	if _, err := p.CalculateOutput(tokenC, big.NewInt(100)); !errors.Is(err, model.ErrMathDomain) {
		t.Fatalf("expected math domain error, got %v", err)
	}
	if _, err := p.CalculateOutput(tokenA, big.NewInt(0)); !errors.Is(err, model.ErrZeroAmount) {
		t.Fatalf("expected zero amount error, got %v", err)
	}
}

func TestV2StablePoolQuotes(t *testing.T) {
	p := NewV2Pool(V2Params{
		Address:   poolAddr,
		Token0:    tokenA,
		Token1:    tokenB,
		Decimals0: 18,
		Decimals1: 6,
		Reserve0:  e18(1_000_000),
		Reserve1:  big.NewInt(1_000_000_000_000),
		Fee:       100,
		SubType:   SubTypeStable,
	})
	out, err := p.CalculateOutput(tokenA, e18(1))
	if err != nil {
		t.Fatalf("stable output: %v", err)
	}
	if out.Cmp(big.NewInt(999_000)) <= 0 || out.Cmp(big.NewInt(1_000_000)) > 0 {
		t.Fatalf("stable output out of range: %s", out)
	}
}

func TestV2ApplySwap(t *testing.T) {
	p := newTestV2("")
	if err := p.ApplySwap(tokenA, big.NewInt(100), big.NewInt(90)); err != nil {
		t.Fatalf("apply swap: %v", err)
	}
	r0, r1 := p.Reserves()
	if r0.Int64() != 1100 || r1.Int64() != 910 {
		t.Fatalf("reserves mismatch: %s %s", r0, r1)
	}

	err := p.ApplySwap(tokenB, big.NewInt(1), big.NewInt(1100))
	if !errors.Is(err, model.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	r0, r1 = p.Reserves()
	if r0.Int64() != 1100 || r1.Int64() != 910 {
		t.Fatalf("failed swap changed reserves: %s %s", r0, r1)
	}
}

func TestApplySwapRejectsBadAmounts(t *testing.T) {
	cases := []struct {
		name    string
		in, out *big.Int
	}{
		{name: "nil in", in: nil, out: big.NewInt(9)},
		{name: "nil out", in: big.NewInt(10), out: nil},
		{name: "zero in", in: big.NewInt(0), out: big.NewInt(9)},
		{name: "negative in", in: big.NewInt(-10), out: big.NewInt(9)},
		{name: "zero out", in: big.NewInt(10), out: big.NewInt(0)},
		{name: "negative out", in: big.NewInt(10), out: big.NewInt(-9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v2 := newTestV2("")
			if err := v2.ApplySwap(tokenA, tc.in, tc.out); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("v2: expected validation error, got %v", err)
			}
			r0, r1 := v2.Reserves()
			if r0.Int64() != 1000 || r1.Int64() != 1000 {
				t.Fatalf("rejected swap changed reserves: %s %s", r0, r1)
			}
			if err := newTestV3("").ApplySwap(tokenB, tc.in, tc.out); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("v3: expected validation error, got %v", err)
			}
		})
	}
}

func TestV2ApplyLog(t *testing.T) {
	p := newTestV2("")

	syncLog := buildLog(t, V2PairEvents, "Sync", nil, big.NewInt(5000), big.NewInt(7000))
	if err := p.ApplyLog(syncLog); err != nil {
		t.Fatalf("apply sync: %v", err)
	}
	r0, r1 := p.Reserves()
	if r0.Int64() != 5000 || r1.Int64() != 7000 {
		t.Fatalf("sync reserves mismatch: %s %s", r0, r1)
	}

	wide := new(big.Int).Lsh(big.NewInt(1), 130)
	wideLog := buildLog(t, V2WideSyncEvent, "Sync", nil, wide, big.NewInt(3))
	if err := p.ApplyLog(wideLog); err != nil {
		t.Fatalf("apply wide sync: %v", err)
	}
	r0, _ = p.Reserves()
	if r0.Cmp(wide) != 0 {
		t.Fatalf("wide reserve mismatch: %s", r0)
	}

	swapLog := buildLog(t, V2PairEvents, "Swap",
		[]common.Hash{topicFromAddress(owner), topicFromAddress(owner)},
		big.NewInt(1), big.NewInt(0), big.NewInt(0), big.NewInt(1))
	if err := p.ApplyLog(swapLog); err != nil {
		t.Fatalf("apply swap log: %v", err)
	}
	if r0, _ = p.Reserves(); r0.Cmp(wide) != 0 {
		t.Fatalf("swap log changed reserves")
	}

	if err := p.ApplyLog(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}); err != nil {
		t.Fatalf("unknown topic should be ignored: %v", err)
	}

	bad := syncLog
	bad.Data = bad.Data[:32]
	if err := p.ApplyLog(bad); !errors.Is(err, model.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestV3PoolIdentity(t *testing.T) {
	p := newTestV3("")
	if p.SubType() != SubTypeUniswapV3 || p.Kind() != KindV3 {
		t.Fatalf("kind mismatch: %s/%s", p.Kind(), p.SubType())
	}
	wantID := "v3-" + poolAddr.Hex() + "-" + tokenA.Hex() + "-" + tokenB.Hex() + "-3000"
	if p.ID() != wantID {
		t.Fatalf("id mismatch: %s", p.ID())
	}
	summary := p.LogSummary()
	if !strings.Contains(summary, "(fee: 0.30%, tick: 0, liquidity: 2000000000000000000, sqrt_price_x96: 79228162514264337593543950336, ticks: 4)") {
		t.Fatalf("summary mismatch: %s", summary)
	}
	snap := p.Snapshot()
	if len(snap.Ticks) != 4 || snap.Ticks[0].Index != -1200 || snap.RatioConversionFactor != "10000000000" {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}

func TestV3PoolQuotes(t *testing.T) {
	p := newTestV3("")

	amountIn := big.NewInt(1e16)
	out, err := p.CalculateOutput(tokenA, amountIn)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if out.Sign() <= 0 || out.Cmp(amountIn) >= 0 {
		t.Fatalf("output out of range: %s", out)
	}

	in, err := p.CalculateInput(tokenA, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.Cmp(big.NewInt(1_000_000)) <= 0 {
		t.Fatalf("input should exceed output at price 1 with fee: %s", in)
	}

	if _, err := p.CalculateOutput(tokenC, big.NewInt(1)); !errors.Is(err, model.ErrMathDomain) {
		t.Fatalf("expected token mismatch, got %v", err)
	}
	if _, err := p.CalculateOutput(tokenA, e18(1)); !errors.Is(err, model.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity past the last tick, got %v", err)
	}

	ramses := newTestV3(SubTypeRamsesV2)
	ramses.SetRatioConversionFactor(new(big.Int).Mul(RatioScale, big.NewInt(2)))
	scaled, err := ramses.CalculateOutput(tokenA, amountIn)
	if err != nil {
		t.Fatalf("ramses output: %v", err)
	}
	if scaled.Cmp(new(big.Int).Mul(out, big.NewInt(2))) != 0 {
		t.Fatalf("ramses scaling mismatch: %s vs %s", scaled, out)
	}
}

func TestV3ApplySwapLog(t *testing.T) {
	p := newTestV3("")
	sqrt := new(big.Int).Add(sqrtpricemath.Q96, big.NewInt(1<<40))

	swapLog := buildLog(t, V3PoolEvents, "Swap",
		[]common.Hash{topicFromAddress(owner), topicFromAddress(owner)},
		big.NewInt(-1000), big.NewInt(2000), sqrt, big.NewInt(777), big.NewInt(-15))
	if err := p.ApplyLog(swapLog); err != nil {
		t.Fatalf("apply swap: %v", err)
	}
	s := p.State()
	if s.Tick != -15 || s.Liquidity.Int64() != 777 || s.SqrtPriceX96.Cmp(sqrt) != 0 {
		t.Fatalf("state mismatch: tick=%d liquidity=%s sqrt=%s", s.Tick, s.Liquidity, s.SqrtPriceX96)
	}

	pancakeLog := buildLog(t, PancakeV3Events, "Swap",
		[]common.Hash{topicFromAddress(owner), topicFromAddress(owner)},
		big.NewInt(1), big.NewInt(-1), sqrt, big.NewInt(888), big.NewInt(60), big.NewInt(0), big.NewInt(0))
	if err := p.ApplyLog(pancakeLog); err != nil {
		t.Fatalf("apply pancake swap: %v", err)
	}
	if s = p.State(); s.Tick != 60 || s.Liquidity.Int64() != 888 {
		t.Fatalf("pancake state mismatch: %d %s", s.Tick, s.Liquidity)
	}

	algebraLog := buildLog(t, AlgebraEvents, "Swap",
		[]common.Hash{topicFromAddress(owner), topicFromAddress(owner)},
		big.NewInt(1), big.NewInt(-1), sqrt, big.NewInt(999), big.NewInt(-120), big.NewInt(500), big.NewInt(0))
	if err := p.ApplyLog(algebraLog); err != nil {
		t.Fatalf("apply algebra swap: %v", err)
	}
	if s = p.State(); s.Tick != -120 || s.Liquidity.Int64() != 999 {
		t.Fatalf("algebra state mismatch: %d %s", s.Tick, s.Liquidity)
	}

	zeroPrice := buildLog(t, V3PoolEvents, "Swap",
		[]common.Hash{topicFromAddress(owner), topicFromAddress(owner)},
		big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(1), big.NewInt(0))
	if err := p.ApplyLog(zeroPrice); !errors.Is(err, model.ErrMathDomain) {
		t.Fatalf("expected math domain error, got %v", err)
	}

	outOfRange := buildLog(t, V3PoolEvents, "Swap",
		[]common.Hash{topicFromAddress(owner), topicFromAddress(owner)},
		big.NewInt(0), big.NewInt(0), sqrt, big.NewInt(1), big.NewInt(900000))
	if err := p.ApplyLog(outOfRange); !errors.Is(err, model.ErrMathDomain) {
		t.Fatalf("expected tick bounds error, got %v", err)
	}
	if s = p.State(); s.Tick != -120 {
		t.Fatalf("rejected log changed tick: %d", s.Tick)
	}
}

func TestV3ApplyMintBurnLogs(t *testing.T) {
	p := newTestV3("")
	rangeTopics := []common.Hash{topicFromAddress(owner), topicFromInt24(-120), topicFromInt24(120)}

	mintLog := buildLog(t, V3PoolEvents, "Mint", rangeTopics, owner, big.NewInt(5000), big.NewInt(100), big.NewInt(200))
	if err := p.ApplyLog(mintLog); err != nil {
		t.Fatalf("apply mint: %v", err)
	}
	s := p.State()
	if s.Ticks.Len() != 6 {
		t.Fatalf("expected 6 ticks, got %d", s.Ticks.Len())
	}
	wantLiquidity := new(big.Int).Add(e18(2), big.NewInt(5000))
	if s.Liquidity.Cmp(wantLiquidity) != 0 {
		t.Fatalf("liquidity mismatch: %s", s.Liquidity)
	}
	lower, _ := s.Ticks.Get(-120)
	if lower.LiquidityNet.Int64() != 5000 || lower.LiquidityGross.Int64() != 5000 {
		t.Fatalf("lower tick mismatch: %+v", lower)
	}

	burnLog := buildLog(t, V3PoolEvents, "Burn", rangeTopics, big.NewInt(2000), big.NewInt(40), big.NewInt(80))
	if err := p.ApplyLog(burnLog); err != nil {
		t.Fatalf("apply burn: %v", err)
	}
	algebraBurn := buildLog(t, AlgebraEvents, "Burn", rangeTopics, big.NewInt(3000), big.NewInt(60), big.NewInt(120), big.NewInt(0))
	if err := p.ApplyLog(algebraBurn); err != nil {
		t.Fatalf("apply algebra burn: %v", err)
	}
	s = p.State()
	if s.Ticks.Len() != 4 || s.Liquidity.Cmp(e18(2)) != 0 {
		t.Fatalf("burn did not restore state: ticks=%d liquidity=%s", s.Ticks.Len(), s.Liquidity)
	}

	orphan := buildLog(t, V3PoolEvents, "Burn",
		[]common.Hash{topicFromAddress(owner), topicFromInt24(-60), topicFromInt24(60)},
		big.NewInt(1), big.NewInt(0), big.NewInt(0))
	if err := p.ApplyLog(orphan); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestV3ApplySwapChecksToken(t *testing.T) {
	p := newTestV3("")
	before := p.State()
	if err := p.ApplySwap(tokenB, big.NewInt(10), big.NewInt(9)); err != nil {
		t.Fatalf("apply swap: %v", err)
	}
	after := p.State()
	if after.SqrtPriceX96.Cmp(before.SqrtPriceX96) != 0 {
		t.Fatalf("apply swap moved price")
	}
	if err := p.ApplySwap(tokenC, big.NewInt(10), big.NewInt(9)); !errors.Is(err, model.ErrTokenMismatch) {
		t.Fatalf("expected token mismatch, got %v", err)
	}
}

func TestTopicsByKind(t *testing.T) {
	if len(Topics(KindV2)) != 3 || len(Topics(KindV3)) != 6 {
		t.Fatalf("topic count mismatch")
	}
	if len(ProfitableTopics(KindV2)) != 1 || ProfitableTopics(KindV2)[0] != TopicV2Swap {
		t.Fatalf("v2 profitable topics mismatch")
	}
	if TopicV3Mint == (common.Hash{}) || TopicAlgebraBurn == TopicV3Burn {
		t.Fatalf("topic hashes not distinct")
	}
}

func TestEventName(t *testing.T) {
	for _, kind := range []Kind{KindV2, KindV3} {
		for _, topic := range Topics(kind) {
			if EventName(topic) == "" {
				t.Fatalf("%s topic %s has no event name", kind, topic.Hex())
			}
		}
	}
	if EventName(TopicV2WideSync) != "Sync" || EventName(TopicAlgebraBurn) != "Burn" {
		t.Fatalf("event name mismatch")
	}
	if EventName(common.Hash{}) != "" {
		t.Fatalf("unknown topic should have no name")
	}
}
