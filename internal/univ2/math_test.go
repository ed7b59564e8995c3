package univ2

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestGetAmountOutKnownValues(t *testing.T) {
	tests := []struct {
		name                      string
		in, reserveIn, reserveOut uint64
		want                      uint64
	}{
		{"symmetric pool", 1_000, 1_000_000, 1_000_000, 996},
		{"zero input", 0, 1_000_000, 1_000_000, 0},
		{"empty pool", 1_000, 0, 1_000_000, 0},
		{"tiny input floors to zero", 1, 1_000_000, 1_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := GetAmountOut(u(tt.in), u(tt.reserveIn), u(tt.reserveOut))
			assert.Equal(t, tt.want, step.AmountOut.Uint64())
		})
	}
}

func TestGetAmountOutUpdatesReserves(t *testing.T) {
	step := GetAmountOut(u(1_000), u(1_000_000), u(1_000_000))
	assert.Equal(t, uint64(1_001_000), step.NewReserveIn.Uint64())
	assert.Equal(t, uint64(1_000_000-996), step.NewReserveOut.Uint64())
}

func TestGetAmountOutProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2_000; i++ {
		reserveIn := u(uint64(rng.Int63n(1<<50)) + 1)
		reserveOut := u(uint64(rng.Int63n(1<<50)) + 1)
		a := u(uint64(rng.Int63n(1 << 52)))
		b := new(uint256.Int).Add(a, u(uint64(rng.Int63n(1<<40))))

		stepA := GetAmountOut(a, reserveIn, reserveOut)
		stepB := GetAmountOut(b, reserveIn, reserveOut)

		require.True(t, stepA.AmountOut.Lt(reserveOut), "output must stay below reserve")
		require.False(t, stepB.AmountOut.Lt(stepA.AmountOut), "output must be monotonic in input")
		require.False(t, stepA.NewReserveIn.Lt(reserveIn), "in-reserve must not decrease")
	}
}

func TestRoundTripNeverUnderCollects(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 2_000; i++ {
		ri := uint64(rng.Int63n(1<<40)) + 1_000
		ro := ri * uint64(5+rng.Int63n(1_000))
		a := uint64(rng.Int63n(int64(ri))) + 1

		out := GetAmountOut(u(a), u(ri), u(ro)).AmountOut
		back := GetAmountIn(out, u(ri), u(ro)).AmountIn
		require.False(t, back.Lt(u(a)), "a=%d ri=%d ro=%d out=%s back=%s", a, ri, ro, out.Dec(), back.Dec())
	}
}

func TestGetAmountInKnownValue(t *testing.T) {
	// 1e6*1*1000 / (999999*997) = 1.003.. -> 1, plus one
	step := GetAmountIn(u(1), u(1_000_000), u(1_000_000))
	assert.Equal(t, uint64(2), step.AmountIn.Uint64())
	assert.Equal(t, uint64(1_000_002), step.NewReserveIn.Uint64())
	assert.Equal(t, uint64(999_999), step.NewReserveOut.Uint64())
}

func TestStarvedPoolClampsToOne(t *testing.T) {
	step := GetAmountIn(u(2_000), u(1_000), u(1_000))
	assert.Equal(t, uint64(1), step.NewReserveOut.Uint64())
	assert.False(t, step.AmountIn.IsZero())
}

func TestOverflowClampsToMax(t *testing.T) {
	near := new(uint256.Int).Sub(MaxUint256, u(10))
	step := GetAmountOut(u(100), near, u(1_000))
	assert.True(t, step.NewReserveIn.Eq(MaxUint256))
}

func TestSortTokens(t *testing.T) {
	t0, t1 := SortTokens(weth, usdc)
	assert.Equal(t, usdc, t0)
	assert.Equal(t, weth, t1)

	t0, t1 = SortTokens(usdc, weth)
	assert.Equal(t, usdc, t0)
	assert.Equal(t, weth, t1)
}

func TestPairForIsOrderIndependent(t *testing.T) {
	want := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	assert.Equal(t, want, Mainnet.PairFor(weth, usdc))
	assert.Equal(t, want, Mainnet.PairFor(usdc, weth))

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		var a, b common.Address
		rng.Read(a[:])
		rng.Read(b[:])
		assert.Equal(t, Mainnet.PairFor(a, b), Mainnet.PairFor(b, a))
	}
}
