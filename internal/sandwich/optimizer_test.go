package sandwich

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mev-protocol/sandwich/internal/univ2"
	"github.com/mev-protocol/sandwich/pkg/types"
)

var ether = uint256.NewInt(1_000_000_000_000_000_000)

func eth(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), ether)
}

func pool(reserveIn, reserveOut *uint256.Int) types.PoolState {
	return types.PoolState{
		Pair:       common.HexToAddress("0x0000000000000000000000000000000000000001"),
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
	}
}

func victimOut(x, victimIn *uint256.Int, p types.PoolState) *uint256.Int {
	front := univ2.GetAmountOut(x, p.ReserveIn, p.ReserveOut)
	return univ2.GetAmountOut(victimIn, front.NewReserveIn, front.NewReserveOut).AmountOut
}

// withinPercent reports min <= got <= min*(100+pct)/100
func withinPercent(got, min *uint256.Int, pct uint64) bool {
	upper := new(uint256.Int).Mul(min, uint256.NewInt(100+pct))
	upper.Div(upper, uint256.NewInt(100))
	return !got.Lt(min) && !got.Gt(upper)
}

func TestOptimalInNoRoomReturnsZero(t *testing.T) {
	p := pool(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	victimIn := uint256.NewInt(1_000)
	minOut := victimOut(new(uint256.Int), victimIn, p)

	opt := NewOptimizer(Config{Cap: uint256.NewInt(1_000_000)})
	assert.True(t, opt.OptimalIn(victimIn, minOut, p).IsZero())
}

func TestOptimalInRelaxedMinimum(t *testing.T) {
	p := pool(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	victimIn := uint256.NewInt(1_000)
	noFront := victimOut(new(uint256.Int), victimIn, p)
	minOut := new(uint256.Int).Mul(noFront, uint256.NewInt(9))
	minOut.Div(minOut, uint256.NewInt(10))

	opt := NewOptimizer(Config{Cap: uint256.NewInt(1_000_000)})
	x := opt.OptimalIn(victimIn, minOut, p)
	require.False(t, x.IsZero())

	got := victimOut(x, victimIn, p)
	assert.True(t, withinPercent(got, minOut, 1), "victim got %s, min %s", got.Dec(), minOut.Dec())
}

func TestOptimalInVictimAlreadyFailing(t *testing.T) {
	p := pool(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	opt := NewOptimizer(Config{Cap: uint256.NewInt(1_000_000)})
	assert.True(t, opt.OptimalIn(uint256.NewInt(1_000), uint256.NewInt(5_000), p).IsZero())
}

func TestOptimalInRespectsCap(t *testing.T) {
	p := pool(eth(10_000), eth(20_000_000))
	victimIn := eth(1)
	cap := eth(10)

	opt := NewOptimizer(Config{Cap: cap})
	x := opt.OptimalIn(victimIn, eth(1_000), p)
	assert.False(t, x.Gt(cap))
	assert.False(t, x.IsZero())
}

func TestOptimalInZeroCap(t *testing.T) {
	p := pool(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	opt := NewOptimizer(Config{})
	assert.True(t, opt.OptimalIn(uint256.NewInt(1_000), uint256.NewInt(1), p).IsZero())
}

func TestEndToEndScenarioVictimOutput(t *testing.T) {
	p := pool(eth(10_000), eth(20_000_000))
	victimIn := eth(1)
	minOut := eth(1_900)

	opt := NewOptimizer(Config{Cap: eth(1_000), ToleranceBps: 100})
	x := opt.OptimalIn(victimIn, minOut, p)
	require.False(t, x.IsZero())

	plan, err := Plan(x, victimIn, minOut, p)
	require.NoError(t, err)
	assert.True(t, withinPercent(plan.Victim.AmountOut, minOut, 1), "victim got %s", plan.Victim.AmountOut.Dec())

	// a 1 WETH victim against a 10k WETH pool cannot repay two 0.3% fees
	assert.True(t, plan.Revenue().Sign() < 0)
	_, err = opt.Evaluate(victimIn, minOut, p)
	assert.ErrorIs(t, err, ErrUnprofitable)
}

func TestEvaluateProfitableSandwich(t *testing.T) {
	p := pool(eth(100), eth(200_000))
	victimIn := eth(10)
	noFront := victimOut(new(uint256.Int), victimIn, p)
	minOut := new(uint256.Int).Mul(noFront, uint256.NewInt(97))
	minOut.Div(minOut, uint256.NewInt(100))

	opt := NewOptimizer(Config{Cap: eth(100)})
	plan, err := opt.Evaluate(victimIn, minOut, p)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Revenue().Sign())
	assert.False(t, plan.Victim.AmountOut.Lt(minOut))
	assert.True(t, plan.Frontrun.AmountIn.Eq(plan.OptimalIn))
	assert.True(t, plan.Backrun.AmountIn.Eq(plan.Frontrun.AmountOut))
}

func TestEvaluateNoOpportunity(t *testing.T) {
	p := pool(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	victimIn := uint256.NewInt(1_000)
	minOut := victimOut(new(uint256.Int), victimIn, p)

	_, err := NewOptimizer(Config{Cap: uint256.NewInt(1_000_000)}).Evaluate(victimIn, minOut, p)
	assert.ErrorIs(t, err, ErrNoOpportunity)
}

func TestPlanRejectsViolatedMinimum(t *testing.T) {
	p := pool(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	_, err := Plan(uint256.NewInt(500_000), uint256.NewInt(1_000), uint256.NewInt(900), p)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestPlanChainsReserves(t *testing.T) {
	p := pool(eth(100), eth(200_000))
	plan, err := Plan(eth(1), eth(10), uint256.NewInt(1), p)
	require.NoError(t, err)

	assert.True(t, plan.Victim.NewReserveIn.Eq(new(uint256.Int).Add(plan.Frontrun.NewReserveIn, eth(10))))
	// back-run sells into the pool in the opposite direction
	want := univ2.GetAmountOut(plan.Frontrun.AmountOut, plan.Victim.NewReserveOut, plan.Victim.NewReserveIn)
	assert.True(t, want.AmountOut.Eq(plan.Backrun.AmountOut))
}
