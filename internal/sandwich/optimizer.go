// Package sandwich finds the largest front-run a victim swap tolerates and
// chains the three swaps of a sandwich against a pool.
package sandwich

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/mev-protocol/sandwich/internal/univ2"
	"github.com/mev-protocol/sandwich/pkg/types"
)

var (
	ErrNoOpportunity = errors.New("no sandwich opportunity")
	ErrInvalidPlan   = errors.New("victim would receive less than its minimum")
	ErrUnprofitable  = errors.New("sandwich revenue is not positive")
)

const (
	bpsDenominator = 10_000

	// front-runs smaller than reserveIn/dustDivisor are reported as zero
	dustDivisor = 100_000
)

// Config for the optimizer
type Config struct {
	// Cap is the most input capital committed to one front-run
	Cap *uint256.Int
	// ToleranceBps is the relative interval width, against the midpoint,
	// at which the search stops. 100 is 1%.
	ToleranceBps uint64
}

// Optimizer runs an iterative binary search over the front-run input
type Optimizer struct {
	config Config
}

// NewOptimizer creates a new optimizer
func NewOptimizer(cfg Config) *Optimizer {
	if cfg.Cap == nil {
		cfg.Cap = new(uint256.Int)
	}
	if cfg.ToleranceBps == 0 {
		cfg.ToleranceBps = 100
	}
	return &Optimizer{config: cfg}
}

// OptimalIn returns the largest x in [0, Cap] for which the victim, swapping
// victimIn after a front-run of x, still receives at least victimMinOut.
// Zero means there is no opportunity.
//
// The victim's output strictly decreases as x grows, which is what makes the
// search well defined.
func (o *Optimizer) OptimalIn(victimIn, victimMinOut *uint256.Int, pool types.PoolState) *uint256.Int {
	passes := func(x *uint256.Int) bool {
		front := univ2.GetAmountOut(x, pool.ReserveIn, pool.ReserveOut)
		victim := univ2.GetAmountOut(victimIn, front.NewReserveIn, front.NewReserveOut)
		return !victim.AmountOut.Lt(victimMinOut)
	}

	zero := new(uint256.Int)
	if !passes(zero) {
		return zero
	}

	low := new(uint256.Int)
	high := o.config.Cap.Clone()
	mid := new(uint256.Int)
	for {
		mid.Sub(high, low)
		mid.Rsh(mid, 1)
		mid.Add(mid, low)
		if !o.wider(new(uint256.Int).Sub(high, low), mid) {
			break
		}
		if passes(mid) {
			low.Set(mid)
		} else {
			high.Set(mid)
		}
	}

	result := mid
	if !passes(result) {
		result = low
	}
	if isDust(result, pool.ReserveIn) {
		return zero
	}
	return result
}

// wider reports whether the search interval is still wider than the
// tolerance allows
func (o *Optimizer) wider(width, mid *uint256.Int) bool {
	if width.Cmp(uint256.NewInt(1)) <= 0 {
		return false
	}
	lhs, overflow := new(uint256.Int).MulOverflow(width, uint256.NewInt(bpsDenominator))
	if overflow {
		return true
	}
	rhs, overflow := new(uint256.Int).MulOverflow(mid, uint256.NewInt(o.config.ToleranceBps))
	if overflow {
		return false
	}
	return lhs.Gt(rhs)
}

func isDust(x, reserveIn *uint256.Int) bool {
	floor := new(uint256.Int).Div(reserveIn, uint256.NewInt(dustDivisor))
	return x.IsZero() || x.Lt(floor)
}

// Plan chains front-run, victim and back-run against sequentially updated
// reserves. The back-run sells everything the front-run bought.
func Plan(optimalIn, victimIn, victimMinOut *uint256.Int, pool types.PoolState) (*types.SandwichPlan, error) {
	front := univ2.GetAmountOut(optimalIn, pool.ReserveIn, pool.ReserveOut)
	victim := univ2.GetAmountOut(victimIn, front.NewReserveIn, front.NewReserveOut)
	if victim.AmountOut.Lt(victimMinOut) {
		return nil, ErrInvalidPlan
	}
	back := univ2.GetAmountOut(front.AmountOut, victim.NewReserveOut, victim.NewReserveIn)

	return &types.SandwichPlan{
		OptimalIn: optimalIn.Clone(),
		MinOut:    victimMinOut.Clone(),
		Pool:      pool,
		Frontrun:  front,
		Victim:    victim,
		Backrun:   back,
	}, nil
}

// Evaluate runs the search and builds the plan. It fails with
// ErrNoOpportunity, ErrInvalidPlan or ErrUnprofitable.
func (o *Optimizer) Evaluate(victimIn, victimMinOut *uint256.Int, pool types.PoolState) (*types.SandwichPlan, error) {
	optimalIn := o.OptimalIn(victimIn, victimMinOut, pool)
	if optimalIn.IsZero() {
		return nil, ErrNoOpportunity
	}
	plan, err := Plan(optimalIn, victimIn, victimMinOut, pool)
	if err != nil {
		return nil, err
	}
	if plan.Revenue().Sign() <= 0 {
		return plan, ErrUnprofitable
	}
	return plan, nil
}
