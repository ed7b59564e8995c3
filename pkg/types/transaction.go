package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// SwapIntent is a decoded swapExactETHForTokens call observed in the mempool
type SwapIntent struct {
	TxHash    common.Hash
	Path      []common.Address
	MinOut    *uint256.Int
	Deadline  uint64
	AmountIn  *uint256.Int
	Recipient common.Address
}

// Expired reports whether the deadline has already passed at now.
// A deadline equal to the current second is still valid.
func (s *SwapIntent) Expired(now time.Time) bool {
	ts := now.Unix()
	if ts < 0 {
		return false
	}
	return s.Deadline < uint64(ts)
}

// Token returns the token bought directly with WETH
func (s *SwapIntent) Token() common.Address {
	return s.Path[1]
}

// PoolState is a pair's reserves seen from the (in, out) perspective
type PoolState struct {
	Pair       common.Address
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
}

// SwapStep is the result of a constant-product swap
type SwapStep struct {
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	NewReserveIn  *uint256.Int
	NewReserveOut *uint256.Int
}

// SandwichPlan holds the optimal front-run and the three chained swaps
type SandwichPlan struct {
	OptimalIn *uint256.Int
	MinOut    *uint256.Int
	Pool      PoolState
	Frontrun  SwapStep
	Victim    SwapStep
	Backrun   SwapStep
}

// Revenue is back-run output minus front-run input, before gas. It may be
// negative.
func (p *SandwichPlan) Revenue() *big.Int {
	return new(big.Int).Sub(p.Backrun.AmountOut.ToBig(), p.OptimalIn.ToBig())
}

// Bundle is the ordered front-run, victim, back-run triple
type Bundle struct {
	Frontrun    *gethtypes.Transaction
	Victim      *gethtypes.Transaction
	VictimRaw   []byte
	Backrun     *gethtypes.Transaction
	TargetBlock uint64
}

// Encode returns the raw signed legs in bundle order. The victim leg is the
// verified verbatim encoding.
func (b *Bundle) Encode() ([]hexutil.Bytes, error) {
	front, err := b.Frontrun.MarshalBinary()
	if err != nil {
		return nil, err
	}
	back, err := b.Backrun.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return []hexutil.Bytes{front, b.VictimRaw, back}, nil
}

// Hashes returns the leg hashes in bundle order
func (b *Bundle) Hashes() []common.Hash {
	return []common.Hash{b.Frontrun.Hash(), b.Victim.Hash(), b.Backrun.Hash()}
}
