package bundle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

const (
	bribeNumerator   = 9_999
	bribeDenominator = 10_000
)

// ErrBribeVeto means the back-run cannot pay at least the base fee as tip
var ErrBribeVeto = errors.New("bribe below next base fee")

// Bribe is the priced back-run tip with the figures that produced it
type Bribe struct {
	Revenue     *big.Int
	GasCost     *big.Int
	Budget      *big.Int
	PriorityFee *big.Int
}

// CalculateBribe spends 99.99% of the surplus left after paying the
// front-run's base fee on the back-run's priority fee:
//
//	priorityFee = (revenue - frontGas*nextBaseFee) * 9999 / 10000 / backGas
//
// It returns ErrBribeVeto together with the figures when priorityFee is below
// nextBaseFee.
func CalculateBribe(revenue *big.Int, frontGas, backGas uint64, nextBaseFee *big.Int) (*Bribe, error) {
	b := &Bribe{
		Revenue:     new(big.Int).Set(revenue),
		GasCost:     new(big.Int).Mul(new(big.Int).SetUint64(frontGas), nextBaseFee),
		PriorityFee: new(big.Int),
	}
	b.Budget = new(big.Int).Sub(b.Revenue, b.GasCost)
	if b.Budget.Sign() <= 0 || backGas == 0 {
		return b, ErrBribeVeto
	}

	b.PriorityFee.Mul(b.Budget, big.NewInt(bribeNumerator))
	b.PriorityFee.Quo(b.PriorityFee, big.NewInt(bribeDenominator))
	b.PriorityFee.Quo(b.PriorityFee, new(big.Int).SetUint64(backGas))
	if b.PriorityFee.Cmp(nextBaseFee) < 0 {
		return b, ErrBribeVeto
	}
	return b, nil
}

// NextBaseFee predicts the base fee of the block after head
func NextBaseFee(chainID *big.Int, head *types.Header) *big.Int {
	cfg := &params.ChainConfig{ChainID: chainID, LondonBlock: big.NewInt(0)}
	return eip1559.CalcBaseFee(cfg, head)
}
