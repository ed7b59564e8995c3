// Package univ2 implements Uniswap V2 constant-product math, pair address
// derivation and live reserve lookups.
package univ2

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/mev-protocol/sandwich/pkg/types"
)

var (
	feeNumerator   = uint256.NewInt(997)
	feeDenominator = uint256.NewInt(1000)
	one            = uint256.NewInt(1)

	// MaxUint256 is returned for a reserve that would overflow
	MaxUint256 = new(uint256.Int).SetAllOne()
)

// Factory identifies a V2 deployment for CREATE2 pair derivation
type Factory struct {
	Address      common.Address
	InitCodeHash common.Hash
}

// Mainnet is the canonical Uniswap V2 factory
var Mainnet = Factory{
	Address:      common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
	InitCodeHash: common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"),
}

// SortTokens orders two tokens ascending by numeric value
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PairFor computes the pair address off-chain. Argument order does not matter.
func (f Factory) PairFor(a, b common.Address) common.Address {
	token0, token1 := SortTokens(a, b)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(f.Address, salt, f.InitCodeHash.Bytes())
}

// GetAmountOut applies the 0.3% fee to amountIn and returns the output and
// the updated reserves:
//
//	out = in*997*reserveOut / (reserveIn*1000 + in*997)
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) types.SwapStep {
	step := types.SwapStep{
		AmountIn:  amountIn.Clone(),
		AmountOut: new(uint256.Int),
	}
	if !reserveIn.IsZero() && !reserveOut.IsZero() {
		inWithFee := satMul(amountIn, feeNumerator)
		denominator := satAdd(satMul(reserveIn, feeDenominator), inWithFee)
		step.AmountOut.MulDivOverflow(inWithFee, reserveOut, denominator)
	}
	step.NewReserveIn = satAdd(reserveIn, amountIn)
	step.NewReserveOut = drain(reserveOut, step.AmountOut)
	return step
}

// GetAmountIn is the inverse of GetAmountOut, rounded up by one unit so that
// round trips never under-collect fees.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) types.SwapStep {
	step := types.SwapStep{AmountOut: amountOut.Clone()}
	step.NewReserveOut = drain(reserveOut, amountOut)

	numerator := satMul(reserveIn, feeDenominator)
	denominator := satMul(step.NewReserveOut, feeNumerator)
	amountIn, overflow := new(uint256.Int).MulDivOverflow(numerator, amountOut, denominator)
	if overflow {
		amountIn = MaxUint256.Clone()
	}
	step.AmountIn = satAdd(amountIn, one)
	step.NewReserveIn = satAdd(reserveIn, step.AmountIn)
	return step
}

// drain subtracts out from reserve. A result that would go negative or to
// zero clamps to 1, the pool-starved sentinel.
func drain(reserve, out *uint256.Int) *uint256.Int {
	if out.Cmp(reserve) >= 0 {
		return one.Clone()
	}
	return new(uint256.Int).Sub(reserve, out)
}

func satAdd(x, y *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return MaxUint256.Clone()
	}
	return z
}

func satMul(x, y *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return MaxUint256.Clone()
	}
	return z
}
