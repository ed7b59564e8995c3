package pipeline

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const weiDecimals = 18

// ether renders a wei amount as a decimal ETH string
func ether(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).String()
}

func ether256(wei *uint256.Int) string {
	if wei == nil {
		return "0"
	}
	return ether(wei.ToBig())
}

func gwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}

func etherFloat(wei *big.Int) float64 {
	return decimal.NewFromBigInt(wei, -weiDecimals).InexactFloat64()
}
