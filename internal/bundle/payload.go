// Package bundle builds the front-run and back-run legs, verifies the
// victim's raw encoding and prices the back-run bribe.
package bundle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const payloadLen = common.AddressLength*2 + 16*2 + 1

var (
	ErrAmountTooLarge = errors.New("amount does not fit in 128 bits")
	ErrBadPayload     = errors.New("malformed executor payload")
)

// Payload is the packed calldata decoded by the sandwich executor contract:
//
//	tokenIn(20) | pair(20) | amountIn(uint128) | amountOut(uint128) | tokenOutNo(uint8)
type Payload struct {
	TokenIn    common.Address
	Pair       common.Address
	AmountIn   *uint256.Int
	AmountOut  *uint256.Int
	TokenOutNo uint8
}

// Encode packs the payload
func (p Payload) Encode() ([]byte, error) {
	if p.AmountIn.BitLen() > 128 || p.AmountOut.BitLen() > 128 {
		return nil, ErrAmountTooLarge
	}
	out := make([]byte, 0, payloadLen)
	out = append(out, p.TokenIn.Bytes()...)
	out = append(out, p.Pair.Bytes()...)
	in := p.AmountIn.Bytes32()
	out = append(out, in[16:]...)
	amountOut := p.AmountOut.Bytes32()
	out = append(out, amountOut[16:]...)
	return append(out, p.TokenOutNo), nil
}

// DecodePayload is the inverse of Encode
func DecodePayload(data []byte) (Payload, error) {
	if len(data) != payloadLen {
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrBadPayload, len(data))
	}
	return Payload{
		TokenIn:    common.BytesToAddress(data[0:20]),
		Pair:       common.BytesToAddress(data[20:40]),
		AmountIn:   new(uint256.Int).SetBytes(data[40:56]),
		AmountOut:  new(uint256.Int).SetBytes(data[56:72]),
		TokenOutNo: data[72],
	}, nil
}
