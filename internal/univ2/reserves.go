package univ2

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/mev-protocol/sandwich/pkg/types"
)

const pairABIJSON = `[
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var pairABI = mustParseABI(pairABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the read-only slice of the chain reader the oracle needs
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Oracle reads live pair reserves. Nothing is cached: every call reflects the
// chain state at call time.
type Oracle struct {
	caller  ContractCaller
	factory Factory
}

// NewOracle creates a reserve oracle for the given factory
func NewOracle(caller ContractCaller, factory Factory) *Oracle {
	return &Oracle{caller: caller, factory: factory}
}

// Factory returns the deployment the oracle derives pairs from
func (o *Oracle) Factory() Factory {
	return o.factory
}

// GetReserves returns the reserves of pair ordered as (tokenIn, tokenOut)
func (o *Oracle) GetReserves(ctx context.Context, pair, tokenIn, tokenOut common.Address) (*uint256.Int, *uint256.Int, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, err
	}

	result, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves %s: %w", pair.Hex(), err)
	}

	out, err := pairABI.Unpack("getReserves", result)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack reserves %s: %w", pair.Hex(), err)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unexpected reserves shape from %s", pair.Hex())
	}

	r0, _ := uint256.FromBig(reserve0)
	r1, _ := uint256.FromBig(reserve1)

	token0, _ := SortTokens(tokenIn, tokenOut)
	if token0 == tokenIn {
		return r0, r1, nil
	}
	return r1, r0, nil
}

// Pool derives the pair for (tokenIn, tokenOut) and fetches its reserves
func (o *Oracle) Pool(ctx context.Context, tokenIn, tokenOut common.Address) (types.PoolState, error) {
	pair := o.factory.PairFor(tokenIn, tokenOut)
	reserveIn, reserveOut, err := o.GetReserves(ctx, pair, tokenIn, tokenOut)
	if err != nil {
		return types.PoolState{}, err
	}
	return types.PoolState{Pair: pair, ReserveIn: reserveIn, ReserveOut: reserveOut}, nil
}

// FirstHopMinOut translates a minimum on the last token of path into the
// minimum the victim must receive of path[1]. Later hops are walked backwards
// with GetAmountIn against their live reserves, fetched concurrently.
func (o *Oracle) FirstHopMinOut(ctx context.Context, minOut *uint256.Int, path []common.Address) (*uint256.Int, error) {
	if len(path) <= 2 {
		return minOut.Clone(), nil
	}

	hops := make([]types.PoolState, len(path)-1)
	g, gctx := errgroup.WithContext(ctx)
	for i := 2; i < len(path); i++ {
		i := i
		g.Go(func() error {
			pool, err := o.Pool(gctx, path[i-1], path[i])
			if err != nil {
				return err
			}
			hops[i-1] = pool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	required := minOut.Clone()
	for i := len(hops) - 1; i >= 1; i-- {
		required = GetAmountIn(required, hops[i].ReserveIn, hops[i].ReserveOut).AmountIn
	}
	return required, nil
}
