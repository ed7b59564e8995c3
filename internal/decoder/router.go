// Package decoder classifies pending router calls into swap intents.
package decoder

import (
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	ptypes "github.com/mev-protocol/sandwich/pkg/types"
)

// Uniswap V2 router calls we can recognise. Only swapExactETHForTokens is
// sandwiched; the rest decode so they can be skipped cleanly.
const RouterABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "swapExactETHForTokens",
		"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "swapETHForExactTokens",
		"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "swapExactTokensForETH",
		"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "swapExactTokensForTokens",
		"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const methodSwapExactETHForTokens = "swapExactETHForTokens"

// Config for the decoder
type Config struct {
	Router common.Address
	WETH   common.Address
}

// Decoder turns router transactions into swap intents
type Decoder struct {
	config    Config
	routerABI abi.ABI
}

// New creates a decoder for the configured router
func New(cfg Config) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, err
	}
	return &Decoder{config: cfg, routerABI: parsed}, nil
}

// Decode returns the intent carried by tx. The boolean is false when tx is
// not a live swapExactETHForTokens call on the router starting from WETH;
// that is a skip, never an error.
func (d *Decoder) Decode(tx *types.Transaction, now time.Time) (*ptypes.SwapIntent, bool) {
	if tx == nil || tx.To() == nil || *tx.To() != d.config.Router {
		return nil, false
	}

	data := tx.Data()
	if len(data) < 4 {
		return nil, false
	}
	method, err := d.routerABI.MethodById(data[:4])
	if err != nil || method.Name != methodSwapExactETHForTokens {
		return nil, false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 4 {
		return nil, false
	}

	minOut, ok1 := args[0].(*big.Int)
	path, ok2 := args[1].([]common.Address)
	recipient, ok3 := args[2].(common.Address)
	deadline, ok4 := args[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	if len(path) < 2 || path[0] != d.config.WETH || deadline.Sign() < 0 {
		return nil, false
	}
	// deadlines past uint64 (commonly max uint256) never expire
	expiry := uint64(math.MaxUint64)
	if deadline.IsUint64() {
		expiry = deadline.Uint64()
	}

	amountIn, overflow := uint256.FromBig(tx.Value())
	if overflow || amountIn.IsZero() {
		return nil, false
	}
	min, overflow := uint256.FromBig(minOut)
	if overflow {
		return nil, false
	}

	intent := &ptypes.SwapIntent{
		TxHash:    tx.Hash(),
		Path:      path,
		MinOut:    min,
		Deadline:  expiry,
		AmountIn:  amountIn,
		Recipient: recipient,
	}
	if intent.Expired(now) {
		return nil, false
	}
	return intent, true
}
