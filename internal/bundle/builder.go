package bundle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mev-protocol/sandwich/internal/univ2"
	ptypes "github.com/mev-protocol/sandwich/pkg/types"
)

const defaultGasLimit = 250_000

var ErrNotDrafted = errors.New("bundle drafts are incomplete")

// TxSigner signs a transaction with the searcher key
type TxSigner interface {
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Config for the bundle builder
type Config struct {
	Executor         common.Address
	WETH             common.Address
	ChainID          *big.Int
	FrontrunGasLimit uint64
	BackrunGasLimit  uint64
}

// Builder creates and re-signs sandwich legs
type Builder struct {
	config Config
	signer TxSigner
}

// Drafts are the signed legs sent to simulation. The back-run carries a zero
// priority fee until the bribe is known.
type Drafts struct {
	Frontrun    *types.Transaction
	Backrun     *types.Transaction
	NextBaseFee *big.Int

	backrun *types.DynamicFeeTx
}

// NewBuilder creates a new builder
func NewBuilder(cfg Config, signer TxSigner) *Builder {
	if cfg.FrontrunGasLimit == 0 {
		cfg.FrontrunGasLimit = defaultGasLimit
	}
	if cfg.BackrunGasLimit == 0 {
		cfg.BackrunGasLimit = defaultGasLimit
	}
	return &Builder{config: cfg, signer: signer}
}

// Draft builds both synthetic legs. The front-run uses nonce, the back-run
// nonce+1. Both pay exactly nextBaseFee.
func (b *Builder) Draft(plan *ptypes.SandwichPlan, token common.Address, nonce uint64, nextBaseFee *big.Int) (*Drafts, error) {
	token0, _ := univ2.SortTokens(b.config.WETH, token)
	var buyTokenSlot, buyWETHSlot uint8 = 1, 0
	if token0 == token {
		buyTokenSlot, buyWETHSlot = 0, 1
	}

	frontData, err := Payload{
		TokenIn:    b.config.WETH,
		Pair:       plan.Pool.Pair,
		AmountIn:   plan.Frontrun.AmountIn,
		AmountOut:  plan.Frontrun.AmountOut,
		TokenOutNo: buyTokenSlot,
	}.Encode()
	if err != nil {
		return nil, fmt.Errorf("front-run payload: %w", err)
	}
	backData, err := Payload{
		TokenIn:    token,
		Pair:       plan.Pool.Pair,
		AmountIn:   plan.Backrun.AmountIn,
		AmountOut:  plan.Backrun.AmountOut,
		TokenOutNo: buyWETHSlot,
	}.Encode()
	if err != nil {
		return nil, fmt.Errorf("back-run payload: %w", err)
	}

	front, err := b.signer.SignTx(types.NewTx(b.leg(nonce, b.config.FrontrunGasLimit, frontData, new(big.Int), nextBaseFee)))
	if err != nil {
		return nil, fmt.Errorf("sign front-run: %w", err)
	}
	backTx := b.leg(nonce+1, b.config.BackrunGasLimit, backData, new(big.Int), nextBaseFee)
	back, err := b.signer.SignTx(types.NewTx(backTx))
	if err != nil {
		return nil, fmt.Errorf("sign back-run: %w", err)
	}

	return &Drafts{
		Frontrun:    front,
		Backrun:     back,
		NextBaseFee: new(big.Int).Set(nextBaseFee),
		backrun:     backTx,
	}, nil
}

func (b *Builder) leg(nonce, gas uint64, data []byte, tip, feeCap *big.Int) *types.DynamicFeeTx {
	to := b.config.Executor
	return &types.DynamicFeeTx{
		ChainID:   b.config.ChainID,
		Nonce:     nonce,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	}
}

// Finalize re-signs the back-run with the bribe as priority fee and
// assembles the ordered bundle for targetBlock.
func (b *Builder) Finalize(d *Drafts, victim *types.Transaction, victimRaw []byte, priorityFee *big.Int, targetBlock uint64) (*ptypes.Bundle, error) {
	if d == nil || d.backrun == nil || d.Frontrun == nil {
		return nil, ErrNotDrafted
	}
	feeCap := new(big.Int).Add(d.NextBaseFee, priorityFee)
	backTx := b.leg(d.backrun.Nonce, d.backrun.Gas, d.backrun.Data, priorityFee, feeCap)
	back, err := b.signer.SignTx(types.NewTx(backTx))
	if err != nil {
		return nil, fmt.Errorf("re-sign back-run: %w", err)
	}
	return &ptypes.Bundle{
		Frontrun:    d.Frontrun,
		Victim:      victim,
		VictimRaw:   victimRaw,
		Backrun:     back,
		TargetBlock: targetBlock,
	}, nil
}
