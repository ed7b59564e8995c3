// Package pipeline runs one sandwich attempt per pending transaction:
// classify, price, simulate, bribe and submit, aborting at the first
// failing gate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mev-protocol/sandwich/internal/bundle"
	"github.com/mev-protocol/sandwich/internal/mempool"
	"github.com/mev-protocol/sandwich/internal/relay"
	"github.com/mev-protocol/sandwich/internal/signer"
	"github.com/mev-protocol/sandwich/pkg/types"
)

// ChainReader is the node access an attempt needs
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

// Decoder extracts swap intents
type Decoder interface {
	Decode(tx *gethtypes.Transaction, now time.Time) (*types.SwapIntent, bool)
}

// Reserves reads live pool state
type Reserves interface {
	Pool(ctx context.Context, tokenIn, tokenOut common.Address) (types.PoolState, error)
	FirstHopMinOut(ctx context.Context, minOut *uint256.Int, path []common.Address) (*uint256.Int, error)
}

// Optimizer prices the sandwich
type Optimizer interface {
	Evaluate(victimIn, victimMinOut *uint256.Int, pool types.PoolState) (*types.SandwichPlan, error)
}

// Relay simulates and submits bundles
type Relay interface {
	SimulateBundle(ctx context.Context, txs []hexutil.Bytes, targetBlock uint64) (relay.SimOutcome, error)
	SendBundle(ctx context.Context, txs []hexutil.Bytes, targetBlock uint64, now time.Time) (*relay.BundleResponse, error)
}

// Nonces hands out per-attempt nonce ranges
type Nonces interface {
	Reserve(ctx context.Context, n uint64) (*signer.Lease, error)
	Sync(ctx context.Context, head uint64) error
}

// Recorder receives attempt statistics
type Recorder interface {
	Outcome(reason types.AbortReason)
	Stage(stage types.Stage, elapsed time.Duration)
	Revenue(eth float64)
}

// Config for the engine
type Config struct {
	ChainID             *big.Int
	WETH                common.Address
	RelayTimeout        time.Duration
	ReceiptPollInterval time.Duration
}

// Engine wires the stages together. It holds no per-attempt state and is
// safe for concurrent use.
type Engine struct {
	config    Config
	chain     ChainReader
	decoder   Decoder
	reserves  Reserves
	optimizer Optimizer
	builder   *bundle.Builder
	relay     Relay
	nonces    Nonces
	recorder  Recorder
}

// Deps are the collaborators of an engine
type Deps struct {
	Chain     ChainReader
	Decoder   Decoder
	Reserves  Reserves
	Optimizer Optimizer
	Builder   *bundle.Builder
	Relay     Relay
	Nonces    Nonces
	Recorder  Recorder
}

// New creates a new engine
func New(cfg Config, deps Deps) *Engine {
	if cfg.RelayTimeout == 0 {
		cfg.RelayTimeout = 5 * time.Second
	}
	if cfg.ReceiptPollInterval == 0 {
		cfg.ReceiptPollInterval = time.Second
	}
	return &Engine{
		config:    cfg,
		chain:     deps.Chain,
		decoder:   deps.Decoder,
		reserves:  deps.Reserves,
		optimizer: deps.Optimizer,
		builder:   deps.Builder,
		relay:     deps.Relay,
		nonces:    deps.Nonces,
		recorder:  deps.Recorder,
	}
}

// Attempt is the trace of one evaluation
type Attempt struct {
	Hash       common.Hash
	Stage      types.Stage
	Reason     types.AbortReason
	Err        error
	Intent     *types.SwapIntent
	Plan       *types.SandwichPlan
	Bribe      *bundle.Bribe
	Simulation relay.SimOutcome
	Bundle     *types.Bundle
	BundleHash common.Hash

	started time.Time
}

func (a *Attempt) advance(e *Engine, stage types.Stage) {
	a.Stage = stage
	if e.recorder != nil {
		e.recorder.Stage(stage, time.Since(a.started))
	}
}

// OnHead re-synchronises the nonce allocator with the chain
func (e *Engine) OnHead(ctx context.Context, head *gethtypes.Header) {
	if err := e.nonces.Sync(ctx, head.Number.Uint64()); err != nil {
		log.Warn().Err(err).Uint64("block", head.Number.Uint64()).Msg("Nonce sync failed")
	}
}

// Handle adapts Process to the mempool worker pool
func (e *Engine) Handle(ctx context.Context, tx *mempool.PendingTx) {
	e.Process(ctx, tx.Hash, tx.Timestamp)
}

// Process runs one attempt to a terminal stage. It never retries.
func (e *Engine) Process(ctx context.Context, hash common.Hash, received time.Time) *Attempt {
	attempt := &Attempt{Hash: hash, Stage: types.StageReceived, started: received}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	attempt.Err = e.run(attemptCtx, cancel, attempt)
	attempt.Reason = classify(attemptCtx, attempt.Err)
	if attempt.Reason == types.ReasonNone {
		attempt.advance(e, types.StageSubmitted)
	} else {
		attempt.Stage = types.StageAborted
		if e.recorder != nil {
			e.recorder.Stage(types.StageAborted, time.Since(attempt.started))
		}
	}
	if e.recorder != nil {
		e.recorder.Outcome(attempt.Reason)
	}
	e.report(attempt)
	return attempt
}

func (e *Engine) run(ctx context.Context, cancel context.CancelCauseFunc, a *Attempt) error {
	victim, err := e.fetchPending(ctx, a.Hash)
	if err != nil {
		return err
	}

	intent, ok := e.decoder.Decode(victim, time.Now())
	if !ok {
		return ErrNotApplicable
	}
	a.Intent = intent
	a.advance(e, types.StageClassified)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		e.watchVictim(watchCtx, a.Hash, cancel)
	}()
	stopWatching := func() {
		stopWatch()
		<-watching
	}
	defer stopWatching()

	token := intent.Token()
	var (
		minOut *uint256.Int
		pool   types.PoolState
		head   *gethtypes.Header
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		minOut, err = e.reserves.FirstHopMinOut(gctx, intent.MinOut, intent.Path)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = e.reserves.Pool(gctx, e.config.WETH, token)
		return err
	})
	g.Go(func() error {
		var err error
		head, err = e.chain.HeaderByNumber(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrChain, err)
	}
	a.advance(e, types.StageReservesFetched)

	plan, err := e.optimizer.Evaluate(intent.AmountIn, minOut, pool)
	a.Plan = plan
	if err != nil {
		return err
	}
	a.advance(e, types.StageOptimized)

	victimRaw, err := bundle.EncodeVictim(victim, a.Hash)
	if err != nil {
		return err
	}

	nextBaseFee := bundle.NextBaseFee(e.config.ChainID, head)
	target := head.Number.Uint64() + 1

	lease, err := e.nonces.Reserve(ctx, 2)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChain, err)
	}
	submitted := false
	defer func() {
		if submitted {
			lease.Commit(target)
		} else {
			lease.Release()
		}
	}()

	drafts, err := e.builder.Draft(plan, token, lease.First, nextBaseFee)
	if err != nil {
		return err
	}
	gas, err := e.simulate(ctx, a, drafts, victimRaw, target)
	if err != nil {
		return err
	}
	a.advance(e, types.StageSimulated)

	bribe, err := bundle.CalculateBribe(plan.Revenue(), gas[0], gas[2], nextBaseFee)
	a.Bribe = bribe
	if err != nil {
		return err
	}
	a.advance(e, types.StageBribed)

	final, err := e.builder.Finalize(drafts, victim, victimRaw, bribe.PriorityFee, target)
	if err != nil {
		return err
	}
	a.Bundle = final

	// nothing cancels the attempt past the final check
	stopWatching()
	if err := e.ensurePending(ctx, a.Hash); err != nil {
		return err
	}
	legs, err := final.Encode()
	if err != nil {
		return err
	}

	relayCtx, relayCancel := context.WithTimeout(ctx, e.config.RelayTimeout)
	defer relayCancel()
	resp, err := e.relay.SendBundle(relayCtx, legs, target, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	submitted = true
	a.BundleHash = resp.BundleHash
	if e.recorder != nil {
		e.recorder.Revenue(etherFloat(plan.Revenue()))
	}
	return nil
}

// fetchPending loads the victim and confirms it is not mined yet
func (e *Engine) fetchPending(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, error) {
	var (
		tx      *gethtypes.Transaction
		pending bool
		mined   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tx, pending, err = e.chain.TransactionByHash(gctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return ErrNotApplicable
		}
		return err
	})
	g.Go(func() error {
		var err error
		mined, err = e.mined(gctx, hash)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotApplicable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	if mined || !pending {
		return nil, ErrNotApplicable
	}
	return tx, nil
}

func (e *Engine) mined(ctx context.Context, hash common.Hash) (bool, error) {
	receipt, err := e.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return receipt != nil, nil
}

// watchVictim cancels the attempt once the victim is seen mined
func (e *Engine) watchVictim(ctx context.Context, hash common.Hash, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(e.config.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			mined, err := e.mined(ctx, hash)
			if err != nil {
				continue
			}
			if mined {
				cancel(ErrVictimMined)
				return
			}
		}
	}
}

// ensurePending is the last check before the bundle leaves the process
func (e *Engine) ensurePending(ctx context.Context, hash common.Hash) error {
	if errors.Is(context.Cause(ctx), ErrVictimMined) {
		return ErrVictimMined
	}
	mined, err := e.mined(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChain, err)
	}
	if mined {
		return ErrVictimMined
	}
	return nil
}

// simulate dry-runs the drafts and returns per-leg gas
func (e *Engine) simulate(ctx context.Context, a *Attempt, d *bundle.Drafts, victimRaw []byte, target uint64) ([]uint64, error) {
	front, err := d.Frontrun.MarshalBinary()
	if err != nil {
		return nil, err
	}
	back, err := d.Backrun.MarshalBinary()
	if err != nil {
		return nil, err
	}

	relayCtx, cancel := context.WithTimeout(ctx, e.config.RelayTimeout)
	defer cancel()
	outcome, err := e.relay.SimulateBundle(relayCtx, []hexutil.Bytes{front, victimRaw, back}, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulation, err)
	}
	a.Simulation = outcome

	switch out := outcome.(type) {
	case relay.SimSuccess:
		gas := out.GasUsed()
		if len(gas) != 3 {
			return nil, fmt.Errorf("%w: %d legs in result", ErrSimulation, len(gas))
		}
		return gas, nil
	case relay.SimReverted:
		return nil, fmt.Errorf("%w: %w", ErrSimulation, out)
	case relay.SimFailed:
		return nil, fmt.Errorf("%w: %w", ErrSimulation, out)
	default:
		return nil, fmt.Errorf("%w: unexpected outcome %T", ErrSimulation, outcome)
	}
}

// report logs the attempt at the level its outcome deserves
func (e *Engine) report(a *Attempt) {
	var ev *zerolog.Event
	switch a.Reason {
	case types.ReasonNone:
		ev = log.Info()
	case types.ReasonNotApplicable, types.ReasonBribeVeto:
		ev = log.Trace()
	case types.ReasonNoOpportunity, types.ReasonVictimMined:
		ev = log.Debug()
	case types.ReasonChainError:
		ev = log.Warn()
	case types.ReasonIntegrity:
		ev = log.Error().Bool("defect", true)
	default:
		ev = log.Error()
	}
	if !ev.Enabled() {
		return
	}

	ev = ev.Str("hash", a.Hash.Hex()).
		Str("outcome", a.Reason.String()).
		Str("stage", a.Stage.String()).
		Dur("elapsed", time.Since(a.started))
	if a.Err != nil {
		ev = ev.Err(a.Err)
	}
	if a.Plan != nil {
		ev = ev.Str("pair", a.Plan.Pool.Pair.Hex()).
			Str("reserveIn", ether256(a.Plan.Pool.ReserveIn)).
			Str("reserveOut", a.Plan.Pool.ReserveOut.Dec()).
			Str("optimalIn", ether256(a.Plan.OptimalIn)).
			Str("victimOut", a.Plan.Victim.AmountOut.Dec()).
			Str("revenue", ether(a.Plan.Revenue()))
	}
	if a.Bribe != nil {
		ev = ev.Str("gasCost", ether(a.Bribe.GasCost)).
			Str("priorityFeeGwei", gwei(a.Bribe.PriorityFee))
	}
	if a.Reason == types.ReasonSimulation && a.Simulation != nil {
		ev = ev.Interface("simulation", a.Simulation)
	}
	if a.Bundle != nil {
		ev = ev.Uint64("block", a.Bundle.TargetBlock)
	}
	if a.Reason == types.ReasonNone {
		ev.Str("bundleHash", a.BundleHash.Hex()).Msg("Bundle submitted")
		return
	}
	ev.Msg("Sandwich aborted")
}
