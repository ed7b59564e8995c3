// Package mempool turns the node's pending-transaction feed into a bounded
// queue of hashes drained by a fixed worker pool.
package mempool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

// Config for mempool monitor
type Config struct {
	BufferSize     int
	Workers        int
	ReconnectDelay time.Duration
}

// Source delivers pending hashes and new heads
type Source interface {
	SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Recorder receives queue statistics
type Recorder interface {
	PendingSeen()
	PendingDropped()
	QueueDepth(n int)
}

// PendingTx is a queued pending transaction hash
type PendingTx struct {
	Hash      common.Hash
	Timestamp time.Time
}

// Handler evaluates one pending transaction. Each call runs on a worker.
type Handler func(ctx context.Context, tx *PendingTx)

// HeadHandler is called for every new chain head, in order
type HeadHandler func(ctx context.Context, head *types.Header)

// Monitor watches the mempool for pending transactions
type Monitor struct {
	config   Config
	source   Source
	handler  Handler
	onHead   []HeadHandler
	recorder Recorder

	txChan    chan *PendingTx
	seen      mapset.Set[common.Hash]
	processed atomic.Uint64

	mu      sync.RWMutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a new mempool monitor
func NewMonitor(cfg Config, source Source, handler Handler, recorder Recorder) *Monitor {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10_000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	return &Monitor{
		config:   cfg,
		source:   source,
		handler:  handler,
		recorder: recorder,
		txChan:   make(chan *PendingTx, cfg.BufferSize),
		seen:     mapset.NewSet[common.Hash](),
		done:     make(chan struct{}),
	}
}

// OnHead registers fn to run on every new head. Must be called before Start.
func (m *Monitor) OnHead(fn HeadHandler) {
	m.onHead = append(m.onHead, fn)
}

// Start begins monitoring the mempool
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	log.Info().Int("workers", m.config.Workers).Int("buffer", m.config.BufferSize).Msg("Starting mempool monitor")

	m.wg.Add(3 + m.config.Workers)
	go m.subscribeLoop(ctx, m.subscribePending)
	go m.subscribeLoop(ctx, m.subscribeHeads)
	go m.statsLoop(ctx)
	for i := 0; i < m.config.Workers; i++ {
		go m.worker(ctx)
	}
	return nil
}

// Stop gracefully stops the monitor. Queued hashes are discarded.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		close(m.done)
	}
	m.running = false
	m.mu.Unlock()

	log.Info().Msg("Stopping mempool monitor")

	stopped := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		log.Warn().Msg("Mempool workers still busy at shutdown")
	}
}

// Enqueue offers a hash to the worker pool. Duplicates since the last head
// are ignored and a full queue drops the hash.
func (m *Monitor) Enqueue(hash common.Hash) bool {
	if !m.seen.Add(hash) {
		return false
	}
	m.record(func(r Recorder) { r.PendingSeen() })

	select {
	case m.txChan <- &PendingTx{Hash: hash, Timestamp: time.Now()}:
		m.record(func(r Recorder) { r.QueueDepth(len(m.txChan)) })
		return true
	default:
		m.record(func(r Recorder) { r.PendingDropped() })
		log.Warn().Str("hash", hash.Hex()).Msg("Tx channel full, dropping transaction")
		return false
	}
}

func (m *Monitor) record(fn func(Recorder)) {
	if m.recorder != nil {
		fn(m.recorder)
	}
}

func (m *Monitor) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Monitor) subscribeLoop(ctx context.Context, subscribe func(context.Context) error) {
	defer m.wg.Done()

	for !m.stopped(ctx) {
		if err := subscribe(ctx); err != nil && !m.stopped(ctx) {
			log.Error().Err(err).Msg("Subscription error, reconnecting...")
			select {
			case <-ctx.Done():
			case <-m.done:
			case <-time.After(m.config.ReconnectDelay):
			}
		}
	}
}

func (m *Monitor) subscribePending(ctx context.Context) error {
	hashes := make(chan common.Hash, 1024)
	sub, err := m.source.SubscribePendingTransactions(ctx, hashes)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Info().Msg("Subscribed to pending transactions")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.done:
			return nil

		case err := <-sub.Err():
			return err

		case hash := <-hashes:
			m.Enqueue(hash)
		}
	}
}

func (m *Monitor) subscribeHeads(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := m.source.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Info().Msg("Subscribed to new heads")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.done:
			return nil

		case err := <-sub.Err():
			return err

		case head := <-heads:
			m.seen.Clear()
			log.Debug().Uint64("block", head.Number.Uint64()).Msg("New head")
			for _, fn := range m.onHead {
				fn(ctx, head)
			}
		}
	}
}

func (m *Monitor) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case <-m.done:
			return

		case tx := <-m.txChan:
			m.record(func(r Recorder) { r.QueueDepth(len(m.txChan)) })
			m.handler(ctx, tx)
			m.processed.Add(1)
		}
	}
}

func (m *Monitor) statsLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-m.done:
			return

		case <-ticker.C:
			if count := m.processed.Swap(0); count > 0 {
				log.Info().Uint64("txs", count).Int("queued", len(m.txChan)).Msg("Transactions processed")
			}
		}
	}
}
