// Package rpc pools node connections and exposes the chain reads the
// sandwich pipeline needs, each bounded by a per-call deadline.
package rpc

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/rs/zerolog/log"
)

// Config for RPC pool
type Config struct {
	Endpoints           []string
	RequestTimeout      time.Duration
	HealthCheckInterval time.Duration
}

// Client wraps an eth client with metadata
type Client struct {
	*ethclient.Client
	geth     *gethclient.Client
	endpoint string
	latency  time.Duration
	healthy  bool
}

// Pool manages multiple RPC connections
type Pool struct {
	config  Config
	clients []*Client
	mu      sync.RWMutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPool creates a new RPC pool
func NewPool(cfg Config) *Pool {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	return &Pool{
		config:  cfg,
		clients: make([]*Client, 0, len(cfg.Endpoints)),
		done:    make(chan struct{}),
	}
}

// Start connects to every endpoint. It fails only when none is reachable.
func (p *Pool) Start(ctx context.Context) error {
	log.Info().Int("endpoints", len(p.config.Endpoints)).Msg("Starting RPC pool")

	for _, endpoint := range p.config.Endpoints {
		client, err := p.connect(ctx, endpoint)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to connect")
			continue
		}
		p.Add(endpoint, client, 0)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) == 0 {
		return ErrNoClients
	}
	p.running = true

	p.wg.Add(1)
	go p.healthCheckLoop(ctx)
	return nil
}

// Stop closes all connections
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		close(p.done)
	}
	p.running = false
	clients := p.clients
	p.clients = nil
	p.mu.Unlock()

	log.Info().Msg("Stopping RPC pool")

	p.wg.Wait()
	for _, client := range clients {
		client.Close()
	}
}

// Add registers an already dialed client
func (p *Pool) Add(endpoint string, ec *ethclient.Client, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = append(p.clients, &Client{
		Client:   ec,
		geth:     gethclient.New(ec.Client()),
		endpoint: endpoint,
		latency:  latency,
		healthy:  true,
	})
}

// GetClient returns the healthy client with the lowest latency, or any
// client when none is healthy
func (p *Pool) GetClient() (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.clients) == 0 {
		return nil, ErrNoClients
	}

	var best *Client
	for _, c := range p.clients {
		if !c.healthy {
			continue
		}
		if best == nil || c.latency < best.latency {
			best = c
		}
	}
	if best == nil {
		return p.clients[0], nil
	}
	return best, nil
}

func (p *Pool) connect(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	start := time.Now()
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("endpoint", endpoint).
		Dur("latency", time.Since(start)).
		Msg("Connected to RPC")

	return client, nil
}

func (p *Pool) healthCheckLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.done:
			return

		case <-ticker.C:
			p.checkHealth(ctx)
		}
	}
}

type probe struct {
	client  *Client
	err     error
	latency time.Duration
}

// checkHealth probes every client without holding the pool lock
func (p *Pool) checkHealth(ctx context.Context) {
	p.mu.RLock()
	clients := append([]*Client(nil), p.clients...)
	p.mu.RUnlock()

	probes := make([]probe, 0, len(clients))
	for _, client := range clients {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		_, err := client.BlockNumber(checkCtx)
		cancel()
		probes = append(probes, probe{client: client, err: err, latency: time.Since(start)})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range probes {
		if pr.err != nil {
			pr.client.healthy = false
			log.Warn().
				Str("endpoint", pr.client.endpoint).
				Err(pr.err).
				Msg("RPC health check failed")
			continue
		}
		pr.client.healthy = true
		pr.client.latency = pr.latency
	}
}

// Healthy reports whether at least one client passed its last check
func (p *Pool) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		if c.healthy {
			return true
		}
	}
	return false
}

// Custom errors
type PoolError string

func (e PoolError) Error() string { return string(e) }

const (
	ErrNoClients PoolError = "no RPC clients available"
)

// withTimeout runs fn against the best client under the per-call deadline
func withTimeout[T any](ctx context.Context, p *Pool, fn func(context.Context, *Client) (T, error)) (T, error) {
	client, err := p.GetClient()
	if err != nil {
		var zero T
		return zero, err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()
	return fn(callCtx, client)
}

// TransactionByHash fetches a transaction. ethereum.NotFound is returned
// for unknown hashes.
func (p *Pool) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	type result struct {
		tx      *types.Transaction
		pending bool
	}
	r, err := withTimeout(ctx, p, func(ctx context.Context, c *Client) (result, error) {
		tx, pending, err := c.TransactionByHash(ctx, hash)
		return result{tx, pending}, err
	})
	return r.tx, r.pending, err
}

// TransactionReceipt returns ethereum.NotFound while the transaction is
// not mined
func (p *Pool) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return withTimeout(ctx, p, func(ctx context.Context, c *Client) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, hash)
	})
}

// HeaderByNumber returns the latest header when number is nil
func (p *Pool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withTimeout(ctx, p, func(ctx context.Context, c *Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

// PendingNonceAt returns the account nonce including pending transactions
func (p *Pool) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withTimeout(ctx, p, func(ctx context.Context, c *Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

// CallContract executes a read-only call
func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return withTimeout(ctx, p, func(ctx context.Context, c *Client) ([]byte, error) {
		return c.CallContract(ctx, msg, block)
	})
}

// ChainID of the connected network
func (p *Pool) ChainID(ctx context.Context) (*big.Int, error) {
	return withTimeout(ctx, p, func(ctx context.Context, c *Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
}

// SubscribePendingTransactions streams pending transaction hashes. The
// subscription lives until ctx ends or it is unsubscribed.
func (p *Pool) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	client, err := p.GetClient()
	if err != nil {
		return nil, err
	}
	sub, err := client.geth.SubscribePendingTransactions(ctx, ch)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SubscribeNewHead streams new chain heads
func (p *Pool) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	client, err := p.GetClient()
	if err != nil {
		return nil, err
	}
	return client.SubscribeNewHead(ctx, ch)
}
