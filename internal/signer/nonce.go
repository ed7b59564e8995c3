package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// NonceSource reads the account's next nonce from the chain
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceAllocator hands out contiguous nonce ranges so that concurrent
// attempts never sign with the same nonce.
type NonceAllocator struct {
	source  NonceSource
	account common.Address

	mu          sync.Mutex
	next        uint64
	synced      bool
	head        uint64
	outstanding map[uint64]uint64 // first -> count

	// submitted ranges stay held until a head at or past their target
	committed map[uint64]committedRange
}

type committedRange struct {
	end    uint64
	target uint64
}

// Lease is a reserved nonce range
type Lease struct {
	First uint64
	Count uint64

	alloc *NonceAllocator
	done  bool
}

// NewNonceAllocator creates an allocator for account
func NewNonceAllocator(source NonceSource, account common.Address) *NonceAllocator {
	return &NonceAllocator{
		source:      source,
		account:     account,
		outstanding: make(map[uint64]uint64),
		committed:   make(map[uint64]committedRange),
	}
}

// Sync reloads the pending nonce from the chain after head. Ranges still
// held by in-flight attempts, or submitted for a block after head, are never
// handed out again. A zero head keeps the last one seen.
func (a *NonceAllocator) Sync(ctx context.Context, head uint64) error {
	chainNonce, err := a.source.PendingNonceAt(ctx, a.account)
	if err != nil {
		return fmt.Errorf("pending nonce: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if head > a.head {
		a.head = head
	}
	next := chainNonce
	for first, count := range a.outstanding {
		if end := first + count; end > next {
			next = end
		}
	}
	for first, c := range a.committed {
		if c.target <= a.head {
			delete(a.committed, first)
			continue
		}
		if c.end > next {
			next = c.end
		}
	}
	if a.synced && next != a.next {
		log.Debug().Uint64("from", a.next).Uint64("to", next).Msg("Nonce resynced")
	}
	a.next = next
	a.synced = true
	return nil
}

// Reserve takes the next n nonces
func (a *NonceAllocator) Reserve(ctx context.Context, n uint64) (*Lease, error) {
	a.mu.Lock()
	synced := a.synced
	a.mu.Unlock()
	if !synced {
		if err := a.Sync(ctx, 0); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	lease := &Lease{First: a.next, Count: n, alloc: a}
	a.next += n
	a.outstanding[lease.First] = n
	return lease, nil
}

// Next returns the nonce the next reservation would start at
func (a *NonceAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Release gives the range back for an attempt that never reached the relay.
// Only the most recent reservation can be rewound; earlier ones leave a gap
// that the next Sync closes.
func (l *Lease) Release() {
	a := l.alloc
	a.mu.Lock()
	defer a.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	delete(a.outstanding, l.First)
	if l.First+l.Count == a.next {
		a.next = l.First
	}
}

// Commit marks the range as used by a bundle for target. The range stays
// reserved until Sync sees a head at or past target.
func (l *Lease) Commit(target uint64) {
	a := l.alloc
	a.mu.Lock()
	defer a.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	delete(a.outstanding, l.First)
	if target > a.head {
		a.committed[l.First] = committedRange{end: l.First + l.Count, target: target}
	}
}
