// Package nonce hands out account nonces to concurrently executing transactions.
package nonce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultStaleAfter is how long after the last send the in-memory nonce is
// trusted when multiple wallets may share the account.
const DefaultStaleAfter = 5 * time.Second

// Source fetches the authoritative nonce for the account.
type Source interface {
	GetNonce(ctx context.Context) (uint64, error)
}

// Manager serialises nonce allocation. Callers take the lock with Acquire,
// read the next nonce with Next, hand it to the submission call and then
// release. Reset clears the cached nonce so the next Next refreshes it.
type Manager struct {
	source Source
	logger *slog.Logger

	// lock is a weight-1 semaphore; waiters are served in FIFO order
	lock *semaphore.Weighted

	// guarded by lock
	nonce    uint64
	hasNonce bool
	lastSent time.Time

	multipleWallets bool
	staleAfter      time.Duration
	now             func() time.Time

	// peekMu lets Peek read without taking the allocation lock
	peekMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithMultipleWallets toggles the staleness refresh. When enabled the
// nonce is refetched if nothing was sent for StaleAfter, so another client
// signing for the same address cannot leave us behind.
func WithMultipleWallets(enabled bool) Option {
	return func(m *Manager) {
		m.multipleWallets = enabled
	}
}

// WithStaleAfter overrides DefaultStaleAfter.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		m.staleAfter = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager backed by source. Multi-wallet support is
// on by default.
func NewManager(source Source, opts ...Option) *Manager {
	m := &Manager{
		source:          source,
		logger:          slog.Default(),
		lock:            semaphore.NewWeighted(1),
		multipleWallets: true,
		staleAfter:      DefaultStaleAfter,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSent = m.now()
	return m
}

// Acquire blocks until the caller holds the allocation lock or ctx is done.
// The returned release func may be called more than once.
func (m *Manager) Acquire(ctx context.Context) (release func(), err error) {
	if err := m.lock.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire nonce lock: %w", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() { m.lock.Release(1) })
	}, nil
}

// Next returns the nonce to use for the next submission and advances the
// in-memory counter. The caller must hold the lock.
//
// The nonce is refreshed from the source when unset, or when multi-wallet
// support is on and nothing was sent for StaleAfter. A refresh never moves
// the counter backwards past a nonce already handed out.
func (m *Manager) Next(ctx context.Context) (uint64, error) {
	refresh := !m.hasNonce ||
		(m.multipleWallets && m.now().Sub(m.lastSent) > m.staleAfter)

	if refresh {
		chainNonce, err := m.source.GetNonce(ctx)
		if err != nil {
			return 0, fmt.Errorf("refresh nonce: %w", err)
		}
		local := uint64(0)
		if m.hasNonce {
			local = m.nonce
		}
		next := max(chainNonce, local)
		m.logger.Debug("nonce refreshed", "chain", chainNonce, "local", local, "next", next)
		m.set(next, true)
	}

	n := m.nonce
	m.set(n+1, true)
	return n, nil
}

// MarkSent records that a transaction was just sent. The caller must hold the lock.
func (m *Manager) MarkSent(at time.Time) {
	m.lastSent = at
}

// Reset clears the cached nonce under the lock, forcing the next call to
// Next to refresh from the source.
func (m *Manager) Reset(ctx context.Context) error {
	release, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.set(0, false)
	m.logger.Debug("nonce reset")
	return nil
}

// Peek returns the next nonce that would be handed out without a refresh.
// ok is false when the nonce is unset.
func (m *Manager) Peek() (nonce uint64, ok bool) {
	m.peekMu.Lock()
	defer m.peekMu.Unlock()
	return m.nonce, m.hasNonce
}

func (m *Manager) set(n uint64, ok bool) {
	m.peekMu.Lock()
	defer m.peekMu.Unlock()
	m.nonce = n
	m.hasNonce = ok
}
