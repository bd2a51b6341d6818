package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/altuslabsxyz/txexec/internal/executor"
	"github.com/altuslabsxyz/txexec/internal/types"
)

// Tracker keeps the store in step with live transactions: a record is
// written once a transaction reaches the network and removed once its
// outcome is known. Records of transactions still pending when the
// tracking context ends are kept for a later resume.
type Tracker struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewTracker creates a tracker writing to s.
func NewTracker(s Store) *Tracker {
	return &Tracker{store: s, logger: slog.Default()}
}

// SetLogger sets the logger.
func (t *Tracker) SetLogger(logger *slog.Logger) {
	t.logger = logger
}

// Track persists rec for tx after submission. Hash is filled from tx.
// The submission is awaited even after ctx ends, so tx must come from an
// executor that settles every submission future.
func (t *Tracker) Track(ctx context.Context, tx *types.Transaction, rec PendingTransaction) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		// an attempt in flight when ctx ends may still reach the network
		persistCtx := context.WithoutCancel(ctx)
		if _, err := tx.Submitted().Wait(persistCtx); err != nil {
			return
		}
		rec.Hash = tx.Hash()
		if err := t.store.Put(persistCtx, &rec); err != nil {
			t.logger.Error("failed to persist pending transaction", "id", tx.ID, "hash", rec.Hash.Hex(), "error", err)
			return
		}
		t.logger.Debug("pending transaction persisted", "record", rec.ID, "hash", rec.Hash.Hex())
		t.settle(ctx, tx, rec.ID)
	}()
}

// TrackPersisted removes the stored record id once tx settles.
func (t *Tracker) TrackPersisted(ctx context.Context, tx *types.Transaction, id string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.settle(ctx, tx, id)
	}()
}

func (t *Tracker) settle(ctx context.Context, tx *types.Transaction, id string) {
	_, err := tx.Confirmed().Wait(ctx)
	if err != nil && !errors.Is(err, executor.ErrReverted) {
		// outcome unknown, keep the record
		return
	}
	if err := t.store.Delete(context.WithoutCancel(ctx), id); err != nil && !IsNotFound(err) {
		t.logger.Error("failed to delete pending transaction", "record", id, "error", err)
	}
}

// Wait blocks until every tracked transaction has been handled.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
