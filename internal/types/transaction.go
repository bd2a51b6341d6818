package types

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Transaction is one intent travelling through the executor, from queueing
// to a terminal state. Observers read it concurrently; only the executor
// (or whoever wrapped an already-submitted transaction) drives it.
type Transaction struct {
	// ID is assigned at creation and never changes.
	ID TransactionID

	// Intent is the call this transaction performs.
	Intent *Intent

	mu                  sync.RWMutex
	state               State
	hash                common.Hash
	lastUpdatedAt       time.Time
	overrides           Overrides
	autoGasPriceSetting AutoGasSetting

	submitted *Future[*ethtypes.Transaction]
	confirmed *Future[*ethtypes.Receipt]
}

// NewTransaction returns a record in the Init state with fresh futures.
func NewTransaction(id TransactionID, intent *Intent, overrides *Overrides) *Transaction {
	tx := &Transaction{
		ID:            id,
		Intent:        intent,
		state:         StateInit,
		lastUpdatedAt: time.Now(),
		submitted:     NewFuture[*ethtypes.Transaction](),
		confirmed:     NewFuture[*ethtypes.Receipt](),
	}
	if overrides != nil {
		tx.overrides = overrides.Copy()
	}
	return tx
}

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SetState moves the record to s and stamps lastUpdatedAt.
func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	t.lastUpdatedAt = time.Now()
}

// Hash returns the chain hash, or the zero hash before submission.
func (t *Transaction) Hash() common.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hash
}

// MarkSubmitted records the hash and moves the record to Submit.
func (t *Transaction) MarkSubmitted(hash common.Hash, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hash = hash
	t.state = StateSubmit
	t.lastUpdatedAt = at
}

// LastUpdatedAt returns the time of the most recent state transition.
func (t *Transaction) LastUpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastUpdatedAt
}

// Overrides returns a copy of the per-transaction overrides.
func (t *Transaction) Overrides() Overrides {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.overrides.Copy()
}

// SetOverrides replaces the overrides. It has no effect on a transaction
// that has already been submitted.
func (t *Transaction) SetOverrides(o Overrides) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrides = o.Copy()
}

// AutoGasPriceSetting returns the gas setting resolved at queue time.
func (t *Transaction) AutoGasPriceSetting() AutoGasSetting {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.autoGasPriceSetting
}

// SetAutoGasPriceSetting records the gas setting.
func (t *Transaction) SetAutoGasPriceSetting(s AutoGasSetting) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoGasPriceSetting = s
}

// Submitted settles when the transaction reaches the mempool or fails to.
func (t *Transaction) Submitted() *Future[*ethtypes.Transaction] {
	return t.submitted
}

// Confirmed settles when the transaction is mined, reverts, or can no
// longer be confirmed.
func (t *Transaction) Confirmed() *Future[*ethtypes.Receipt] {
	return t.confirmed
}

// OnTransactionResponse resolves the submission future.
func (t *Transaction) OnTransactionResponse(resp *ethtypes.Transaction) bool {
	return t.submitted.Resolve(resp)
}

// OnSubmissionError rejects the submission future.
func (t *Transaction) OnSubmissionError(err error) bool {
	return t.submitted.Reject(err)
}

// OnTransactionReceipt resolves the confirmation future.
func (t *Transaction) OnTransactionReceipt(receipt *ethtypes.Receipt) bool {
	return t.confirmed.Resolve(receipt)
}

// OnReceiptError rejects the confirmation future.
func (t *Transaction) OnReceiptError(err error) bool {
	return t.confirmed.Reject(err)
}
