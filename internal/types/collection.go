package types

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Predicate selects transactions from a Collection.
type Predicate func(*Transaction) bool

// Collection is an insertion-ordered set of transactions owned by some
// entity, such as a planet. It is safe for concurrent use.
type Collection struct {
	mu           sync.RWMutex
	transactions []*Transaction
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// AddTransaction appends tx.
func (c *Collection) AddTransaction(tx *Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions = append(c.transactions, tx)
}

// RemoveTransaction removes the first entry that is tx itself.
// Removing a transaction that is not present is a no-op.
func (c *Collection) RemoveTransaction(tx *Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.transactions {
		if existing == tx {
			c.transactions = append(c.transactions[:i], c.transactions[i+1:]...)
			return
		}
	}
}

// GetTransactions returns every transaction matching pred in insertion order.
func (c *Collection) GetTransactions(pred Predicate) []*Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Transaction
	for _, tx := range c.transactions {
		if pred(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// HasTransaction reports whether any transaction matches pred.
func (c *Collection) HasTransaction(pred Predicate) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tx := range c.transactions {
		if pred(tx) {
			return true
		}
	}
	return false
}

// Len returns the number of transactions held.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.transactions)
}

// ByMethod matches transactions calling the named contract method.
func ByMethod(name string) Predicate {
	return func(tx *Transaction) bool {
		return tx.Intent != nil && tx.Intent.MethodName == name
	}
}

// ByContract matches transactions targeting addr.
func ByContract(addr common.Address) Predicate {
	return func(tx *Transaction) bool {
		return tx.Intent.To() == addr
	}
}

// ByState matches transactions currently in any of states.
func ByState(states ...State) Predicate {
	return func(tx *Transaction) bool {
		s := tx.State()
		for _, want := range states {
			if s == want {
				return true
			}
		}
		return false
	}
}

// Pending matches transactions that have not reached a terminal state.
func Pending() Predicate {
	return func(tx *Transaction) bool {
		return !tx.State().IsTerminal()
	}
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(tx *Transaction) bool {
		for _, p := range preds {
			if !p(tx) {
				return false
			}
		}
		return true
	}
}
