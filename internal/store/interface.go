// Package store persists submitted transactions that have not been
// confirmed yet, so a later session can wait for them.
package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PendingTransaction is a submitted transaction awaiting its receipt.
type PendingTransaction struct {
	ID          string         `json:"id"`
	Hash        common.Hash    `json:"hash"`
	Contract    common.Address `json:"contract"`
	ABIPath     string         `json:"abi_path,omitempty"`
	Method      string         `json:"method"`
	Args        []string       `json:"args,omitempty"`
	RPCEndpoint string         `json:"rpc_endpoint,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store defines pending transaction persistence.
type Store interface {
	// Put creates or replaces the record with p.ID.
	Put(ctx context.Context, p *PendingTransaction) error
	Get(ctx context.Context, id string) (*PendingTransaction, error)
	Delete(ctx context.Context, id string) error
	// List returns all records, oldest first.
	List(ctx context.Context) ([]*PendingTransaction, error)
	Close() error
}
