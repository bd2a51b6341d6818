package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionID identifies a transaction record for the lifetime of an executor.
type TransactionID uint64

// Contract is the on-chain target of an intent.
// *ethconn.Contract satisfies it by wrapping a go-ethereum BoundContract.
type Contract interface {
	Address() common.Address
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
}

// ArgsResolver produces the call arguments for an intent. Building them may
// be expensive (hashing, proofs) so it runs on the worker, not at queue time.
type ArgsResolver func(ctx context.Context) ([]interface{}, error)

// StaticArgs returns a resolver for arguments that are already known.
func StaticArgs(args ...interface{}) ArgsResolver {
	return func(context.Context) ([]interface{}, error) {
		return args, nil
	}
}

// Intent describes a contract call the caller would like to make.
// The executor treats it as immutable.
type Intent struct {
	Contract   Contract
	MethodName string
	Args       ArgsResolver
}

// To returns the target contract address, or the zero address when the
// intent has no contract.
func (i *Intent) To() common.Address {
	if i == nil || i.Contract == nil {
		return common.Address{}
	}
	return i.Contract.Address()
}

// Overrides adjusts the transaction options used for a single submission.
// Zero values mean "not set".
type Overrides struct {
	GasPrice *big.Int
	GasLimit uint64
	Value    *big.Int
}

// Merge returns base with every field set in o taking precedence.
func (o *Overrides) Merge(base Overrides) Overrides {
	merged := base.Copy()
	if o == nil {
		return merged
	}
	if o.GasPrice != nil {
		merged.GasPrice = new(big.Int).Set(o.GasPrice)
	}
	if o.GasLimit != 0 {
		merged.GasLimit = o.GasLimit
	}
	if o.Value != nil {
		merged.Value = new(big.Int).Set(o.Value)
	}
	return merged
}

// Copy returns a deep copy of o.
func (o Overrides) Copy() Overrides {
	c := Overrides{GasLimit: o.GasLimit}
	if o.GasPrice != nil {
		c.GasPrice = new(big.Int).Set(o.GasPrice)
	}
	if o.Value != nil {
		c.Value = new(big.Int).Set(o.Value)
	}
	return c
}

// PersistedTransaction is a transaction that was submitted in an earlier
// session and is only awaiting its receipt.
type PersistedTransaction struct {
	Intent *Intent
	Hash   common.Hash
}
