package executor

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/altuslabsxyz/txexec/internal/nonce"
	"github.com/altuslabsxyz/txexec/internal/types"
)

// Connection is the chain access the executor needs.
// *ethconn.Client implements it.
type Connection interface {
	nonce.Source

	// WaitForTransaction blocks until the transaction is mined.
	WaitForTransaction(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)

	// GasPrices returns the latest auto tier prices in gwei.
	GasPrices() types.GasPrices

	RPCEndpoint() string
	Address() common.Address
}

// GasPriceSettingProvider picks the gas setting for a transaction that has
// no explicit gas price: an auto tier or a gwei amount as a string.
type GasPriceSettingProvider func(tx *types.Transaction) types.AutoGasSetting

// StaticGasSetting always returns s.
func StaticGasSetting(s types.AutoGasSetting) GasPriceSettingProvider {
	return func(*types.Transaction) types.AutoGasSetting {
		return s
	}
}

// BeforeQueued runs before a transaction record exists. Returning an error
// vetoes the intent; QueueTransaction returns that error unchanged.
type BeforeQueued func(ctx context.Context, id types.TransactionID, intent *types.Intent, overrides *types.Overrides) error

// BeforeTransaction runs on the worker before a nonce is taken. Returning
// an error fails the transaction.
type BeforeTransaction func(ctx context.Context, tx *types.Transaction) error

// AfterTransaction receives every finished attempt with its network event.
type AfterTransaction func(tx *types.Transaction, event NetworkEvent)
