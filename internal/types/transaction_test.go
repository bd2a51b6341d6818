package types

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContract struct{}

func (stubContract) Address() common.Address { return common.Address{} }

func (stubContract) Transact(*bind.TransactOpts, string, ...interface{}) (*ethtypes.Transaction, error) {
	return nil, errors.New("not implemented")
}

func TestNewTransaction_Init(t *testing.T) {
	overrides := &Overrides{GasPrice: big.NewInt(7)}
	tx := NewTransaction(42, &Intent{MethodName: "move"}, overrides)

	assert.Equal(t, TransactionID(42), tx.ID)
	assert.Equal(t, StateInit, tx.State())
	assert.Equal(t, common.Hash{}, tx.Hash())
	assert.False(t, tx.LastUpdatedAt().IsZero())

	// the record keeps its own copy of the overrides
	overrides.GasPrice.SetInt64(100)
	assert.Equal(t, int64(7), tx.Overrides().GasPrice.Int64())
}

func TestTransaction_MarkSubmitted(t *testing.T) {
	tx := NewTransaction(1, &Intent{MethodName: "move"}, nil)
	at := time.Now().Add(time.Second)
	hash := common.HexToHash("0xabc")

	tx.MarkSubmitted(hash, at)

	assert.Equal(t, StateSubmit, tx.State())
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, at, tx.LastUpdatedAt())
}

func TestTransaction_CallbacksSettleOnce(t *testing.T) {
	tx := NewTransaction(1, &Intent{MethodName: "move"}, nil)
	resp := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 3})

	require.True(t, tx.OnTransactionResponse(resp))
	require.False(t, tx.OnSubmissionError(errors.New("late")))

	got, err := tx.Submitted().Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, resp, got)

	boom := errors.New("boom")
	require.True(t, tx.OnReceiptError(boom))
	require.False(t, tx.OnTransactionReceipt(&ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}))

	_, err = tx.Confirmed().Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok, _ := f.Result()
	assert.False(t, ok)

	f.Resolve(5)
	v, ok, err := f.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 5, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done not closed after Resolve")
	}
}

func TestState_IsTerminal(t *testing.T) {
	terminal := []State{StateConfirm, StateFail, StateCancel}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StateInit, StateProcessing, StatePrioritized, StateSubmit} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestOverrides_Merge(t *testing.T) {
	defaults := Overrides{GasLimit: 2_000_000, GasPrice: big.NewInt(1)}

	var none *Overrides
	merged := none.Merge(defaults)
	assert.Equal(t, uint64(2_000_000), merged.GasLimit)
	assert.Equal(t, int64(1), merged.GasPrice.Int64())

	o := &Overrides{GasPrice: big.NewInt(9), Value: big.NewInt(3)}
	merged = o.Merge(defaults)
	assert.Equal(t, uint64(2_000_000), merged.GasLimit)
	assert.Equal(t, int64(9), merged.GasPrice.Int64())
	assert.Equal(t, int64(3), merged.Value.Int64())

	// defaults are not mutated through the merged copy
	merged.GasPrice.SetInt64(50)
	assert.Equal(t, int64(1), defaults.GasPrice.Int64())
}
