package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altuslabsxyz/txexec/internal/executor"
	"github.com/altuslabsxyz/txexec/internal/types"
)

func submitted(id types.TransactionID, hash common.Hash) *types.Transaction {
	tx := types.NewTransaction(id, &types.Intent{MethodName: "claim"}, nil)
	tx.MarkSubmitted(hash, time.Now())
	tx.OnTransactionResponse(nil)
	return tx
}

func count(t *testing.T, s Store) int {
	t.Helper()
	all, err := s.List(context.Background())
	require.NoError(t, err)
	return len(all)
}

func TestTracker_PersistsThenDeletesOnReceipt(t *testing.T) {
	s := NewMemoryStore()
	tr := NewTracker(s)

	hash := common.HexToHash("0xabc")
	tx := types.NewTransaction(1, &types.Intent{MethodName: "claim"}, nil)
	tr.Track(context.Background(), tx, PendingTransaction{ID: "r1", Method: "claim"})

	assert.Equal(t, 0, count(t, s), "nothing stored before submission")

	tx.MarkSubmitted(hash, time.Now())
	tx.OnTransactionResponse(nil)

	assert.Eventually(t, func() bool { return count(t, s) == 1 }, time.Second, 5*time.Millisecond)
	got, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, hash, got.Hash)

	tx.OnTransactionReceipt(&ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful})
	tr.Wait()
	assert.Equal(t, 0, count(t, s))
}

func TestTracker_PersistsSubmissionAfterCancel(t *testing.T) {
	s := NewMemoryStore()
	tr := NewTracker(s)

	ctx, cancel := context.WithCancel(context.Background())
	tx := types.NewTransaction(1, &types.Intent{MethodName: "claim"}, nil)
	tr.Track(ctx, tx, PendingTransaction{ID: "r1", Method: "claim"})

	// interrupted while the submission call is still in flight
	cancel()
	tx.MarkSubmitted(common.HexToHash("0xabc"), time.Now())
	tx.OnTransactionResponse(nil)
	tr.Wait()

	got, err := s.Get(context.Background(), "r1")
	require.NoError(t, err, "submitted transaction must stay resumable")
	assert.Equal(t, common.HexToHash("0xabc"), got.Hash)
}

func TestTracker_SubmissionFailureStoresNothing(t *testing.T) {
	s := NewMemoryStore()
	tr := NewTracker(s)

	tx := types.NewTransaction(1, &types.Intent{MethodName: "claim"}, nil)
	tr.Track(context.Background(), tx, PendingTransaction{ID: "r1"})
	tx.OnSubmissionError(errors.New("rejected"))
	tx.OnReceiptError(errors.New("rejected"))
	tr.Wait()

	assert.Equal(t, 0, count(t, s))
}

func TestTracker_RevertDeletes(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(context.Background(), &PendingTransaction{ID: "r1"}))
	tr := NewTracker(s)

	tx := submitted(1, common.HexToHash("0x1"))
	tr.TrackPersisted(context.Background(), tx, "r1")
	tx.OnReceiptError(fmt.Errorf("%w: 0x1", executor.ErrReverted))
	tr.Wait()

	assert.Equal(t, 0, count(t, s))
}

func TestTracker_UnknownOutcomeKeepsRecord(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(context.Background(), &PendingTransaction{ID: "r1"}))
	tr := NewTracker(s)

	tx := submitted(1, common.HexToHash("0x1"))
	ctx, cancel := context.WithCancel(context.Background())
	tr.TrackPersisted(ctx, tx, "r1")
	cancel()
	tr.Wait()

	assert.Equal(t, 1, count(t, s))

	tx2 := submitted(2, common.HexToHash("0x2"))
	tr.TrackPersisted(context.Background(), tx2, "r1")
	tx2.OnReceiptError(executor.ErrClosed)
	tr.Wait()
	assert.Equal(t, 1, count(t, s))
}
