package ethconn

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altuslabsxyz/txexec/internal/types"
)

// fakeBackend implements the methods Client calls; anything else panics
// through the nil embedded interface.
type fakeBackend struct {
	bind.ContractBackend

	mu           sync.Mutex
	chainID      *big.Int
	chainErr     error
	nonce        uint64
	nonceAddr    common.Address
	gasPrice     *big.Int
	gasErr       error
	receiptAfter int
	receiptCalls int
	receiptErr   error
	closed       bool
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.chainID, b.chainErr
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nonceAddr = account
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gasPrice, b.gasErr
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiptCalls++
	if b.receiptErr != nil && b.receiptCalls == 1 {
		return nil, b.receiptErr
	}
	if b.receiptCalls <= b.receiptAfter {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{TxHash: hash, Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

var account = common.HexToAddress("0x1111111111111111111111111111111111111111")

func connected(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	if b.chainID == nil {
		b.chainID = big.NewInt(1337)
	}
	c := NewClient("http://localhost:8545", account, WithBackend(b), WithPollInterval(5*time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestClient_Connect(t *testing.T) {
	c := connected(t, &fakeBackend{chainID: big.NewInt(10)})
	assert.Equal(t, int64(10), c.ChainID().Int64())
	assert.Equal(t, "http://localhost:8545", c.RPCEndpoint())
	assert.Equal(t, account, c.Address())
}

func TestClient_ConnectFailsOnChainID(t *testing.T) {
	b := &fakeBackend{chainErr: errors.New("nope")}
	c := NewClient("http://localhost:8545", account, WithBackend(b))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, b.closed)

	_, err = c.GetNonce(context.Background())
	assert.Error(t, err)
}

func TestClient_GetNonceUsesPendingNonce(t *testing.T) {
	b := &fakeBackend{nonce: 12}
	c := connected(t, b)

	n, err := c.GetNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n)
	assert.Equal(t, account, b.nonceAddr)
}

func TestClient_WaitForTransactionPolls(t *testing.T) {
	b := &fakeBackend{receiptAfter: 3, receiptErr: errors.New("connection reset")}
	c := connected(t, b)

	hash := common.HexToHash("0xabc")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := c.WaitForTransaction(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
	assert.Equal(t, 4, b.receiptCalls)
}

func TestClient_WaitForTransactionHonoursContext(t *testing.T) {
	b := &fakeBackend{receiptAfter: 1 << 30}
	c := connected(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.WaitForTransaction(ctx, common.HexToHash("0x1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_GasPrices(t *testing.T) {
	b := &fakeBackend{gasPrice: gwei(5)}
	c := connected(t, b)

	assert.Equal(t, types.DefaultGasPrices, c.GasPrices(), "defaults before the first refresh")
	assert.True(t, c.GasPricesUpdatedAt().IsZero())

	require.NoError(t, c.RefreshGasPrices(context.Background()))
	p := c.GasPrices()
	assert.InDelta(t, 4.0, p.Slow, 1e-9)
	assert.InDelta(t, 5.0, p.Average, 1e-9)
	assert.InDelta(t, 6.0, p.Fast, 1e-9)
	assert.False(t, c.GasPricesUpdatedAt().IsZero())
}

func TestClient_GasPricesCapped(t *testing.T) {
	b := &fakeBackend{gasPrice: gwei(18)}
	c := connected(t, b)

	require.NoError(t, c.RefreshGasPrices(context.Background()))
	p := c.GasPrices()
	assert.InDelta(t, 14.4, p.Slow, 1e-9)
	assert.Equal(t, float64(types.MaxAutoGasPriceGwei), p.Average)
	assert.Equal(t, float64(types.MaxAutoGasPriceGwei), p.Fast)
}

func TestClient_RefreshFailureKeepsPrices(t *testing.T) {
	b := &fakeBackend{gasPrice: gwei(2)}
	c := connected(t, b)
	require.NoError(t, c.RefreshGasPrices(context.Background()))

	b.mu.Lock()
	b.gasErr = errors.New("rate limited")
	b.mu.Unlock()

	assert.Error(t, c.RefreshGasPrices(context.Background()))
	assert.InDelta(t, 2.0, c.GasPrices().Average, 1e-9)
}

func TestClient_RunGasPriceUpdater(t *testing.T) {
	b := &fakeBackend{gasPrice: gwei(7)}
	c := connected(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunGasPriceUpdater(ctx, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return c.GasPrices().Average == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
}

func TestClient_Close(t *testing.T) {
	b := &fakeBackend{}
	c := connected(t, b)
	require.NoError(t, c.Close())
	assert.True(t, b.closed)
	assert.Nil(t, c.Backend())
	require.NoError(t, c.Close())
}
