// Package ethconn connects the executor to an EVM JSON-RPC endpoint.
package ethconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/altuslabsxyz/txexec/internal/types"
)

const (
	// DefaultPollInterval is how often receipts are polled.
	DefaultPollInterval = 2 * time.Second

	// DefaultGasRefreshInterval is how often gas tiers are refreshed.
	DefaultGasRefreshInterval = 60 * time.Second
)

// Tier multipliers applied to the node's suggested gas price.
const (
	slowMultiplier    = 0.8
	averageMultiplier = 1.0
	fastMultiplier    = 1.2
)

// Backend is the part of *ethclient.Client the connection uses.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// Client is a connection for one signing account.
type Client struct {
	rpcURL       string
	address      common.Address
	backend      Backend
	chainID      *big.Int
	pollInterval time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	prices   types.GasPrices
	pricesAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBackend uses b instead of dialling rpcURL.
func WithBackend(b Backend) Option {
	return func(c *Client) {
		c.backend = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for address. Call Connect before use.
func NewClient(rpcURL string, address common.Address, opts ...Option) *Client {
	c := &Client{
		rpcURL:       rpcURL,
		address:      address,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		prices:       types.DefaultGasPrices,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the endpoint and caches the chain ID.
func (c *Client) Connect(ctx context.Context) error {
	if c.backend == nil {
		client, err := ethclient.DialContext(ctx, c.rpcURL)
		if err != nil {
			return fmt.Errorf("failed to connect to EVM RPC: %w", err)
		}
		c.backend = client
	}

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		c.backend.Close()
		c.backend = nil
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	c.chainID = chainID
	return nil
}

// ChainID returns the chain ID cached by Connect.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// GetNonce returns the pending nonce of the account.
func (c *Client) GetNonce(ctx context.Context) (uint64, error) {
	if c.backend == nil {
		return 0, errNotConnected
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

var errNotConnected = errors.New("client not connected")

// WaitForTransaction polls until hash has a receipt or ctx is done.
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if c.backend == nil {
		return nil, errNotConnected
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			// transient RPC failure, keep polling
			c.logger.Debug("receipt poll failed", "hash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GasPrices returns the latest tier prices in gwei, or the defaults when
// no refresh has succeeded yet.
func (c *Client) GasPrices() types.GasPrices {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices
}

// GasPricesUpdatedAt returns the time of the last successful refresh.
func (c *Client) GasPricesUpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pricesAt
}

// RefreshGasPrices derives the tiers from the node's suggested gas price,
// capped at types.MaxAutoGasPriceGwei.
func (c *Client) RefreshGasPrices(ctx context.Context) error {
	if c.backend == nil {
		return errNotConnected
	}
	suggested, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to suggest gas price: %w", err)
	}

	gwei := types.WeiToGwei(suggested)
	prices := types.GasPrices{
		Slow:    tier(gwei, slowMultiplier),
		Average: tier(gwei, averageMultiplier),
		Fast:    tier(gwei, fastMultiplier),
	}

	c.mu.Lock()
	c.prices = prices
	c.pricesAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("gas prices refreshed",
		"slow", prices.Slow,
		"average", prices.Average,
		"fast", prices.Fast)
	return nil
}

func tier(gwei, multiplier float64) float64 {
	return math.Min(gwei*multiplier, types.MaxAutoGasPriceGwei)
}

// RunGasPriceUpdater refreshes gas prices immediately and then every
// interval until ctx is done. Failures keep the previous prices.
func (c *Client) RunGasPriceUpdater(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultGasRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.RefreshGasPrices(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("failed to refresh gas prices", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RPCEndpoint returns the endpoint URL.
func (c *Client) RPCEndpoint() string {
	return c.rpcURL
}

// Address returns the signing account.
func (c *Client) Address() common.Address {
	return c.address
}

// Backend returns the underlying backend for binding contracts.
func (c *Client) Backend() Backend {
	return c.backend
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
	return nil
}
