// Package executor queues contract calls and drives each one through
// nonce allocation, submission and confirmation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/altuslabsxyz/txexec/internal/nonce"
	"github.com/altuslabsxyz/txexec/internal/queue"
	"github.com/altuslabsxyz/txexec/internal/types"
)

const (
	// DefaultSubmitTimeout bounds how long the network may take to accept
	// a transaction.
	DefaultSubmitTimeout = 30 * time.Second

	// DefaultGasLimit is used when neither the defaults nor the
	// transaction set a gas limit.
	DefaultGasLimit uint64 = 2_000_000
)

// Options configures an Executor. Zero values take defaults.
type Options struct {
	// Auth signs transactions. Its Nonce, GasPrice, GasLimit, Value and
	// Context are overwritten per submission.
	Auth *bind.TransactOpts

	// DefaultTxOptions are merged under each transaction's overrides.
	DefaultTxOptions types.Overrides

	GasSettingProvider GasPriceSettingProvider
	BeforeQueued       BeforeQueued
	BeforeTransaction  BeforeTransaction
	AfterTransaction   AfterTransaction

	Queue queue.Config

	// SingleWallet disables the stale nonce refresh. Set it only when no
	// other client signs for the same account.
	SingleWallet bool
	StaleAfter   time.Duration

	SubmitTimeout time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.GasSettingProvider == nil {
		o.GasSettingProvider = StaticGasSetting(types.GasSettingAverage)
	}
	if o.DefaultTxOptions.GasLimit == 0 {
		o.DefaultTxOptions.GasLimit = DefaultGasLimit
	}
	if o.StaleAfter == 0 {
		o.StaleAfter = nonce.DefaultStaleAfter
	}
	if o.SubmitTimeout == 0 {
		o.SubmitTimeout = DefaultSubmitTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Executor runs transactions for a single account.
type Executor struct {
	conn   Connection
	opts   Options
	logger *slog.Logger

	queue  *queue.Queue[*types.Transaction]
	nonces *nonce.Manager

	idSeq atomic.Uint64

	diagMu      sync.RWMutex
	diagnostics DiagnosticUpdater

	// ctx outlives individual attempts; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc

	// closeMu orders wg.Add against Close
	closeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// New creates an executor. The queue starts empty and idle.
func New(conn Connection, opts Options) (*Executor, error) {
	if conn == nil {
		return nil, errors.New("connection is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("transact opts are required")
	}
	if err := opts.Queue.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}
	if opts.SubmitTimeout < 0 {
		return nil, errors.New("submit timeout must be non-negative")
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		conn:   conn,
		opts:   opts,
		logger: opts.Logger,
		queue:  queue.New[*types.Transaction](opts.Queue),
		nonces: nonce.NewManager(conn,
			nonce.WithMultipleWallets(!opts.SingleWallet),
			nonce.WithStaleAfter(opts.StaleAfter),
			nonce.WithLogger(opts.Logger),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	return e, nil
}

// SetDiagnosticUpdater installs the collector for queue counters.
// Passing nil disables reporting.
func (e *Executor) SetDiagnosticUpdater(d DiagnosticUpdater) {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	e.diagnostics = d
}

func (e *Executor) updateDiagnostics(fn func(d *Diagnostics)) {
	e.diagMu.RLock()
	d := e.diagnostics
	e.diagMu.RUnlock()
	if d != nil {
		d.UpdateDiagnostics(fn)
	}
}

func queuedDelta(n int) func(d *Diagnostics) {
	return func(d *Diagnostics) { d.TransactionsInQueue += n }
}

// QueueTransaction creates a transaction for intent and enqueues it. The
// returned record settles through its Submitted and Confirmed futures.
//
// An error from BeforeQueued is returned unchanged and nothing is queued.
func (e *Executor) QueueTransaction(ctx context.Context, intent *types.Intent, overrides *types.Overrides) (*types.Transaction, error) {
	if intent == nil || intent.Contract == nil {
		return nil, errors.New("intent must name a contract")
	}
	if e.isClosed() {
		return nil, ErrClosed
	}

	// counted before the veto so rejected intents remain visible
	e.updateDiagnostics(queuedDelta(1))

	id := types.TransactionID(e.idSeq.Add(1))
	if e.opts.BeforeQueued != nil {
		if err := e.opts.BeforeQueued(ctx, id, intent, overrides); err != nil {
			return nil, err
		}
	}

	tx := types.NewTransaction(id, intent, overrides)

	setting := e.opts.GasSettingProvider(tx)
	tx.SetAutoGasPriceSetting(setting)
	if o := tx.Overrides(); o.GasPrice == nil {
		gwei, err := types.AutoGasPriceGwei(e.conn.GasPrices(), setting)
		if err != nil {
			e.updateDiagnostics(queuedDelta(-1))
			return nil, fmt.Errorf("resolve gas price for transaction %d: %w", id, err)
		}
		o.GasPrice = types.GweiToWei(gwei)
		tx.SetOverrides(o)
	}

	if !e.track() {
		e.updateDiagnostics(queuedDelta(-1))
		return nil, ErrClosed
	}
	result := e.queue.Add(func(ctx context.Context) (any, error) {
		e.updateDiagnostics(queuedDelta(-1))
		return nil, e.execute(ctx, tx)
	}, tx)
	go e.watch(tx, result)

	e.logger.Debug("transaction queued",
		"id", tx.ID,
		"method", intent.MethodName,
		"to", intent.To().Hex(),
		"gasSetting", string(setting))
	return tx, nil
}

// watch settles the futures of a transaction that never started.
func (e *Executor) watch(tx *types.Transaction, result <-chan queue.Result) {
	defer e.wg.Done()

	r := <-result
	switch {
	case errors.Is(r.Err, queue.ErrRemoved):
		e.updateDiagnostics(queuedDelta(-1))
		tx.OnSubmissionError(ErrCancelled)
		tx.OnReceiptError(ErrCancelled)
	case errors.Is(r.Err, queue.ErrShutDown):
		e.updateDiagnostics(queuedDelta(-1))
		tx.SetState(types.StateCancel)
		tx.OnSubmissionError(ErrClosed)
		tx.OnReceiptError(ErrClosed)
	case r.Err != nil && !tx.State().IsTerminal():
		// the task panicked before it could settle the record
		tx.SetState(types.StateFail)
		tx.OnSubmissionError(r.Err)
		tx.OnReceiptError(r.Err)
	}
}

// DequeueTransaction removes tx from the queue and marks it cancelled. It
// returns false when tx had already started; the attempt then carries on.
func (e *Executor) DequeueTransaction(tx *types.Transaction) bool {
	removed := e.queue.Remove(match(tx))
	tx.SetState(types.StateCancel)
	if removed {
		e.logger.Info("transaction dequeued", "id", tx.ID)
	}
	return removed
}

// PrioritizeTransaction moves tx to the front of the queue.
func (e *Executor) PrioritizeTransaction(tx *types.Transaction) bool {
	promoted := e.queue.Prioritize(match(tx))
	tx.SetState(types.StatePrioritized)
	return promoted
}

func match(tx *types.Transaction) func(*types.Transaction) bool {
	return func(m *types.Transaction) bool { return m == tx }
}

// WaitForTransaction re-attaches to a transaction submitted earlier and
// returns a record that confirms when its receipt arrives. After Close the
// record is cancelled and its confirmation rejects with ErrClosed.
func (e *Executor) WaitForTransaction(p types.PersistedTransaction) *types.Transaction {
	tx := types.NewTransaction(types.TransactionID(e.idSeq.Add(1)), p.Intent, nil)
	tx.MarkSubmitted(p.Hash, time.Now())
	tx.OnTransactionResponse(nil)

	if !e.track() {
		tx.SetState(types.StateCancel)
		tx.OnReceiptError(ErrClosed)
		return tx
	}
	go func() {
		defer e.wg.Done()

		receipt, err := e.conn.WaitForTransaction(e.ctx, p.Hash)
		switch {
		case err != nil:
			tx.SetState(types.StateFail)
			tx.OnReceiptError(fmt.Errorf("wait for transaction %s: %w", p.Hash.Hex(), err))
		case receipt.Status != ethtypes.ReceiptStatusSuccessful:
			tx.SetState(types.StateFail)
			tx.OnReceiptError(fmt.Errorf("%w: %s", ErrReverted, p.Hash.Hex()))
		default:
			tx.SetState(types.StateConfirm)
			tx.OnTransactionReceipt(receipt)
		}
		e.logger.Info("persisted transaction settled",
			"id", tx.ID, "hash", p.Hash.Hex(), "state", tx.State())
	}()
	return tx
}

// Close stops accepting work, rejects transactions that have not started,
// cancels running attempts and waits for them.
func (e *Executor) Close() {
	e.closeMu.Lock()
	e.closed = true
	e.closeMu.Unlock()

	e.cancel()
	e.queue.ShutDown()
	e.wg.Wait()
}

// track reserves a wait group slot for a background goroutine. It fails
// once Close has started.
func (e *Executor) track() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *Executor) isClosed() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	return e.closed
}

// execute runs one attempt and always reports it.
func (e *Executor) execute(ctx context.Context, tx *types.Transaction) error {
	a := &attempt{executionCalled: time.Now()}

	err := e.run(ctx, tx, a)
	if err != nil {
		e.fail(ctx, tx, a, err)
	}

	e.updateDiagnostics(func(d *Diagnostics) { d.TotalTransactions++ })
	e.report(tx, a, err)
	return err
}

func (e *Executor) run(ctx context.Context, tx *types.Transaction, a *attempt) error {
	tx.SetState(types.StateProcessing)

	if e.opts.BeforeTransaction != nil {
		if err := e.opts.BeforeTransaction(ctx, tx); err != nil {
			return fmt.Errorf("before transaction: %w", err)
		}
	}

	resp, err := e.submit(ctx, tx, a)
	if err != nil {
		return err
	}

	a.submitted = time.Now()
	tx.MarkSubmitted(resp.Hash(), a.submitted)
	tx.OnTransactionResponse(resp)
	e.logger.Info("transaction submitted",
		"id", tx.ID,
		"hash", resp.Hash().Hex(),
		"nonce", resp.Nonce())

	receipt, err := e.conn.WaitForTransaction(ctx, resp.Hash())
	if err != nil {
		return fmt.Errorf("wait for transaction %s: %w", resp.Hash().Hex(), err)
	}

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		a.errored = time.Now()
		tx.SetState(types.StateFail)
		e.resetNonce(ctx, a)
		return fmt.Errorf("%w: %s", ErrReverted, resp.Hash().Hex())
	}

	a.confirmed = time.Now()
	tx.SetState(types.StateConfirm)
	tx.OnTransactionReceipt(receipt)
	e.logger.Info("transaction confirmed",
		"id", tx.ID,
		"hash", resp.Hash().Hex(),
		"block", receipt.BlockNumber)
	return nil
}

// submit holds the nonce lock from nonce allocation until the network
// answers or the submit timeout fires.
func (e *Executor) submit(ctx context.Context, tx *types.Transaction, a *attempt) (*ethtypes.Transaction, error) {
	release, err := e.nonces.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	a.lockTaken = true

	n, err := e.nonces.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	overrides := tx.Overrides()
	a.overrides = overrides.Merge(e.opts.DefaultTxOptions)
	a.called = time.Now()

	var args []interface{}
	if tx.Intent.Args != nil {
		args, err = tx.Intent.Args(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve arguments for %s: %w", tx.Intent.MethodName, err)
		}
	}

	resp, err := e.transact(ctx, tx, a.overrides, n, args)
	if err != nil {
		return nil, err
	}
	e.nonces.MarkSent(time.Now())
	return resp, nil
}

func (e *Executor) transact(ctx context.Context, tx *types.Transaction, o types.Overrides, n uint64, args []interface{}) (*ethtypes.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.SubmitTimeout)
	defer cancel()

	opts := *e.opts.Auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(n)
	opts.GasPrice = o.GasPrice
	opts.GasLimit = o.GasLimit
	opts.Value = o.Value

	type sent struct {
		tx  *ethtypes.Transaction
		err error
	}
	done := make(chan sent, 1)
	go func() {
		resp, err := tx.Intent.Contract.Transact(&opts, tx.Intent.MethodName, args...)
		done <- sent{resp, err}
	}()

	select {
	case s := <-done:
		if s.err != nil {
			return nil, fmt.Errorf("submit %s: %w", tx.Intent.MethodName, s.err)
		}
		if s.tx == nil {
			return nil, fmt.Errorf("submit %s: no transaction returned", tx.Intent.MethodName)
		}
		return s.tx, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &SubmitTimeoutError{ID: tx.ID, Timeout: e.opts.SubmitTimeout}
		}
		return nil, ctx.Err()
	}
}

// fail moves tx to Fail and settles whichever futures are still open.
func (e *Executor) fail(ctx context.Context, tx *types.Transaction, a *attempt, err error) {
	tx.SetState(types.StateFail)
	if a.errored.IsZero() {
		a.errored = time.Now()
	}
	e.resetNonce(ctx, a)

	if a.submitted.IsZero() {
		tx.OnSubmissionError(err)
	}
	tx.OnReceiptError(err)

	e.logger.Error("transaction failed",
		"id", tx.ID,
		"method", tx.Intent.MethodName,
		"submitted", !a.submitted.IsZero(),
		"error", err)
}

// resetNonce clears the cached nonce once per attempt, and only when the
// attempt got as far as the nonce lock.
func (e *Executor) resetNonce(ctx context.Context, a *attempt) {
	if !a.lockTaken || a.nonceReset {
		return
	}
	a.nonceReset = true
	if err := e.nonces.Reset(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("failed to reset nonce", "error", err)
	}
}

// report builds the network event and hands it to AfterTransaction.
// Nothing here may fail the attempt.
func (e *Executor) report(tx *types.Transaction, a *attempt, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("failed to report network event", "id", tx.ID, "panic", p)
		}
	}()

	ev := e.buildEvent(tx, a, err)
	e.logger.Debug("network event",
		"id", tx.ID,
		"method", ev.TxType,
		"hash", ev.TxHash,
		"error", ev.Error)
	if e.opts.AfterTransaction != nil {
		e.opts.AfterTransaction(tx, ev)
	}
}
