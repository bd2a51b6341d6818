// Package queue provides a throttled concurrent task queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

var (
	// ErrRemoved is delivered to a task that was removed before it started.
	ErrRemoved = errors.New("task removed from queue")

	// ErrShutDown is delivered to tasks that were pending at shutdown or
	// added afterwards.
	ErrShutDown = errors.New("queue is shut down")
)

// Task is a unit of work run by the queue.
type Task func(ctx context.Context) (any, error)

// Result is the outcome of a single task.
type Result struct {
	Value any
	Err   error

	// Started is when the queue dispatched the task, as counted against
	// the rate limit. It is zero for entries that never started.
	Started time.Time
}

// Config bounds how many tasks run at once and how fast they start.
type Config struct {
	// InvocationInterval is the sliding window used for rate limiting.
	InvocationInterval time.Duration

	// MaxInvocationsPerInterval is the number of tasks that may start
	// within any InvocationInterval window.
	MaxInvocationsPerInterval int

	// MaxConcurrency is the number of tasks that may run at once.
	MaxConcurrency int
}

// DefaultConfig allows three concurrent tasks and three starts per 200ms.
func DefaultConfig() Config {
	return Config{
		InvocationInterval:        200 * time.Millisecond,
		MaxInvocationsPerInterval: 3,
		MaxConcurrency:            3,
	}
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	if c.InvocationInterval < 0 {
		return fmt.Errorf("invocation interval must be non-negative")
	}
	if c.MaxInvocationsPerInterval < 0 {
		return fmt.Errorf("max invocations per interval must be non-negative")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must be non-negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InvocationInterval == 0 {
		c.InvocationInterval = d.InvocationInterval
	}
	if c.MaxInvocationsPerInterval == 0 {
		c.MaxInvocationsPerInterval = d.MaxInvocationsPerInterval
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	return c
}

type entry[M any] struct {
	task    Task
	meta    M
	result  chan Result
	started time.Time
}

func (e *entry[M]) finish(r Result) {
	e.result <- r
}

// Queue runs tasks in FIFO order, subject to a concurrency limit and a
// sliding-window start rate. Entries carry metadata of type M so callers
// can remove or promote them before they start.
type Queue[M any] struct {
	cfg Config

	// pending holds entries that have not started, front first
	pending deque.Deque[*entry[M]]

	// running is the number of tasks currently executing
	running int

	// starts are the start times inside the current window, oldest first
	starts []time.Time

	// wake fires when the oldest start leaves the window
	wake *time.Timer

	shuttingDown bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time

	mu sync.Mutex
}

// New creates a queue. Zero fields in cfg take their DefaultConfig value.
func New[M any](cfg Config) *Queue[M] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue[M]{
		cfg:    cfg.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (q *Queue[M]) Config() Config {
	return q.cfg
}

// Add enqueues task. The returned channel receives exactly one Result:
// the task's own outcome, ErrRemoved, or ErrShutDown. The task never runs
// on the caller's goroutine.
func (q *Queue[M]) Add(task Task, meta M) <-chan Result {
	e := &entry[M]{task: task, meta: meta, result: make(chan Result, 1)}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		e.finish(Result{Err: ErrShutDown})
		return e.result
	}

	q.pending.PushBack(e)
	q.dispatchLocked()
	return e.result
}

// Remove drops the first pending entry whose metadata matches pred.
// It returns false when nothing matched; started tasks are never affected.
func (q *Queue[M]) Remove(pred func(M) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(pred)
	if i < 0 {
		return false
	}
	e := q.pending.Remove(i)
	e.finish(Result{Err: ErrRemoved})
	return true
}

// Prioritize moves the first pending entry whose metadata matches pred to
// the front of the queue. It returns false when nothing matched.
func (q *Queue[M]) Prioritize(pred func(M) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(pred)
	if i < 0 {
		return false
	}
	if i > 0 {
		e := q.pending.Remove(i)
		q.pending.PushFront(e)
	}
	q.dispatchLocked()
	return true
}

// Len returns the number of entries waiting to start.
func (q *Queue[M]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Running returns the number of tasks currently executing.
func (q *Queue[M]) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// ShutDown rejects pending entries, cancels the context handed to running
// tasks and waits for them to return.
func (q *Queue[M]) ShutDown() {
	q.mu.Lock()
	if q.shuttingDown {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.shuttingDown = true
	for q.pending.Len() > 0 {
		q.pending.PopFront().finish(Result{Err: ErrShutDown})
	}
	if q.wake != nil {
		q.wake.Stop()
		q.wake = nil
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// ShuttingDown returns true once ShutDown has been called.
func (q *Queue[M]) ShuttingDown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuttingDown
}

func (q *Queue[M]) indexLocked(pred func(M) bool) int {
	return q.pending.Index(func(e *entry[M]) bool {
		return pred(e.meta)
	})
}

// dispatchLocked starts as many pending entries as the limits allow and,
// if the rate limit is what holds the rest back, arms a timer for the
// moment the window opens again. Must be called with q.mu held.
func (q *Queue[M]) dispatchLocked() {
	if q.shuttingDown {
		return
	}

	now := q.now()
	q.pruneLocked(now)

	for q.pending.Len() > 0 &&
		q.running < q.cfg.MaxConcurrency &&
		len(q.starts) < q.cfg.MaxInvocationsPerInterval {
		e := q.pending.PopFront()
		q.running++
		q.starts = append(q.starts, now)
		e.started = now
		q.wg.Add(1)
		go q.run(e)
	}

	if q.pending.Len() > 0 &&
		q.running < q.cfg.MaxConcurrency &&
		len(q.starts) >= q.cfg.MaxInvocationsPerInterval &&
		q.wake == nil {
		delay := q.starts[0].Add(q.cfg.InvocationInterval).Sub(now)
		q.wake = time.AfterFunc(delay, q.onWake)
	}
}

// pruneLocked forgets start times that fell out of the window.
func (q *Queue[M]) pruneLocked(now time.Time) {
	cutoff := now.Add(-q.cfg.InvocationInterval)
	i := 0
	for i < len(q.starts) && !q.starts[i].After(cutoff) {
		i++
	}
	q.starts = q.starts[i:]
}

func (q *Queue[M]) onWake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.wake = nil
	q.dispatchLocked()
}

func (q *Queue[M]) run(e *entry[M]) {
	defer q.wg.Done()

	r := q.invoke(e.task)
	r.Started = e.started

	q.mu.Lock()
	q.running--
	q.dispatchLocked()
	q.mu.Unlock()

	e.finish(r)
}

// invoke runs task, turning a panic into an error so one bad task cannot
// stop the queue from draining.
func (q *Queue[M]) invoke(task Task) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			r = Result{Err: fmt.Errorf("task panicked: %v", p)}
		}
	}()
	v, err := task(q.ctx)
	return Result{Value: v, Err: err}
}
