package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return Result{}
	}
}

// blocker returns a task that blocks until release is closed, and a
// channel that is closed once the task has started.
func blocker(release <-chan struct{}) (Task, <-chan struct{}) {
	started := make(chan struct{})
	return func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	}, started
}

func TestQueue_AddReturnsTaskValue(t *testing.T) {
	q := New[string](DefaultConfig())
	defer q.ShutDown()

	r := waitResult(t, q.Add(func(ctx context.Context) (any, error) {
		return 42, nil
	}, "answer"))

	require.NoError(t, r.Err)
	assert.Equal(t, 42, r.Value)
}

func TestQueue_AddDoesNotRunSynchronously(t *testing.T) {
	q := New[int](DefaultConfig())
	defer q.ShutDown()

	var mu sync.Mutex
	ran := false
	mu.Lock()
	ch := q.Add(func(ctx context.Context) (any, error) {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil, nil
	}, 1)
	// still holding mu: a synchronous run would have deadlocked above
	mu.Unlock()

	waitResult(t, ch)
	mu.Lock()
	assert.True(t, ran)
	mu.Unlock()
}

func TestQueue_FailureIsIsolated(t *testing.T) {
	q := New[int](DefaultConfig())
	defer q.ShutDown()

	boom := errors.New("boom")
	failing := q.Add(func(ctx context.Context) (any, error) { return nil, boom }, 1)
	panicking := q.Add(func(ctx context.Context) (any, error) { panic("bad task") }, 2)
	ok := q.Add(func(ctx context.Context) (any, error) { return "fine", nil }, 3)

	assert.ErrorIs(t, waitResult(t, failing).Err, boom)
	assert.ErrorContains(t, waitResult(t, panicking).Err, "panicked")
	r := waitResult(t, ok)
	require.NoError(t, r.Err)
	assert.Equal(t, "fine", r.Value)
}

func TestQueue_PrioritizeMovesToFront(t *testing.T) {
	q := New[string](Config{MaxConcurrency: 1, MaxInvocationsPerInterval: 100, InvocationInterval: time.Millisecond})
	defer q.ShutDown()

	release := make(chan struct{})
	task, started := blocker(release)
	first := q.Add(task, "blocker")
	<-started

	var mu sync.Mutex
	var order []string
	record := func(name string) Task {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	a := q.Add(record("A"), "A")
	b := q.Add(record("B"), "B")
	c := q.Add(record("C"), "C")
	require.Equal(t, 3, q.Len())

	require.True(t, q.Prioritize(func(m string) bool { return m == "C" }))
	close(release)

	for _, ch := range []<-chan Result{first, a, b, c} {
		waitResult(t, ch)
	}
	assert.Equal(t, []string{"C", "A", "B"}, order)
}

func TestQueue_PrioritizeMissing(t *testing.T) {
	q := New[string](DefaultConfig())
	defer q.ShutDown()

	assert.False(t, q.Prioritize(func(m string) bool { return m == "nope" }))
}

func TestQueue_RemoveBeforeStart(t *testing.T) {
	q := New[string](Config{MaxConcurrency: 1})
	defer q.ShutDown()

	release := make(chan struct{})
	task, started := blocker(release)
	first := q.Add(task, "blocker")
	<-started

	ran := make(chan struct{}, 1)
	removed := q.Add(func(ctx context.Context) (any, error) {
		ran <- struct{}{}
		return nil, nil
	}, "victim")

	require.True(t, q.Remove(func(m string) bool { return m == "victim" }))
	assert.ErrorIs(t, waitResult(t, removed).Err, ErrRemoved)

	close(release)
	waitResult(t, first)

	select {
	case <-ran:
		t.Fatal("removed task ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_RemoveAfterStartIsNoop(t *testing.T) {
	q := New[string](DefaultConfig())
	defer q.ShutDown()

	release := make(chan struct{})
	task, started := blocker(release)
	ch := q.Add(task, "running")
	<-started

	assert.False(t, q.Remove(func(m string) bool { return m == "running" }))
	close(release)
	assert.NoError(t, waitResult(t, ch).Err)
}

func TestQueue_Throttling(t *testing.T) {
	cfg := Config{
		InvocationInterval:        200 * time.Millisecond,
		MaxInvocationsPerInterval: 3,
		MaxConcurrency:            3,
	}
	q := New[int](cfg)
	defer q.ShutDown()

	var mu sync.Mutex
	running, maxRunning := 0, 0

	task := func(ctx context.Context) (any, error) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	}

	var results []<-chan Result
	for i := 0; i < 10; i++ {
		results = append(results, q.Add(task, i))
	}
	var starts []time.Time
	for _, ch := range results {
		r := waitResult(t, ch)
		require.False(t, r.Started.IsZero())
		starts = append(starts, r.Started)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 10)
	assert.LessOrEqual(t, maxRunning, 3)

	for i := range starts {
		inWindow := 0
		for j := range starts {
			d := starts[j].Sub(starts[i])
			if d >= 0 && d < cfg.InvocationInterval {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, 3, "starts within window beginning at %d", i)
	}
}

func TestQueue_StartedIsZeroWhenRemoved(t *testing.T) {
	q := New[int](Config{MaxConcurrency: 1, MaxInvocationsPerInterval: 100, InvocationInterval: time.Millisecond})
	defer q.ShutDown()

	release := make(chan struct{})
	first := q.Add(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, 1)
	second := q.Add(func(ctx context.Context) (any, error) { return nil, nil }, 2)

	require.Eventually(t, func() bool { return q.Running() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, q.Remove(func(m int) bool { return m == 2 }))
	r := waitResult(t, second)
	assert.ErrorIs(t, r.Err, ErrRemoved)
	assert.True(t, r.Started.IsZero())

	close(release)
	assert.False(t, waitResult(t, first).Started.IsZero())
}

func TestQueue_ConcurrencyLimit(t *testing.T) {
	q := New[int](Config{MaxConcurrency: 2, MaxInvocationsPerInterval: 100, InvocationInterval: time.Millisecond})
	defer q.ShutDown()

	release := make(chan struct{})
	var results []<-chan Result
	for i := 0; i < 5; i++ {
		results = append(results, q.Add(func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}, i))
	}

	require.Eventually(t, func() bool { return q.Running() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, q.Len())

	close(release)
	for _, ch := range results {
		waitResult(t, ch)
	}
	assert.Equal(t, 0, q.Running())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ShutDown(t *testing.T) {
	q := New[int](Config{MaxConcurrency: 1})

	task, started := func() (Task, <-chan struct{}) {
		started := make(chan struct{})
		return func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, started
	}()
	running := q.Add(task, 1)
	<-started
	pending := q.Add(func(ctx context.Context) (any, error) { return nil, nil }, 2)

	q.ShutDown()

	assert.True(t, q.ShuttingDown())
	assert.ErrorIs(t, waitResult(t, running).Err, context.Canceled)
	assert.ErrorIs(t, waitResult(t, pending).Err, ErrShutDown)
	assert.ErrorIs(t, waitResult(t, q.Add(task, 3)).Err, ErrShutDown)
}

func TestConfig_Defaults(t *testing.T) {
	q := New[int](Config{})
	defer q.ShutDown()

	assert.Equal(t, DefaultConfig(), q.Config())
	assert.Error(t, Config{MaxConcurrency: -1}.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}
