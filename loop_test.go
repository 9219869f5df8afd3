package nettle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestExecutor builds an Executor, runs it on its own goroutine, and
// tears it down at test cleanup.
func startTestExecutor(t *testing.T, opts ...LoopOption) *Executor {
	t.Helper()
	exec, err := NewExecutor(opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Run(ctx)
	}()
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = exec.Shutdown(shutdownCtx)
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("executor did not stop within the shutdown deadline")
		}
	})

	return exec
}

func TestExecutorRunsSubmittedTasksInOrder(t *testing.T) {
	exec := startTestExecutor(t)

	var order []int
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, exec.Execute(func() {
			order = append(order, i)
			if i == 2 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestExecutorInEventLoopIsTrueOnlyOnLoopGoroutine(t *testing.T) {
	exec := startTestExecutor(t)

	require.False(t, exec.InEventLoop(), "test goroutine must not report InEventLoop")

	result := make(chan bool, 1)
	require.NoError(t, exec.Execute(func() { result <- exec.InEventLoop() }))
	select {
	case inLoop := <-result:
		assert.True(t, inLoop, "a task must observe InEventLoop() == true")
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestExecutorScheduleRunsAfterDelay(t *testing.T) {
	exec := startTestExecutor(t)

	start := time.Now()
	fired := make(chan time.Duration, 1)
	require.NoError(t, exec.Schedule(20*time.Millisecond, func() {
		fired <- time.Since(start)
	}))

	select {
	case elapsed := <-fired:
		assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond, "timer fired far too early")
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled task never fired")
	}
}

func TestExecutorSubmitAfterTerminationIsRejected(t *testing.T) {
	exec, err := NewExecutor()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Run(ctx)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, exec.Shutdown(shutdownCtx))
	cancel()
	<-done

	assert.ErrorIs(t, exec.Execute(func() {}), ErrLoopTerminated)
}

func TestExecutorShutdownDrainsAlreadyQueuedTasks(t *testing.T) {
	exec, err := NewExecutor()
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Run(ctx)
	}()

	// Wait for the loop to actually be running: a Shutdown that lands
	// while the loop is still Awake terminates without a drain pass.
	started := make(chan struct{})
	require.NoError(t, exec.Execute(func() { close(started) }))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never started")
	}

	var ran atomic.Int32
	for i := 0; i < 64; i++ {
		require.NoError(t, exec.Execute(func() { ran.Add(1) }))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, exec.Shutdown(shutdownCtx))
	<-done

	assert.EqualValues(t, 64, ran.Load(), "graceful shutdown must run tasks accepted before it began")
}

func TestExecutorTaskPanicDoesNotKillTheLoop(t *testing.T) {
	exec := startTestExecutor(t)

	require.NoError(t, exec.Execute(func() { panic("task exploded") }))

	survived := make(chan struct{})
	require.NoError(t, exec.Execute(func() { close(survived) }))
	select {
	case <-survived:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not survive a panicking task")
	}
}

func TestPromiseSyncFromOwnExecutorPanics(t *testing.T) {
	exec := startTestExecutor(t)

	panicked := make(chan bool, 1)
	require.NoError(t, exec.Execute(func() {
		defer func() { panicked <- recover() != nil }()
		NewPromise(exec).Await()
	}))

	select {
	case got := <-panicked:
		assert.True(t, got, "blocking on a promise from its own executor must panic, not deadlock")
	case <-time.After(5 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestPromiseListenerRunsOnBoundExecutor(t *testing.T) {
	exec := startTestExecutor(t)

	p := NewPromise(exec)
	inLoop := make(chan bool, 1)
	p.AddListener(func(Future) { inLoop <- exec.InEventLoop() })

	// Complete from the test goroutine: the listener must be trampolined
	// onto the executor rather than running inline here.
	p.TrySuccess(nil)
	select {
	case got := <-inLoop:
		assert.True(t, got, "listener should run on the promise's bound executor")
	case <-time.After(5 * time.Second):
		t.Fatal("listener never ran")
	}
}
