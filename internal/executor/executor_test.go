package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readyFuture completes immediately with a fixed value.
type readyFuture[T any] struct{ v T }

func (r readyFuture[T]) Poll(w *Waker) (T, bool) { return r.v, true }

// countdownFuture parks itself count times before completing, exercising the
// waker-driven rescheduling path.
type countdownFuture struct {
	remaining int
}

func (c *countdownFuture) Poll(w *Waker) (int, bool) {
	if c.remaining == 0 {
		return 0, true
	}
	c.remaining--
	w.Wake()
	return 0, false
}

func TestSpawnProducesResult(t *testing.T) {
	ResetShutdown()
	defer ResetShutdown()

	task := Spawn[int](readyFuture[int]{v: 42})
	drainForTest()

	select {
	case <-task.Done():
	default:
		t.Fatal("task did not complete")
	}
	assert.Equal(t, 42, task.Result())
}

func TestSpawnWithRunsHookOnEveryWake(t *testing.T) {
	ResetShutdown()
	defer ResetShutdown()

	var wakes int
	task := SpawnWith[int](&countdownFuture{remaining: 5}, func() { wakes++ })
	drainForTest()

	select {
	case <-task.Done():
	default:
		t.Fatal("task did not complete")
	}
	// The initial spawn plus one reschedule per parked poll.
	assert.Equal(t, 6, wakes)
}

func TestDoubleWakeCollapsesToOneEnqueue(t *testing.T) {
	ResetShutdown()
	defer ResetShutdown()

	var wakes int
	task := SpawnWith[int](&doubleWakeFuture{}, func() { wakes++ })
	drainForTest()

	select {
	case <-task.Done():
	default:
		t.Fatal("task did not complete")
	}
	// Spawn, then two Wake calls from one poll collapsing to one reschedule.
	assert.Equal(t, 2, wakes)
}

// doubleWakeFuture wakes itself twice from a single poll, then completes on
// the next.
type doubleWakeFuture struct {
	polled bool
}

func (d *doubleWakeFuture) Poll(w *Waker) (int, bool) {
	if d.polled {
		return 0, true
	}
	d.polled = true
	w.Wake()
	w.Wake()
	return 0, false
}

func TestSpawnReschedulesUntilReady(t *testing.T) {
	ResetShutdown()
	defer ResetShutdown()

	task := Spawn[int](&countdownFuture{remaining: 5})
	drainForTest()

	select {
	case <-task.Done():
	default:
		t.Fatal("task never completed despite repeated wakes")
	}
}

func TestBlockOnDrivesFutureWithoutQueue(t *testing.T) {
	got := BlockOn[string](readyFuture[string]{v: "done"})
	assert.Equal(t, "done", got)
}

func TestYieldNowCompletesOnSecondPoll(t *testing.T) {
	y := YieldNow()
	w := &Waker{wake: func() {}}

	_, ok := y.Poll(w)
	require.False(t, ok)

	_, ok = y.Poll(w)
	require.True(t, ok)
}

func TestShutdownDrainsAllQueuedTasks(t *testing.T) {
	ResetShutdown()
	defer ResetShutdown()

	const n = 8
	tasks := make([]*Task[int], n)
	for i := range tasks {
		tasks[i] = Spawn[int](&countdownFuture{remaining: 3})
	}

	drainForTest()

	for i, task := range tasks {
		select {
		case <-task.Done():
		default:
			t.Fatalf("task %d still pending after shutdown drain", i)
		}
	}
}

// drainForTest requests shutdown and runs the loop, draining whatever is
// already queued (including tasks that reschedule themselves) without
// needing a second goroutine to stop it.
func drainForTest() {
	RequestShutdown()
	RunUntilShutdown()
}
