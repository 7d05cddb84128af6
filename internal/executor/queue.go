package executor

import "github.com/asynclear-go/asynclear/internal/logger"

// taskLimit bounds how many runnables may be queued at once. The original
// executor used a fixed-capacity ring buffer and treated overflow as a fatal
// condition rather than backpressure; a single-hart kernel has nowhere to
// apply backpressure to, so we keep that choice.
const taskLimit = 1 << 16

// taskQueue is a bounded FIFO of Runnables. It is safe to Push from any
// goroutine (wakers may fire from anywhere a completion arrives), but Pop is
// only ever called from the single executor loop driving RunUntilShutdown,
// preserving the "single hart" cooperative-scheduling model: work items run
// one at a time, never concurrently with each other.
type taskQueue struct {
	ch chan Runnable
}

func newTaskQueue(limit int) *taskQueue {
	return &taskQueue{ch: make(chan Runnable, limit)}
}

// Push enqueues r. If the queue is full this is fatal, mirroring
// ArrayQueue::push(...).expect("Out of task limit") in the original executor:
// a full task queue means the kernel has wedged, and there is no sane
// degraded mode to fall back to.
func (q *taskQueue) Push(r Runnable) {
	select {
	case q.ch <- r:
	default:
		logger.Error("executor: task queue full, out of task limit")
		panic("executor: out of task limit")
	}
}

// Pop removes and returns the next runnable, or (nil, false) if the queue is
// currently empty.
func (q *taskQueue) Pop() (Runnable, bool) {
	select {
	case r := <-q.ch:
		return r, true
	default:
		return nil, false
	}
}

var defaultQueue = newTaskQueue(taskLimit)
