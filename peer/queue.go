package peer

import (
	"sync"
	"time"

	"github.com/vmoraru/btwire/wire"
)

// msgQueue is an unbounded FIFO of outgoing messages
// A nil message is the close sentinel that wakes the send worker
type msgQueue struct {
	mu     sync.Mutex
	items  []wire.Message
	signal chan struct{}
}

func newMsgQueue() *msgQueue {
	return &msgQueue{signal: make(chan struct{}, 1)}
}

// push enqueues m and wakes one poller
func (q *msgQueue) push(m wire.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// poll dequeues the head, waiting up to timeout for one to arrive
// Returns false on timeout
func (q *msgQueue) poll(timeout time.Duration) (wire.Message, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			notEmpty := len(q.items) > 0
			q.mu.Unlock()
			if notEmpty {
				// keep the signal armed for the next poll
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return m, true
		}
		q.mu.Unlock()
		select {
		case <-q.signal:
		case <-deadline.C:
			return nil, false
		}
	}
}

// taskQueue is an unbounded FIFO of event dispatch tasks consumed by a
// single goroutine, so tasks run strictly in submission order
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{signal: make(chan struct{}, 1)}
}

func (q *taskQueue) push(f func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, f)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop dequeues the head task, blocking until one arrives or quit closes
func (q *taskQueue) pop(quit <-chan struct{}) (func(), bool) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			f := q.tasks[0]
			q.tasks = q.tasks[1:]
			notEmpty := len(q.tasks) > 0
			q.mu.Unlock()
			if notEmpty {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return f, true
		}
		q.mu.Unlock()
		select {
		case <-q.signal:
		case <-quit:
			return nil, false
		}
	}
}
