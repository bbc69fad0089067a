package queue

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

const minInterval = 250 * time.Millisecond

// Task is one queued unit of work. Every task carries its own error handling.
// A task error never aborts the worker.
type Task struct {
	Label string
	Run   func() error
}

// TradeQueue is a single-worker FIFO executor with a minimum gap between
// dispatches. Ordering is strict against insertion order.
type TradeQueue struct {
	mu      sync.Mutex
	tasks   []Task
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
	lastRun time.Time
}

func NewTradeQueue() *TradeQueue {
	q := &TradeQueue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// Push appends a task to the tail of the queue.
func (q *TradeQueue) Push(label string, run func() error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		logger.WithField("task", label).Warn("queue stopped, task dropped")
		return
	}
	q.tasks = append(q.tasks, Task{Label: label, Run: run})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of tasks waiting, not counting a running one.
func (q *TradeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Stop ends the worker after the current task. Remaining tasks are dropped.
func (q *TradeQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stop)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *TradeQueue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		var task *Task
		if len(q.tasks) > 0 {
			task = &q.tasks[0]
			t := *task
			q.tasks = q.tasks[1:]
			task = &t
		}
		q.mu.Unlock()

		if task == nil {
			select {
			case <-q.stop:
				return
			case <-q.wake:
				continue
			}
		}

		if wait := minInterval - time.Since(q.lastRun); wait > 0 {
			select {
			case <-q.stop:
				return
			case <-time.After(wait):
			}
		}
		q.lastRun = time.Now()

		if err := task.Run(); err != nil {
			logger.WithError(err).WithField("task", task.Label).Error("queued task failed")
		}

		select {
		case <-q.stop:
			return
		default:
		}
	}
}
