package backfill

import (
	"context"
	"sync"
	"time"
)

// TaskQueue delivers backfill tasks to the worker.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *Task) error
	// Dequeue blocks until a task is available. Returns ErrQueueEmpty if none arrived within the
	// implementation's poll interval.
	Dequeue(ctx context.Context) (*Task, error)
}

// MemQueue is a simple in-memory implementation of the TaskQueue interface
type MemQueue struct {
	lk     sync.Mutex
	tasks  []*Task
	notify chan struct{}
	// how long Dequeue waits for a task before returning ErrQueueEmpty
	PollInterval time.Duration
}

var _ TaskQueue = (*MemQueue)(nil)

func NewMemQueue() *MemQueue {
	return &MemQueue{
		notify:       make(chan struct{}, 1),
		PollInterval: 1 * time.Second,
	}
}

func (q *MemQueue) Enqueue(ctx context.Context, task *Task) error {
	q.lk.Lock()
	t := *task
	q.tasks = append(q.tasks, &t)
	q.lk.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemQueue) Dequeue(ctx context.Context) (*Task, error) {
	timer := time.NewTimer(q.PollInterval)
	defer timer.Stop()
	for {
		if t := q.pop(); t != nil {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrQueueEmpty
		case <-q.notify:
		}
	}
}

func (q *MemQueue) pop() *Task {
	q.lk.Lock()
	defer q.lk.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t
}

func (q *MemQueue) Len() int {
	q.lk.Lock()
	defer q.lk.Unlock()
	return len(q.tasks)
}
