// Package queue holds triggered backup jobs between the scheduler and the single worker.
package queue

import (
	"context"
	"sync"

	"github.com/yurykabanov/baqup/pkg/domain"
)

// Queue is an unbounded FIFO with one producer (the poll loop) and one consumer
// (the worker). A target key is admitted at most once while it is queued or in flight.
type Queue struct {
	mu      sync.Mutex
	jobs    []domain.BackupJob
	pending map[domain.TargetKey]struct{}
	wake    chan struct{}
}

func New() *Queue {
	return &Queue{
		pending: make(map[domain.TargetKey]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends job and reports whether it was accepted.
func (q *Queue) Enqueue(job domain.BackupJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := job.Key()
	if _, busy := q.pending[key]; busy {
		return false
	}

	q.pending[key] = struct{}{}
	q.jobs = append(q.jobs, job)

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return true
}

// Dequeue blocks until a job is available or ctx is done. The job's key stays reserved
// until Done is called for it.
func (q *Queue) Dequeue(ctx context.Context) (domain.BackupJob, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = domain.BackupJob{}
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.BackupJob{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Done releases the key of a finished job.
func (q *Queue) Done(key domain.TargetKey) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.pending, key)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.jobs)
}

// Busy reports whether key is queued or in flight.
func (q *Queue) Busy(key domain.TargetKey) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.pending[key]
	return ok
}
