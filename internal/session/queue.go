package session

import "sync"

// jobQueue is an unbounded FIFO of score and produce requests consumed by
// the manager's worker pool.
//
// Enqueue never blocks. Dequeue blocks until a job is available or the
// queue is closed and drained, so jobs enqueued before Close still run.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []*request
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]*request, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job. Returns false if the queue is closed.
func (q *jobQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, r)

	// Non-blocking signal; one pending wakeup is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Dequeue removes and returns the oldest job, blocking while the queue is
// empty. Returns false once the queue is closed and empty.
func (q *jobQueue) Dequeue() (*request, bool) {
	for {
		if r, ok := q.TryDequeue(); ok {
			return r, true
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		<-q.signal
	}
}

// TryDequeue removes and returns the oldest job without blocking.
func (q *jobQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	r := q.jobs[0]
	q.jobs[0] = nil // Allow GC
	q.jobs = q.jobs[1:]

	// Pass the wakeup on so another blocked worker sees the remaining jobs.
	if len(q.jobs) > 0 && !q.closed {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}

	return r, true
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs and wakes every blocked Dequeue.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
