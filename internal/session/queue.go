package session

import "sync"

// writeQueue runs durable writes one at a time in submission order, so a
// re-selected outcome can never be overtaken by the write it replaces, and a
// reason update never lands before an in-flight notes save of the same row.
type writeQueue struct {
	mu      sync.Mutex
	pending []func()
	running bool
	// idle is closed whenever nothing is queued or running.
	idle chan struct{}
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{idle: make(chan struct{})}
	close(q.idle)
	return q
}

func (q *writeQueue) push(job func()) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	q.mu.Unlock()
	go q.drain()
}

func (q *writeQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		job()
	}
}

// done returns a channel closed once every job submitted so far has run.
func (q *writeQueue) done() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}
