package bot

import "sync"

const defaultBacklogSize = 32

// backlog queues updates per principal so that a principal occupies at most
// one worker. The head of a principal's queue is the update being handled;
// a principal with an entry is being drained by exactly one worker.
type backlog struct {
	mu      sync.Mutex
	limit   int
	pending map[string][]Update
}

func newBacklog(limit int) *backlog {
	if limit <= 0 {
		limit = defaultBacklogSize
	}
	return &backlog{limit: limit, pending: make(map[string][]Update)}
}

// push queues u. drain is true when no worker is serving the principal and
// the caller must handle u itself; ok is false when the queue is full.
func (q *backlog) push(u Update) (drain, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued, busy := q.pending[u.Principal]
	if len(queued) >= q.limit {
		return false, false
	}
	q.pending[u.Principal] = append(queued, u)
	return !busy, true
}

// next drops the finished head of principal's queue and returns the
// following update. When the queue is empty the principal is released.
func (q *backlog) next(principal string) (Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued := q.pending[principal]
	if len(queued) <= 1 {
		delete(q.pending, principal)
		return Update{}, false
	}
	queued[0] = Update{}
	q.pending[principal] = queued[1:]
	return queued[1], true
}

// Len returns the number of updates queued or running for principal.
func (q *backlog) Len(principal string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[principal])
}
