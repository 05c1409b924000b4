package hub

import "sync"

// Queue is the FIFO matchmaking queue of user ids. A user appears at most
// once; order is strict enqueue order.
type Queue struct {
	mu      sync.Mutex
	order   []string
	present map[string]bool
}

func NewQueue() *Queue {
	return &Queue{present: make(map[string]bool)}
}

// Enqueue appends a user. Returns false if the user is already waiting.
func (q *Queue) Enqueue(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present[userID] {
		return false
	}
	q.order = append(q.order, userID)
	q.present[userID] = true
	return true
}

// Leave removes a user from the queue. Returns false if absent.
func (q *Queue) Leave(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.present[userID] {
		return false
	}
	delete(q.present, userID)
	for i, id := range q.order {
		if id == userID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of waiting users.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// pairCandidate is a dequeued user resolved to its live connection.
type pairCandidate struct {
	userID string
	connID string
}

// TryPair pops the two head entries and resolves them to live connections.
// If either entry is dead it is discarded, the live one is put back at the
// head (keeping its position), and no pair is formed. A single attempt is
// made per call; callers invoke it again on the next enqueue.
func (q *Queue) TryPair(resolve func(userID string) (connID string, ok bool)) (p1, p2 pairCandidate, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) < 2 {
		return pairCandidate{}, pairCandidate{}, false
	}

	a := q.popLocked()
	b := q.popLocked()

	connA, okA := resolve(a)
	connB, okB := resolve(b)

	switch {
	case okA && okB:
		return pairCandidate{a, connA}, pairCandidate{b, connB}, true
	case okA:
		q.pushFrontLocked(a)
	case okB:
		q.pushFrontLocked(b)
	}
	return pairCandidate{}, pairCandidate{}, false
}

// Requeue puts users back at the head in the given order (the first argument
// ends up at the head). Used when match creation fails after dequeue.
func (q *Queue) Requeue(userIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(userIDs) - 1; i >= 0; i-- {
		q.pushFrontLocked(userIDs[i])
	}
}

func (q *Queue) popLocked() string {
	id := q.order[0]
	q.order = q.order[1:]
	delete(q.present, id)
	return id
}

func (q *Queue) pushFrontLocked(userID string) {
	if q.present[userID] {
		return
	}
	q.order = append([]string{userID}, q.order...)
	q.present[userID] = true
}
