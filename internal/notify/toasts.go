// Package notify holds per-client-session toasts and streams them to open pages.
package notify

import (
	"sync"
	"time"

	"webcarros/internal/observability"
)

// Kind is the toast flavour.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// maxPending bounds toasts kept for a session that has no page open.
const maxPending = 20

// Toast is a transient message shown to one client session.
type Toast struct {
	ID      int64     `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is what flows use to tell the user about outcomes.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Queue keeps toasts until a page renders or acknowledges them.
// Live subscribers get a copy as soon as a toast is pushed.
type Queue struct {
	mu      sync.Mutex
	seq     int64
	pending []Toast
	subs    map[int]chan Toast
	nextSub int
	closed  bool
	now     func() time.Time
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{subs: make(map[int]chan Toast), now: time.Now}
}

func (q *Queue) Success(message string) {
	q.Push(KindSuccess, message)
}

func (q *Queue) Error(message string) {
	q.Push(KindError, message)
}

// Push records a toast and offers it to live subscribers without blocking.
func (q *Queue) Push(kind Kind, message string) Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	t := Toast{ID: q.seq, Kind: kind, Message: message, At: q.now()}
	observability.ToastsPushed.WithLabelValues(string(kind)).Inc()
	if q.closed {
		return t
	}

	q.pending = append(q.pending, t)
	if len(q.pending) > maxPending {
		q.pending = q.pending[len(q.pending)-maxPending:]
	}
	for _, ch := range q.subs {
		select {
		case ch <- t:
		default:
		}
	}
	return t
}

// Drain returns and forgets every pending toast.
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Pending returns a copy of the pending toasts.
func (q *Queue) Pending() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Toast(nil), q.pending...)
}

// Ack forgets a toast a live page has shown.
func (q *Queue) Ack(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.pending {
		if t.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Subscribe streams toasts pushed from now on. The channel is closed by
// cancel or by Close.
func (q *Queue) Subscribe() (<-chan Toast, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan Toast, 16)
	if q.closed {
		close(ch)
		return ch, func() {}
	}
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			if sub, ok := q.subs[id]; ok {
				delete(q.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. Later pushes are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, ch := range q.subs {
		delete(q.subs, id)
		close(ch)
	}
	q.pending = nil
}
