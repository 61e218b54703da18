// Package jobs implements the background job-manager pattern spec.md
// §4.3 specializes three ways (scrape, download, transfer): a
// long-running task with start/cancel/status, at-most-one-running
// semantics per kind, and a cooperatively cancellable background
// goroutine, grounded on the teacher's shutdown-channel goroutine
// loops in pkg/server/server.go.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job record's lifecycle stage. Transitions are
// monotonic: pending -> running -> (completed|failed|cancelled).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrAlreadyBusy is returned by Start when a job of this kind is
// already pending or running.
var ErrAlreadyBusy = errors.New("jobs: already busy")

// ErrNoJob is returned by Cancel when there is no current job to
// cancel (or it has already finished).
var ErrNoJob = errors.New("jobs: no job")

func newJobID() string { return uuid.NewString() }

// cancelSignal is a level-triggered, set-once cancellation flag: Cancel
// may be called any number of times and from any goroutine; Cancelled
// reports whether it has ever fired.
type cancelSignal struct {
	mu        sync.Mutex
	cancelled bool
	ch        chan struct{}
}

func newCancelSignal() *cancelSignal {
	return &cancelSignal{ch: make(chan struct{})}
}

// Cancel requests cancellation. Returns true the first time it is
// called, false on every subsequent call (idempotent).
func (c *cancelSignal) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return false
	}
	c.cancelled = true
	close(c.ch)
	return true
}

// Cancelled reports whether Cancel has ever been called. Safe to pass
// as the scraper's poll function.
func (c *cancelSignal) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// runner holds the at-most-one-busy state shared by every job
// manager specialization. It is not itself exported; each manager
// embeds it and adds its own job-record shape.
type runner struct {
	mu       sync.Mutex
	busy     bool
	cancel   *cancelSignal
	startedAt time.Time
}

// tryStart claims the busy slot or returns ErrAlreadyBusy. On success
// it returns the cancellation signal the background task should poll.
func (r *runner) tryStart() (*cancelSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return nil, ErrAlreadyBusy
	}
	r.busy = true
	r.cancel = newCancelSignal()
	r.startedAt = time.Now()
	return r.cancel, nil
}

// finish releases the busy slot. Safe to call once per tryStart.
func (r *runner) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
}

// requestCancel sets the current cancellation signal, if any running
// job holds one. Returns ErrNoJob if nothing is running.
func (r *runner) requestCancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.busy || r.cancel == nil {
		return ErrNoJob
	}
	r.cancel.Cancel()
	return nil
}

// isBusy reports the current busy state.
func (r *runner) isBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// boundedHistory is a fixed-capacity ring of past job records, oldest
// evicted first, per spec.md §9's bounded-history requirement (default
// 100).
type boundedHistory[T any] struct {
	mu       sync.Mutex
	cap      int
	records  []T
}

func newBoundedHistory[T any](capacity int) *boundedHistory[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &boundedHistory[T]{cap: capacity}
}

// push prepends record so List returns reverse-chronological order,
// evicting the oldest entry once at capacity.
func (h *boundedHistory[T]) push(record T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append([]T{record}, h.records...)
	if len(h.records) > h.cap {
		h.records = h.records[:h.cap]
	}
}

// list returns a copy of the history in reverse-chronological order.
func (h *boundedHistory[T]) list() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, len(h.records))
	copy(out, h.records)
	return out
}
