package jobs

import (
	"sync"
	"time"
)

// Event is one job state broadcast. Seq increases monotonically per job so
// subscribers can detect ordering.
type Event struct {
	Seq      int64     `json:"seq"`
	JobID    string    `json:"job_id"`
	Status   Status    `json:"status"`
	Progress Progress  `json:"progress"`
	Time     time.Time `json:"time"`
}

const subscriberBuffer = 256

type subscriber struct {
	ch     chan Event
	closed bool
}

// Hub fans job events out to subscribers. A subscriber that connects after
// a job started receives the latest snapshot first, then live events in
// publish order. Slow subscribers are dropped rather than blocking the
// publisher.
type Hub struct {
	mu   sync.Mutex
	seq  map[string]int64
	last map[string]Event
	subs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		seq:  make(map[string]int64),
		last: make(map[string]Event),
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish records the snapshot for jobID and delivers the event to every
// current subscriber.
func (h *Hub) Publish(jobID string, status Status, progress Progress) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[jobID]++
	event := Event{
		Seq:      h.seq[jobID],
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Time:     time.Now().UTC(),
	}
	h.last[jobID] = event

	for sub := range h.subs[jobID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Buffer full: close out the laggard instead of stalling.
			sub.closed = true
			close(sub.ch)
			delete(h.subs[jobID], sub)
		}
	}
	return event
}

// Snapshot returns the most recent event for a job, if any.
func (h *Hub) Snapshot(jobID string) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	event, ok := h.last[jobID]
	return event, ok
}

// Subscribe registers for a job's events. The returned channel delivers the
// current snapshot first when one exists. cancel must be called when done.
func (h *Hub) Subscribe(jobID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if last, ok := h.last[jobID]; ok {
		sub.ch <- last
	}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][sub] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		close(sub.ch)
		delete(h.subs[jobID], sub)
	}
	return sub.ch, cancel
}

// Forget drops the stored snapshot and disconnects subscribers for a job
// that has been deleted.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.last, jobID)
	delete(h.seq, jobID)
	for sub := range h.subs[jobID] {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	delete(h.subs, jobID)
}
