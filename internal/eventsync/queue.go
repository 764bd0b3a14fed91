package eventsync

import (
	"sort"
	"sync"
	"time"

	"github.com/bissquit/course-sync/internal/domain"
	"github.com/bissquit/course-sync/internal/pkg/backoff"
)

// QueueConfig contains retry scheduling settings for the queue.
type QueueConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// QueueStats is a consistent snapshot of queue occupancy.
// Total always equals Processing + Pending + Failed.
type QueueStats struct {
	Total      int `json:"total"`
	Processing int `json:"processing"`
	Pending    int `json:"pending"`
	Failed     int `json:"failed"`
}

// FailResult describes what happened to an item after a failed attempt.
type FailResult struct {
	Attempts    int
	Terminal    bool
	NextRetryAt time.Time
	// Event is a copy taken while the queue lock was held.
	Event domain.SyncEvent
}

type queueItem struct {
	event       *domain.SyncEvent
	attempts    int
	nextRetryAt time.Time
	lastError   string
	enqueuedAt  time.Time
}

// Queue is an in-memory retry schedule for sync events.
// An item is either waiting for nextRetryAt, eligible, or in flight;
// in-flight items are never handed out twice.
type Queue struct {
	config QueueConfig
	now    func() time.Time
	jitter func(time.Duration) time.Duration

	mu       sync.Mutex
	items    map[string]*queueItem
	inFlight map[string]struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueClock overrides the queue clock.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithQueueJitter overrides how jitter is applied to retry delays.
func WithQueueJitter(jitter func(time.Duration) time.Duration) QueueOption {
	return func(q *Queue) { q.jitter = jitter }
}

// NewQueue creates an empty queue.
func NewQueue(config QueueConfig, opts ...QueueOption) *Queue {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	q := &Queue{
		config:   config,
		now:      time.Now,
		jitter:   backoff.Jitter,
		items:    make(map[string]*queueItem),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add schedules event for immediate dispatch. Returns false if an event
// with the same id is already queued.
func (q *Queue) Add(event *domain.SyncEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[event.ID]; ok {
		return false
	}

	now := q.now()
	event.Status = domain.EventStatusPending
	q.items[event.ID] = &queueItem{
		event:       event,
		nextRetryAt: now,
		enqueuedAt:  now,
	}
	return true
}

// NextBatch claims up to n eligible events, oldest first, and marks them in flight.
func (q *Queue) NextBatch(n int) []*domain.SyncEvent {
	if n <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	eligible := make([]*queueItem, 0, n)
	for id, item := range q.items {
		if _, busy := q.inFlight[id]; busy {
			continue
		}
		if item.nextRetryAt.After(now) || item.attempts >= q.config.MaxAttempts {
			continue
		}
		eligible = append(eligible, item)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].nextRetryAt.Equal(eligible[j].nextRetryAt) {
			return eligible[i].enqueuedAt.Before(eligible[j].enqueuedAt)
		}
		return eligible[i].nextRetryAt.Before(eligible[j].nextRetryAt)
	})
	if len(eligible) > n {
		eligible = eligible[:n]
	}

	batch := make([]*domain.SyncEvent, 0, len(eligible))
	for _, item := range eligible {
		q.inFlight[item.event.ID] = struct{}{}
		item.event.Status = domain.EventStatusProcessing
		batch = append(batch, item.event)
	}
	return batch
}

// Complete removes a delivered event.
func (q *Queue) Complete(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return false
	}
	item.event.Status = domain.EventStatusCompleted
	delete(q.items, id)
	delete(q.inFlight, id)
	return true
}

// Fail records a failed attempt and schedules the next one. Once attempts
// reach the configured maximum the item is evicted and Terminal is set.
func (q *Queue) Fail(id string, cause error) (FailResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return FailResult{}, false
	}
	delete(q.inFlight, id)

	item.attempts++
	if cause != nil {
		item.lastError = cause.Error()
	}
	item.event.RetryCount = item.attempts

	if item.attempts >= q.config.MaxAttempts {
		item.event.Status = domain.EventStatusFailed
		delete(q.items, id)
		return FailResult{Attempts: item.attempts, Terminal: true, Event: *item.event}, true
	}

	delay := q.jitter(backoff.Delay(item.attempts-1, q.config.BaseDelay, q.config.MaxDelay))
	item.nextRetryAt = q.now().Add(delay)
	item.event.Status = domain.EventStatusPending

	return FailResult{Attempts: item.attempts, NextRetryAt: item.nextRetryAt, Event: *item.event}, true
}

// Contains reports whether an event is still queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[id]
	return ok
}

// Attempts returns the number of failed attempts recorded for a queued event.
func (q *Queue) Attempts(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return 0, false
	}
	return item.attempts, true
}

// Stats returns queue counters computed under a single lock.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStats{Total: len(q.items)}
	for id, item := range q.items {
		if _, busy := q.inFlight[id]; busy {
			stats.Processing++
			continue
		}
		if item.attempts >= q.config.MaxAttempts {
			stats.Failed++
		}
	}
	stats.Pending = stats.Total - stats.Processing - stats.Failed
	return stats
}
