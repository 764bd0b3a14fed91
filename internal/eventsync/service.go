package eventsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/course-sync/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Config contains sync service configuration.
type Config struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	BatchSize    int
	PollInterval time.Duration
	NumWorkers   int
}

// DefaultConfig returns default sync service configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		BatchSize:    10,
		PollInterval: 5 * time.Second,
		NumWorkers:   1,
	}
}

// EventDispatcher delivers a single event to all subscribers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *domain.SyncEvent) error
	Endpoints() int
}

// DispatchStats summarizes one queue drain.
type DispatchStats struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Evicted   int `json:"evicted"`
}

// Processing results.
const (
	resultCompleted = "completed"
	resultRetry     = "retry"
	resultEvicted   = "evicted"
)

// Service emits sync events, queues them and drives their delivery.
type Service struct {
	config     Config
	queue      *Queue
	dispatcher EventDispatcher
	finder     ResourceFinder
	observer   Observer
	failures   FailureLookup
	now        func() time.Time

	queueOpts []QueueOption
	worker    *Worker

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	tasks   sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for event timestamps and retry scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.queueOpts = append(s.queueOpts, WithQueueClock(now))
	}
}

// WithJitter overrides the jitter applied to retry delays.
func WithJitter(jitter func(time.Duration) time.Duration) Option {
	return func(s *Service) {
		s.queueOpts = append(s.queueOpts, WithQueueJitter(jitter))
	}
}

// WithFailureLookup enables replay of evicted events.
func WithFailureLookup(failures FailureLookup) Option {
	return func(s *Service) { s.failures = failures }
}

// NewService creates a new sync service. A nil observer discards outcomes.
func NewService(config Config, dispatcher EventDispatcher, finder ResourceFinder, observer Observer, opts ...Option) *Service {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		config:     config,
		dispatcher: dispatcher,
		finder:     finder,
		observer:   observer,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = NewQueue(QueueConfig{
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   config.BaseDelay,
		MaxDelay:    config.MaxDelay,
	}, s.queueOpts...)

	return s
}

// EmitEnrollmentCreated emits an enrollment.created event.
func (s *Service) EmitEnrollmentCreated(ctx context.Context, enrollmentID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeEnrollmentCreated, enrollmentID, payload)
}

// EmitEnrollmentUpdated emits an enrollment.updated event.
func (s *Service) EmitEnrollmentUpdated(ctx context.Context, enrollmentID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeEnrollmentUpdated, enrollmentID, payload)
}

// EmitEnrollmentDeleted emits an enrollment.deleted event.
func (s *Service) EmitEnrollmentDeleted(ctx context.Context, enrollmentID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeEnrollmentDeleted, enrollmentID, payload)
}

// EmitProfileUpdated emits a profile.updated event.
func (s *Service) EmitProfileUpdated(ctx context.Context, profileID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeProfileUpdated, profileID, payload)
}

// EmitProgressUpdated emits a progress.updated event.
func (s *Service) EmitProgressUpdated(ctx context.Context, progressID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeProgressUpdated, progressID, payload)
}

// EmitUserCreated emits a user.created event.
func (s *Service) EmitUserCreated(ctx context.Context, userID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeUserCreated, userID, payload)
}

// EmitUserUpdated emits a user.updated event.
func (s *Service) EmitUserUpdated(ctx context.Context, userID string, payload any) (*domain.SyncEvent, error) {
	return s.Emit(ctx, domain.EventTypeUserUpdated, userID, payload)
}

// Emit builds an event, queues it and triggers delivery in the background.
// Only construction errors are returned; delivery failures are retried.
// The returned event is a copy taken at emission.
func (s *Service) Emit(ctx context.Context, eventType domain.EventType, resourceID string, payload any) (*domain.SyncEvent, error) {
	event, err := s.buildEvent(ctx, eventType, resourceID, payload)
	if err != nil {
		return nil, err
	}
	snapshot := *event

	if !s.queue.Add(event) {
		slog.Warn("sync event already queued", "event_id", event.ID)
		return &snapshot, nil
	}
	recordEmitted(string(eventType), "async")

	slog.Debug("sync event queued",
		"event_id", event.ID,
		"event_type", event.Type,
		"resource_id", event.ResourceID,
	)

	s.trigger()
	return &snapshot, nil
}

// SyncNow builds an event and delivers it immediately, bypassing the queue.
// Delivery errors are returned to the caller.
func (s *Service) SyncNow(ctx context.Context, eventType domain.EventType, resourceID string, payload any) (*domain.SyncEvent, error) {
	event, err := s.buildEvent(ctx, eventType, resourceID, payload)
	if err != nil {
		return nil, err
	}
	recordEmitted(string(eventType), "sync")

	if err := s.deliverNow(ctx, event); err != nil {
		return event, fmt.Errorf("sync event %s: %w", event.ID, err)
	}
	return event, nil
}

// ReplayFailure re-delivers an evicted event from a fresh resource snapshot.
// On success the failure is marked resolved.
func (s *Service) ReplayFailure(ctx context.Context, eventID string) (*domain.SyncEvent, error) {
	if s.failures == nil {
		return nil, ErrFailureNotFound
	}

	failure, err := s.failures.GetFailure(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get failure: %w", err)
	}

	event, err := s.buildEvent(ctx, failure.EventType, failure.ResourceID, nil)
	if err != nil {
		return nil, err
	}
	event.ID = failure.EventID
	event.RetryCount = failure.Attempts

	if err := s.deliverNow(ctx, event); err != nil {
		return event, fmt.Errorf("replay event %s: %w", event.ID, err)
	}

	if err := s.observer.LogRecovery(ctx, event); err != nil {
		return event, fmt.Errorf("log recovery: %w", err)
	}

	slog.Info("sync failure replayed", "event_id", event.ID, "event_type", event.Type)
	return event, nil
}

func (s *Service) deliverNow(ctx context.Context, event *domain.SyncEvent) error {
	event.Status = domain.EventStatusProcessing

	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		event.Status = domain.EventStatusFailed
		event.RetryCount++
		if s.dispatcher.Endpoints() > 0 {
			s.observer.RecordAttempt(ctx, event, err)
		}
		return err
	}

	event.Status = domain.EventStatusCompleted
	if s.dispatcher.Endpoints() > 0 {
		s.observer.RecordAttempt(ctx, event, nil)
	}
	return nil
}

// ProcessQueue claims one batch of eligible events and delivers them concurrently.
func (s *Service) ProcessQueue(ctx context.Context) DispatchStats {
	batch := s.queue.NextBatch(s.config.BatchSize)
	stats := DispatchStats{Claimed: len(batch)}
	if len(batch) == 0 {
		return stats
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, event := range batch {
		g.Go(func() error {
			result := s.process(ctx, event)
			recordProcessed(result)

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case resultCompleted:
				stats.Completed++
			case resultRetry:
				stats.Retried++
			case resultEvicted:
				stats.Evicted++
			}
			return nil
		})
	}
	_ = g.Wait()

	RecordQueueStats(s.queue.Stats())

	slog.Debug("sync queue processed",
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"retried", stats.Retried,
		"evicted", stats.Evicted,
	)
	return stats
}

// process delivers one in-flight event and hands it back to the queue.
func (s *Service) process(ctx context.Context, event *domain.SyncEvent) string {
	if s.dispatcher.Endpoints() == 0 {
		s.queue.Complete(event.ID)
		return resultCompleted
	}

	failedBefore := event.RetryCount > 0
	err := s.dispatcher.Dispatch(ctx, event)
	if err == nil {
		s.queue.Complete(event.ID)
		s.observer.RecordAttempt(ctx, event, nil)
		if failedBefore {
			if logErr := s.observer.LogRecovery(ctx, event); logErr != nil {
				slog.Error("failed to log recovery", "event_id", event.ID, "error", logErr)
			}
		}
		return resultCompleted
	}

	res, ok := s.queue.Fail(event.ID, err)
	if !ok {
		slog.Error("in-flight event vanished from queue", "event_id", event.ID)
		return resultEvicted
	}
	failed := res.Event
	s.observer.RecordAttempt(ctx, &failed, err)

	if res.Terminal {
		s.observer.AlertOnCriticalFailure(ctx, &failed, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err))
		return resultEvicted
	}

	slog.Warn("sync event delivery failed, retry scheduled",
		"event_id", failed.ID,
		"event_type", failed.Type,
		"attempt", res.Attempts,
		"max_attempts", s.config.MaxAttempts,
		"next_retry_at", res.NextRetryAt,
		"error", err,
	)
	return resultRetry
}

// QueueStats returns current queue counters.
func (s *Service) QueueStats() QueueStats {
	return s.queue.Stats()
}

// Queue exposes the underlying queue.
func (s *Service) Queue() *Queue {
	return s.queue
}

// Start launches the periodic queue driver. It is a no-op when PollInterval is zero.
func (s *Service) Start(ctx context.Context) {
	if s.config.PollInterval <= 0 {
		return
	}
	s.worker = NewWorker(WorkerConfig{
		PollInterval: s.config.PollInterval,
		NumWorkers:   s.config.NumWorkers,
	}, s)
	s.worker.Start(ctx)
}

// Flush waits until every background dispatch started by Emit has finished.
func (s *Service) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush sync service: %w", ctx.Err())
	}
}

// Stop stops the queue driver, refuses new background dispatches and waits
// for running ones. Events still queued are dropped with the process.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.worker != nil {
		s.worker.Stop()
	}

	err := s.Flush(ctx)
	s.cancel()

	stats := s.queue.Stats()
	if stats.Total > 0 {
		slog.Warn("sync service stopped with undelivered events",
			"pending", stats.Pending,
			"processing", stats.Processing,
		)
	}
	return err
}

func (s *Service) trigger() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.tasks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.tasks.Done()
		s.ProcessQueue(s.ctx)
	}()
}

func (s *Service) buildEvent(ctx context.Context, eventType domain.EventType, resourceID string, payload any) (*domain.SyncEvent, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEventType, eventType)
	}
	if resourceID == "" {
		return nil, fmt.Errorf("%w: empty resource id", ErrResourceNotFound)
	}

	data, err := s.snapshot(ctx, eventType, resourceID, payload)
	if err != nil {
		return nil, err
	}
	return domain.NewSyncEvent(eventType, resourceID, data, s.now()), nil
}

// snapshot freezes payload as JSON, fetching the resource when none is given.
func (s *Service) snapshot(ctx context.Context, eventType domain.EventType, resourceID string, payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		if len(p) == 0 {
			break
		}
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return data, nil
	}

	if eventType.IsDeletion() {
		data, err := json.Marshal(map[string]string{"id": resourceID})
		if err != nil {
			return nil, fmt.Errorf("marshal tombstone: %w", err)
		}
		return data, nil
	}

	if s.finder == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrResourceNotFound, eventType.ResourceType(), resourceID)
	}

	data, err := s.finder.FindByID(ctx, eventType.ResourceType(), resourceID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrResourceNotFound, eventType.ResourceType(), resourceID)
		}
		return nil, fmt.Errorf("find %s %s: %w", eventType.ResourceType(), resourceID, err)
	}
	return data, nil
}
