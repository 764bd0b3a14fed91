package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/course-sync/internal/domain"
	"github.com/bissquit/course-sync/internal/eventsync"
	"github.com/bissquit/course-sync/internal/pkg/backoff"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LevelCritical is logged for events evicted after exhausting retries.
const LevelCritical = slog.Level(12)

// Health thresholds.
const (
	HealthWindow         = time.Hour
	MaxFailureRate       = 0.10
	MaxFailuresPerWindow = 10
)

var (
	_ eventsync.Observer      = (*Monitor)(nil)
	_ eventsync.FailureLookup = (*Monitor)(nil)
)

// Config contains monitor configuration.
type Config struct {
	WriteAttempts  int
	WriteBaseDelay time.Duration
}

// DefaultConfig returns default monitor configuration.
func DefaultConfig() Config {
	return Config{
		WriteAttempts:  3,
		WriteBaseDelay: 100 * time.Millisecond,
	}
}

// Alert describes an event that will not be delivered without intervention.
type Alert struct {
	Title        string
	EventID      string
	EventType    domain.EventType
	ResourceID   string
	ResourceType domain.ResourceType
	Attempts     int
	Error        string
	At           time.Time
}

// Alerter forwards critical failures to a paging integration.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// Window restricts statistics to [Since, Until]. Zero bounds are open.
type Window struct {
	Since time.Time
	Until time.Time
}

// FailureStats aggregates failure records.
type FailureStats struct {
	Total          int                         `json:"total"`
	Unresolved     int                         `json:"unresolved"`
	ByEventType    map[domain.EventType]int    `json:"by_event_type"`
	ByResourceType map[domain.ResourceType]int `json:"by_resource_type"`
	MeanAttempts   float64                     `json:"mean_attempts"`
}

// HealthReport is the result of a sync health check.
type HealthReport struct {
	Healthy     bool      `json:"healthy"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	FailureRate float64   `json:"failure_rate"`
	Since       time.Time `json:"since"`
	CheckedAt   time.Time `json:"checked_at"`
	Summary     string    `json:"summary"`
}

// Monitor records dispatch outcomes and answers health queries.
type Monitor struct {
	config   Config
	repo     Repository
	alerters []Alerter
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used for audit timestamps and the health window.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithAlerter registers an alerter called on critical failures.
func WithAlerter(a Alerter) Option {
	return func(m *Monitor) { m.alerters = append(m.alerters, a) }
}

// New creates a new sync monitor.
func New(config Config, repo Repository, opts ...Option) *Monitor {
	defaults := DefaultConfig()
	if config.WriteAttempts <= 0 {
		config.WriteAttempts = defaults.WriteAttempts
	}
	if config.WriteBaseDelay <= 0 {
		config.WriteBaseDelay = defaults.WriteBaseDelay
	}

	m := &Monitor{
		config: config,
		repo:   repo,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordAttempt appends a success or failure entry for one dispatch.
func (m *Monitor) RecordAttempt(ctx context.Context, event *domain.SyncEvent, err error) {
	entry := m.newLog(event, domain.SyncOutcomeSuccess)
	entry.Attempt = event.RetryCount + 1
	if err != nil {
		entry.Outcome = domain.SyncOutcomeFailure
		entry.Attempt = event.RetryCount
		entry.Error = err.Error()
	}

	if writeErr := m.write(ctx, func(ctx context.Context) error {
		return m.repo.AppendLog(ctx, entry)
	}); writeErr != nil {
		auditWriteErrors.WithLabelValues("log").Inc()
		slog.Error("failed to record sync attempt",
			"event_id", event.ID,
			"outcome", entry.Outcome,
			"error", writeErr,
		)
	}
}

// LogFailure appends a SyncFailure for the event.
func (m *Monitor) LogFailure(ctx context.Context, event *domain.SyncEvent, cause error) error {
	now := m.now().UTC()

	firstFailedAt := now
	first, found, err := m.repo.FirstFailureAt(ctx, event.ID)
	if err != nil {
		slog.Warn("failed to look up first failure", "event_id", event.ID, "error", err)
	} else if found {
		firstFailedAt = first
	}

	failure := &domain.SyncFailure{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		EventType:     event.Type,
		ResourceID:    event.ResourceID,
		ResourceType:  event.ResourceType,
		Attempts:      event.RetryCount,
		FirstFailedAt: firstFailedAt,
		LastFailedAt:  now,
		CreatedAt:     now,
	}
	if cause != nil {
		failure.Error = cause.Error()
	}

	if err := m.write(ctx, func(ctx context.Context) error {
		return m.repo.CreateFailure(ctx, failure)
	}); err != nil {
		auditWriteErrors.WithLabelValues("failure").Inc()
		return fmt.Errorf("create sync failure: %w", err)
	}

	slog.Error("sync failure recorded",
		"event_id", failure.EventID,
		"event_type", failure.EventType,
		"resource_id", failure.ResourceID,
		"attempts", failure.Attempts,
		"error", failure.Error,
	)
	return nil
}

// LogRecovery resolves outstanding failures of the event and appends a recovery entry.
func (m *Monitor) LogRecovery(ctx context.Context, event *domain.SyncEvent) error {
	now := m.now().UTC()

	var resolved int64
	if err := m.write(ctx, func(ctx context.Context) error {
		var err error
		resolved, err = m.repo.ResolveFailures(ctx, event.ID, now)
		return err
	}); err != nil {
		auditWriteErrors.WithLabelValues("failure").Inc()
		return fmt.Errorf("resolve sync failures: %w", err)
	}

	entry := m.newLog(event, domain.SyncOutcomeRecovery)
	entry.Attempt = event.RetryCount + 1
	if err := m.write(ctx, func(ctx context.Context) error {
		return m.repo.AppendLog(ctx, entry)
	}); err != nil {
		auditWriteErrors.WithLabelValues("log").Inc()
		return fmt.Errorf("append recovery log: %w", err)
	}

	slog.Info("sync recovered",
		"event_id", event.ID,
		"event_type", event.Type,
		"retry_count", event.RetryCount,
		"resolved_failures", resolved,
	)
	return nil
}

// AlertOnCriticalFailure logs the eviction at critical level, records the
// failure and notifies registered alerters.
func (m *Monitor) AlertOnCriticalFailure(ctx context.Context, event *domain.SyncEvent, err error) {
	criticalFailures.WithLabelValues(string(event.Type)).Inc()

	errText := ""
	if err != nil {
		errText = err.Error()
	}

	slog.Log(ctx, LevelCritical, "sync event dropped after exhausting retries",
		"event_id", event.ID,
		"event_type", event.Type,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
		"attempts", event.RetryCount,
		"error", errText,
	)

	if logErr := m.LogFailure(ctx, event, err); logErr != nil {
		slog.Error("failed to record critical failure", "event_id", event.ID, "error", logErr)
	}

	if len(m.alerters) == 0 {
		return
	}

	alert := Alert{
		Title:        fmt.Sprintf("%s sync failed after %d attempts", title(string(event.ResourceType)), event.RetryCount),
		EventID:      event.ID,
		EventType:    event.Type,
		ResourceID:   event.ResourceID,
		ResourceType: event.ResourceType,
		Attempts:     event.RetryCount,
		Error:        errText,
		At:           m.now().UTC(),
	}
	for _, a := range m.alerters {
		if alertErr := a.Alert(ctx, alert); alertErr != nil {
			slog.Error("failed to send alert", "event_id", event.ID, "error", alertErr)
		}
	}
}

// GetFailure returns the failure record of an evicted event.
func (m *Monitor) GetFailure(ctx context.Context, eventID string) (*domain.SyncFailure, error) {
	failure, err := m.repo.GetFailureByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrFailureNotFound) {
			return nil, fmt.Errorf("%w: %s", eventsync.ErrFailureNotFound, eventID)
		}
		return nil, fmt.Errorf("get sync failure: %w", err)
	}
	return failure, nil
}

// ListFailures returns failure records matching filter.
func (m *Monitor) ListFailures(ctx context.Context, filter FailureFilter) ([]domain.SyncFailure, error) {
	failures, err := m.repo.ListFailures(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sync failures: %w", err)
	}
	return failures, nil
}

// GetFailureStats aggregates failures, optionally restricted to window.
func (m *Monitor) GetFailureStats(ctx context.Context, window *Window) (*FailureStats, error) {
	var filter FailureFilter
	if window != nil {
		if !window.Since.IsZero() && !window.Until.IsZero() && window.Until.Before(window.Since) {
			return nil, fmt.Errorf("%w: until is before since", ErrInvalidWindow)
		}
		if !window.Since.IsZero() {
			since := window.Since
			filter.Since = &since
		}
		if !window.Until.IsZero() {
			until := window.Until
			filter.Until = &until
		}
	}

	failures, err := m.repo.ListFailures(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sync failures: %w", err)
	}

	stats := &FailureStats{
		Total:          len(failures),
		ByEventType:    make(map[domain.EventType]int),
		ByResourceType: make(map[domain.ResourceType]int),
	}
	attempts := 0
	for _, f := range failures {
		stats.ByEventType[f.EventType]++
		stats.ByResourceType[f.ResourceType]++
		attempts += f.Attempts
		if !f.Resolved {
			stats.Unresolved++
		}
	}
	if stats.Total > 0 {
		stats.MeanAttempts = float64(attempts) / float64(stats.Total)
	}
	return stats, nil
}

// CheckSyncHealth evaluates dispatch outcomes over the trailing HealthWindow.
func (m *Monitor) CheckSyncHealth(ctx context.Context) (*HealthReport, error) {
	now := m.now().UTC()
	since := now.Add(-HealthWindow)

	counts, err := m.repo.CountOutcomes(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count sync outcomes: %w", err)
	}

	report := &HealthReport{
		Failures:  counts.Failures,
		Successes: counts.Successes,
		Since:     since,
		CheckedAt: now,
	}
	if total := counts.Failures + counts.Successes; total > 0 {
		report.FailureRate = float64(counts.Failures) / float64(total)
	}
	report.Healthy = report.FailureRate <= MaxFailureRate && report.Failures <= MaxFailuresPerWindow

	status := "healthy"
	if !report.Healthy {
		status = "unhealthy"
	}
	report.Summary = fmt.Sprintf("%s: %d failures, %d successes in the last %s (failure rate %.1f%%)",
		title(status), report.Failures, report.Successes, HealthWindow, report.FailureRate*100)

	recordHealth(report)
	if !report.Healthy {
		slog.Warn("sync unhealthy",
			"failures", report.Failures,
			"successes", report.Successes,
			"failure_rate", report.FailureRate,
		)
	}
	return report, nil
}

func (m *Monitor) newLog(event *domain.SyncEvent, outcome domain.SyncOutcome) *domain.SyncLog {
	return &domain.SyncLog{
		ID:           uuid.NewString(),
		EventID:      event.ID,
		EventType:    event.Type,
		ResourceID:   event.ResourceID,
		ResourceType: event.ResourceType,
		Outcome:      outcome,
		CreatedAt:    m.now().UTC(),
	}
}

func (m *Monitor) write(ctx context.Context, op func(ctx context.Context) error) error {
	return backoff.Retry(ctx, op, m.config.WriteAttempts, m.config.WriteBaseDelay)
}

// title upper-cases the first letter of each word. A Caser is not safe for
// concurrent use, so one is built per call.
func title(s string) string {
	return cases.Title(language.English).String(s)
}
