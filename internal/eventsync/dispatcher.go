package eventsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/course-sync/internal/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Webhook headers.
const (
	HeaderEventID   = "X-Sync-Event-Id"
	HeaderEventType = "X-Sync-Event-Type"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxErrorBodyBytes     = 1 << 10
)

// DispatcherConfig holds webhook dispatcher configuration.
type DispatcherConfig struct {
	Endpoints []string
	Timeout   time.Duration
	// RateLimit caps outbound requests per second across all endpoints. Zero disables it.
	RateLimit float64
}

// Dispatcher delivers sync events to every configured webhook endpoint.
type Dispatcher struct {
	config     DispatcherConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = defaultWebhookTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(1, int(config.RateLimit)))
	}

	slog.Info("webhook dispatcher configured",
		"endpoints", len(config.Endpoints),
		"timeout", config.Timeout,
		"rate_limit", config.RateLimit,
	)

	return &Dispatcher{
		config:     config,
		httpClient: &http.Client{},
		limiter:    limiter,
	}
}

// Endpoints returns the number of configured endpoints.
func (d *Dispatcher) Endpoints() int {
	return len(d.config.Endpoints)
}

// Dispatch posts event to all endpoints concurrently. It succeeds only if
// every endpoint answers 2xx; otherwise the per-endpoint errors are joined.
// With no endpoints configured there is nobody to notify and it succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.SyncEvent) error {
	if len(d.config.Endpoints) == 0 {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	errs := make([]error, len(d.config.Endpoints))
	var g errgroup.Group
	for i, endpoint := range d.config.Endpoints {
		g.Go(func() error {
			start := time.Now()
			errs[i] = d.send(ctx, endpoint, event, body)
			recordDelivery(errs[i], time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, endpoint string, event *domain.SyncEvent, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Endpoint: endpoint, Kind: ErrDeliveryTimeout, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Endpoint: endpoint, Kind: ErrNetworkFailure, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderEventType, string(event.Type))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		kind := ErrNetworkFailure
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrDeliveryTimeout
		}
		return &DeliveryError{Endpoint: endpoint, Kind: kind, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Debug("webhook rejected event",
			"endpoint", maskURL(endpoint),
			"event_id", event.ID,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return &DeliveryError{Endpoint: endpoint, StatusCode: resp.StatusCode, Kind: ErrNonSuccessStatus}
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	slog.Debug("webhook delivered",
		"endpoint", maskURL(endpoint),
		"event_id", event.ID,
		"status", resp.StatusCode,
	)
	return nil
}
