package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/course-sync/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

const maxFailureRecords = 500

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrInvalidWindow, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for sync health and failure reports.
type Handler struct {
	monitor *Monitor
}

// NewHandler creates a new monitor handler.
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// RegisterRoutes registers monitor routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sync/health", h.CheckHealth)
	r.Get("/sync/failures", h.GetFailureStats)
	r.Get("/sync/failures/records", h.ListFailures)
}

// CheckHealth handles GET /sync/health.
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.CheckSyncHealth(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.Success(w, status, report)
}

// GetFailureStats handles GET /sync/failures.
func (h *Handler) GetFailureStats(w http.ResponseWriter, r *http.Request) {
	since, err := parseTimeParam(r, "since")
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid since: expected RFC 3339 time")
		return
	}
	until, err := parseTimeParam(r, "until")
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid until: expected RFC 3339 time")
		return
	}

	var window *Window
	if !since.IsZero() || !until.IsZero() {
		window = &Window{Since: since, Until: until}
	}

	stats, err := h.monitor.GetFailureStats(r.Context(), window)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, stats)
}

// ListFailures handles GET /sync/failures/records.
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	filter := FailureFilter{Limit: maxFailureRecords}

	if v := r.URL.Query().Get("unresolved"); v != "" {
		unresolved, err := strconv.ParseBool(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid unresolved: expected boolean")
			return
		}
		filter.UnresolvedOnly = unresolved
	}

	failures, err := h.monitor.ListFailures(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, failures)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
