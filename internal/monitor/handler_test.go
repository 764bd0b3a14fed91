package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(m *Monitor) http.Handler {
	r := chi.NewRouter()
	NewHandler(m).RegisterRoutes(r)
	return r
}

func TestHandler_CheckHealth(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(&memRepo{}, clock)
	router := newTestRouter(m)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	recordOutcomes(m, clock, 11, 0)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Data HealthReport `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Data.Healthy)
	assert.Equal(t, 11, body.Data.Failures)
}

func TestHandler_GetFailureStats(t *testing.T) {
	router := newTestRouter(newTestMonitor(&memRepo{}, newFakeClock()))

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "no window", query: "", status: http.StatusOK},
		{name: "since only", query: "?since=2026-03-10T00:00:00Z", status: http.StatusOK},
		{name: "bad since", query: "?since=yesterday", status: http.StatusBadRequest},
		{name: "bad until", query: "?until=1700000000", status: http.StatusBadRequest},
		{name: "until before since", query: "?since=2026-03-10T00:00:00Z&until=2026-03-09T00:00:00Z", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/failures"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandler_ListFailures(t *testing.T) {
	clock := newFakeClock()
	repo := &memRepo{}
	m := newTestMonitor(repo, clock)
	router := newTestRouter(m)

	resolved := testEvent(clock)
	require.NoError(t, m.LogFailure(t.Context(), resolved, nil))
	require.NoError(t, m.LogRecovery(t.Context(), resolved))

	clock.Advance(1)
	open := testEvent(clock)
	require.NoError(t, m.LogFailure(t.Context(), open, nil))

	var body struct {
		Data []struct {
			EventID  string `json:"event_id"`
			Resolved bool   `json:"resolved"`
		} `json:"data"`
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/failures/records", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Data, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/failures/records?unresolved=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, open.ID, body.Data[0].EventID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/failures/records?unresolved=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
