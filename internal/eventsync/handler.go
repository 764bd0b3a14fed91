package eventsync

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/bissquit/course-sync/internal/domain"
	"github.com/bissquit/course-sync/internal/pkg/ctxlog"
	"github.com/bissquit/course-sync/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrResourceNotFound, Status: http.StatusNotFound, Message: "resource not found"},
	{Error: ErrInvalidEventType, Status: http.StatusBadRequest, Message: "invalid event type"},
	{Error: ErrFailureNotFound, Status: http.StatusNotFound, Message: "sync failure not found"},
	{Error: ErrNonSuccessStatus, Status: http.StatusBadGateway},
	{Error: ErrNetworkFailure, Status: http.StatusBadGateway},
	{Error: ErrDeliveryTimeout, Status: http.StatusGatewayTimeout},
}

// Handler handles HTTP requests for the sync module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new sync handler.
func NewHandler(service *Service) *Handler {
	v := validator.New()
	// report json field names in validation errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Handler{
		service:   service,
		validator: v,
	}
}

// RegisterRoutes registers sync routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sync/stats", h.GetQueueStats)
	r.Post("/sync/events", h.EmitEvent)
	r.Post("/sync/process", h.ProcessQueue)
	r.Post("/sync/failures/{eventId}/replay", h.ReplayFailure)
}

// EmitEventRequest represents request body for emitting an event.
type EmitEventRequest struct {
	Type       string          `json:"type" validate:"required,oneof=enrollment.created enrollment.updated enrollment.deleted profile.updated progress.updated user.created user.updated"`
	ResourceID string          `json:"resource_id" validate:"required,max=255"`
	Payload    json.RawMessage `json:"payload"`
	Sync       bool            `json:"sync"`
}

// GetQueueStats handles GET /sync/stats.
func (h *Handler) GetQueueStats(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.service.QueueStats())
}

// EmitEvent handles POST /sync/events.
func (h *Handler) EmitEvent(w http.ResponseWriter, r *http.Request) {
	var req EmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	var payload any
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		payload = req.Payload
	}

	eventType := domain.EventType(req.Type)
	if req.Sync {
		event, err := h.service.SyncNow(r.Context(), eventType, req.ResourceID, payload)
		if err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		httputil.Success(w, http.StatusOK, event)
		return
	}

	event, err := h.service.Emit(r.Context(), eventType, req.ResourceID, payload)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusAccepted, event)
}

// ProcessQueue handles POST /sync/process.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.service.ProcessQueue(r.Context()))
}

// ReplayFailure handles POST /sync/failures/{eventId}/replay.
func (h *Handler) ReplayFailure(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	ctx := ctxlog.With(r.Context(), "event_id", eventID)

	event, err := h.service.ReplayFailure(ctx, eventID)
	if err != nil {
		httputil.HandleError(ctx, w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, event)
}
