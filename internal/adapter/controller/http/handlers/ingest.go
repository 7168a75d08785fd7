package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/metrics"
	"github.com/ArashiWander/argus/internal/usecase/threats"
)

// IngestHandler receives metric samples and security events.
type IngestHandler struct {
	store   *metrics.Store
	threats *threats.Service
	logger  *slog.Logger
}

// NewIngestHandler creates the ingestion handler.
func NewIngestHandler(store *metrics.Store, threats *threats.Service, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{store: store, threats: threats, logger: logger}
}

// IngestMetrics handles POST /api/v1/ingest/metrics
// The batch is atomic: one invalid sample rejects the whole request.
func (h *IngestHandler) IngestMetrics(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Samples []entity.MetricSample `json:"samples"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if len(req.Samples) == 0 {
		ErrorResponse(w, http.StatusBadRequest, "no samples provided", nil)
		return
	}

	for i := range req.Samples {
		if err := req.Samples[i].Validate(); err != nil {
			ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid sample at index %d", i), err)
			return
		}
	}

	for i := range req.Samples {
		h.store.Append(req.Samples[i])
	}

	JSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"accepted": len(req.Samples),
	})
}

// IngestEvent handles POST /api/v1/ingest/events
func (h *IngestHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var event entity.SecurityEvent
	if err := DecodeJSON(r, &event); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	stored, err := h.threats.IngestEvent(&event)
	if err != nil {
		DomainError(w, err)
		return
	}

	JSONResponse(w, http.StatusAccepted, stored)
}

// RecentEvents handles GET /api/v1/events/recent
func (h *IngestHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	events := h.threats.RecentEvents(limit)
	JSONResponse(w, http.StatusOK, NewListResponse(events, int64(len(events))))
}
