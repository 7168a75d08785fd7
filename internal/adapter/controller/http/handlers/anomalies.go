package handlers

import (
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/alerts"
)

// AnomaliesHandler serves anomaly findings and their lifecycle actions.
type AnomaliesHandler struct {
	manager *alerts.Manager
}

// NewAnomaliesHandler creates the anomalies handler.
func NewAnomaliesHandler(manager *alerts.Manager) *AnomaliesHandler {
	return &AnomaliesHandler{manager: manager}
}

// List handles GET /api/v1/anomalies
func (h *AnomaliesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := entity.AnomalyFilters{
		MetricName: q.Get("metric_name"),
		Service:    q.Get("service"),
		Severity:   q.Get("severity"),
		Status:     q.Get("status"),
		StartTime:  queryTime(r, "start_time"),
		EndTime:    queryTime(r, "end_time"),
		Limit:      queryInt(r, "limit", 100),
	}

	anomalies, total := h.manager.ListAnomalies(filters)
	JSONResponse(w, http.StatusOK, NewListResponse(anomalies, total))
}

// Acknowledge handles POST /api/v1/anomalies/{id}/acknowledge
func (h *AnomaliesHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid anomaly id", err)
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	DecodeJSON(r, &req)

	anomaly, err := h.manager.AcknowledgeAnomaly(r.Context(), id, req.AcknowledgedBy)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, anomaly)
}

// Resolve handles POST /api/v1/anomalies/{id}/resolve
func (h *AnomaliesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid anomaly id", err)
		return
	}

	anomaly, err := h.manager.ResolveAnomaly(r.Context(), id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, anomaly)
}
