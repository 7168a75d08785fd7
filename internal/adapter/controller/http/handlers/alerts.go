package handlers

import (
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/alerts"
)

// AlertsHandler serves alerts, security alerts and the stats overview.
type AlertsHandler struct {
	manager *alerts.Manager
}

// NewAlertsHandler creates the alerts handler.
func NewAlertsHandler(manager *alerts.Manager) *AlertsHandler {
	return &AlertsHandler{manager: manager}
}

// List handles GET /api/v1/alerts
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := entity.AlertFilters{
		MetricName: q.Get("metric_name"),
		Service:    q.Get("service"),
		Severity:   q.Get("severity"),
		Status:     q.Get("status"),
		StartTime:  queryTime(r, "start_time"),
		EndTime:    queryTime(r, "end_time"),
		Limit:      queryInt(r, "limit", 100),
	}

	list, total := h.manager.ListAlerts(filters)
	JSONResponse(w, http.StatusOK, NewListResponse(list, total))
}

// Get handles GET /api/v1/alerts/{id}
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid alert id", err)
		return
	}

	alert, err := h.manager.GetAlert(id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, alert)
}

// Acknowledge handles POST /api/v1/alerts/{id}/acknowledge
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid alert id", err)
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	DecodeJSON(r, &req)

	alert, err := h.manager.AcknowledgeAlert(r.Context(), id, req.AcknowledgedBy)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, alert)
}

// Resolve handles POST /api/v1/alerts/{id}/resolve
func (h *AlertsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid alert id", err)
		return
	}

	alert, err := h.manager.ResolveAlert(r.Context(), id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, alert)
}

// ListSecurity handles GET /api/v1/security-alerts
func (h *AlertsHandler) ListSecurity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := entity.SecurityAlertFilters{
		Severity:  q.Get("severity"),
		Status:    q.Get("status"),
		StartTime: queryTime(r, "start_time"),
		EndTime:   queryTime(r, "end_time"),
		Limit:     queryInt(r, "limit", 100),
	}

	list, total := h.manager.ListSecurityAlerts(filters)
	JSONResponse(w, http.StatusOK, NewListResponse(list, total))
}

// AcknowledgeSecurity handles POST /api/v1/security-alerts/{id}/acknowledge
func (h *AlertsHandler) AcknowledgeSecurity(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid alert id", err)
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	DecodeJSON(r, &req)

	alert, err := h.manager.AcknowledgeSecurityAlert(r.Context(), id, req.AcknowledgedBy)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, alert)
}

// ResolveSecurity handles POST /api/v1/security-alerts/{id}/resolve
func (h *AlertsHandler) ResolveSecurity(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid alert id", err)
		return
	}

	alert, err := h.manager.ResolveSecurityAlert(r.Context(), id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, alert)
}

// Stats handles GET /api/v1/stats
func (h *AlertsHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, http.StatusOK, h.manager.Stats())
}
