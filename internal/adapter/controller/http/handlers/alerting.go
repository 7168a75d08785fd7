package handlers

import (
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/alerting"
)

// AlertRulesHandler manages alert rules and manual evaluations.
type AlertRulesHandler struct {
	service *alerting.Service
}

// NewAlertRulesHandler creates the alert rules handler.
func NewAlertRulesHandler(service *alerting.Service) *AlertRulesHandler {
	return &AlertRulesHandler{service: service}
}

// CreateRule handles POST /api/v1/alerting/rules
func (h *AlertRulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule entity.AlertRule
	if err := DecodeJSON(r, &rule); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	created, err := h.service.CreateRule(&rule)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusCreated, created)
}

// ListRules handles GET /api/v1/alerting/rules
func (h *AlertRulesHandler) ListRules(w http.ResponseWriter, _ *http.Request) {
	rules := h.service.ListRules()
	JSONResponse(w, http.StatusOK, NewListResponse(rules, int64(len(rules))))
}

// GetRule handles GET /api/v1/alerting/rules/{id}
func (h *AlertRulesHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	rule, err := h.service.GetRule(id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/v1/alerting/rules/{id}
func (h *AlertRulesHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	var rule entity.AlertRule
	if err := DecodeJSON(r, &rule); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	updated, err := h.service.UpdateRule(id, &rule)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /api/v1/alerting/rules/{id}
func (h *AlertRulesHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	if err := h.service.DeleteRule(id); err != nil {
		DomainError(w, err)
		return
	}
	SuccessResponse(w, "alert rule deleted", nil)
}

// Run handles POST /api/v1/alerting/run
func (h *AlertRulesHandler) Run(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, h.service.RunEvaluation(r.Context()))
}
