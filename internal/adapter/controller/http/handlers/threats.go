package handlers

import (
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/threats"
)

// ThreatsHandler manages threat rules and manual correlation runs.
type ThreatsHandler struct {
	service *threats.Service
}

// NewThreatsHandler creates the threats handler.
func NewThreatsHandler(service *threats.Service) *ThreatsHandler {
	return &ThreatsHandler{service: service}
}

// CreateRule handles POST /api/v1/threats/rules
func (h *ThreatsHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule entity.ThreatRule
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

// ListRules handles GET /api/v1/threats/rules
func (h *ThreatsHandler) ListRules(w http.ResponseWriter, _ *http.Request) {
	rules := h.service.ListRules()
	JSONResponse(w, http.StatusOK, NewListResponse(rules, int64(len(rules))))
}

// GetRule handles GET /api/v1/threats/rules/{id}
func (h *ThreatsHandler) GetRule(w http.ResponseWriter, r *http.Request) {
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

// UpdateRule handles PUT /api/v1/threats/rules/{id}
func (h *ThreatsHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	var rule entity.ThreatRule
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

// DeleteRule handles DELETE /api/v1/threats/rules/{id}
func (h *ThreatsHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	if err := h.service.DeleteRule(id); err != nil {
		DomainError(w, err)
		return
	}
	SuccessResponse(w, "threat rule deleted", nil)
}

// Run handles POST /api/v1/threats/run
func (h *ThreatsHandler) Run(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, h.service.RunCorrelation(r.Context()))
}
