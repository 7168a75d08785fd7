package handlers

import (
	"net/http"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/detection"
)

// DetectionHandler manages detection configs and manual sweeps.
type DetectionHandler struct {
	service *detection.Service
}

// NewDetectionHandler creates the detection handler.
func NewDetectionHandler(service *detection.Service) *DetectionHandler {
	return &DetectionHandler{service: service}
}

// CreateConfig handles POST /api/v1/detection/configs
func (h *DetectionHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg entity.DetectionConfig
	if err := DecodeJSON(r, &cfg); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	created, err := h.service.CreateConfig(&cfg)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusCreated, created)
}

// ListConfigs handles GET /api/v1/detection/configs
func (h *DetectionHandler) ListConfigs(w http.ResponseWriter, _ *http.Request) {
	configs := h.service.ListConfigs()
	JSONResponse(w, http.StatusOK, NewListResponse(configs, int64(len(configs))))
}

// GetConfig handles GET /api/v1/detection/configs/{id}
func (h *DetectionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid config id", err)
		return
	}

	cfg, err := h.service.GetConfig(id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, cfg)
}

// UpdateConfig handles PUT /api/v1/detection/configs/{id}
func (h *DetectionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid config id", err)
		return
	}

	var cfg entity.DetectionConfig
	if err := DecodeJSON(r, &cfg); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	updated, err := h.service.UpdateConfig(id, &cfg)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, updated)
}

// DeleteConfig handles DELETE /api/v1/detection/configs/{id}
func (h *DetectionHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid config id", err)
		return
	}

	if err := h.service.DeleteConfig(id); err != nil {
		DomainError(w, err)
		return
	}
	SuccessResponse(w, "detection config deleted", nil)
}

// Run handles POST /api/v1/detection/run
func (h *DetectionHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunDetection(r.Context())
	if err != nil {
		ErrorResponse(w, http.StatusInternalServerError, "detection sweep failed", err)
		return
	}
	JSONResponse(w, http.StatusOK, result)
}
