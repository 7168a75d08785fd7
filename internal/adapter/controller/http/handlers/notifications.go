package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ArashiWander/argus/internal/entity"
	"github.com/ArashiWander/argus/internal/usecase/notifications"
)

// NotificationHandler manages delivery channels and test dispatches.
type NotificationHandler struct {
	service    *notifications.Service
	dispatcher *notifications.Dispatcher
}

// NewNotificationHandler creates the notifications handler.
func NewNotificationHandler(service *notifications.Service, dispatcher *notifications.Dispatcher) *NotificationHandler {
	return &NotificationHandler{service: service, dispatcher: dispatcher}
}

// CreateChannel handles POST /api/v1/notifications/channels
func (h *NotificationHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var channel entity.NotificationChannel
	if err := DecodeJSON(r, &channel); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	created, err := h.service.CreateChannel(&channel)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusCreated, created)
}

// ListChannels handles GET /api/v1/notifications/channels
func (h *NotificationHandler) ListChannels(w http.ResponseWriter, _ *http.Request) {
	channels := h.service.ListChannels()
	JSONResponse(w, http.StatusOK, NewListResponse(channels, int64(len(channels))))
}

// GetChannel handles GET /api/v1/notifications/channels/{id}
func (h *NotificationHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid channel id", err)
		return
	}

	channel, err := h.service.GetChannel(id)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, channel)
}

// UpdateChannel handles PUT /api/v1/notifications/channels/{id}
func (h *NotificationHandler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid channel id", err)
		return
	}

	var channel entity.NotificationChannel
	if err := DecodeJSON(r, &channel); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	updated, err := h.service.UpdateChannel(id, &channel)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, updated)
}

// DeleteChannel handles DELETE /api/v1/notifications/channels/{id}
func (h *NotificationHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid channel id", err)
		return
	}

	if err := h.service.DeleteChannel(id); err != nil {
		DomainError(w, err)
		return
	}
	SuccessResponse(w, "notification channel deleted", nil)
}

// TestChannel handles POST /api/v1/notifications/channels/{id}/test
// It dispatches synchronously so the caller sees the delivery outcome.
func (h *NotificationHandler) TestChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid channel id", err)
		return
	}

	if _, err := h.service.GetChannel(id); err != nil {
		DomainError(w, err)
		return
	}

	results := h.dispatcher.Dispatch(r.Context(), &entity.Notification{
		Kind:       "test",
		RefID:      uuid.New(),
		Title:      "[test] Argus channel test",
		Message:    "This is a test notification.",
		Severity:   entity.SeverityLow,
		ChannelIDs: []uuid.UUID{id},
		CreatedAt:  time.Now().UTC(),
	})
	if len(results) == 0 {
		ErrorResponse(w, http.StatusConflict, "channel is disabled", nil)
		return
	}
	JSONResponse(w, http.StatusOK, results[0])
}
