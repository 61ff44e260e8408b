// Package http is the staff admin API. It speaks JSON over chi and maps
// the engine's error taxonomy onto HTTP status codes. Mutations return
// 202 with the optimistic queue snapshot; durable rejections show up as
// notices on the next read.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/openmiclive/lineup/internal/errors"
	"github.com/openmiclive/lineup/internal/service"
	"github.com/openmiclive/lineup/pkg/logger"
)

type Handler struct {
	registry  *service.Registry
	logger    logger.Logger
	validator *validator.Validate
}

func NewHandler(registry *service.Registry, logger logger.Logger) *Handler {
	return &Handler{
		registry:  registry,
		logger:    logger,
		validator: validator.New(),
	}
}

type promoteRequest struct {
	Override bool `json:"override"`
}

type reorderRequest struct {
	PriorityOrder *int `json:"priority_order" validate:"required"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "lineup",
	})
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.eventService(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, svc.Queue(r.Context()))
}

func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := h.signupService(w, r)
	if !ok {
		return
	}

	var req promoteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	if err := svc.Promote(r.Context(), id, req.Override); err != nil {
		h.respondEngineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, svc.Queue(r.Context()))
}

func (h *Handler) StartTurn(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc service.LineupService, id string) error {
		return svc.StartTurn(r.Context(), id)
	})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc service.LineupService, id string) error {
		return svc.Complete(r.Context(), id)
	})
}

func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc service.LineupService, id string) error {
		return svc.Skip(r.Context(), id)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc service.LineupService, id string) error {
		return svc.Cancel(r.Context(), id)
	})
}

func (h *Handler) Prioritize(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc service.LineupService, id string) error {
		return svc.Prioritize(r.Context(), id)
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(svc service.LineupService, id string) error {
		return svc.Delete(r.Context(), id)
	})
}

func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := h.signupService(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := svc.Reorder(r.Context(), id, *req.PriorityOrder); err != nil {
		h.respondEngineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, svc.Queue(r.Context()))
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.eventService(w, r)
	if !ok {
		return
	}

	out, err := svc.Advance(r.Context())
	if err != nil {
		// A partial advance still committed the completion; report both.
		h.respondJSON(w, statusFor(err), map[string]any{
			"error":     err.Error(),
			"completed": out.Completed,
		})
		return
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.eventService(w, r)
	if !ok {
		return
	}
	if err := svc.Refresh(r.Context()); err != nil {
		h.respondEngineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, svc.Queue(r.Context()))
}

func (h *Handler) PausePolling(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.eventService(w, r)
	if !ok {
		return
	}
	svc.PausePolling()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResumePolling(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.eventService(w, r)
	if !ok {
		return
	}
	svc.ResumePolling()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(svc service.LineupService, id string) error) {
	svc, id, ok := h.signupService(w, r)
	if !ok {
		return
	}
	if err := op(svc, id); err != nil {
		h.respondEngineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, svc.Queue(r.Context()))
}

func (h *Handler) eventService(w http.ResponseWriter, r *http.Request) (service.LineupService, bool) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		h.respondError(w, http.StatusBadRequest, "Event ID is required", nil)
		return nil, false
	}
	svc, err := h.registry.Get(r.Context(), eventID)
	if err != nil {
		h.logger.Error("failed to open lineup service", "event_id", eventID, "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "Queue view unavailable", err)
		return nil, false
	}
	return svc, true
}

func (h *Handler) signupService(w http.ResponseWriter, r *http.Request) (service.LineupService, string, bool) {
	svc, ok := h.eventService(w, r)
	if !ok {
		return nil, "", false
	}
	id := chi.URLParam(r, "signupID")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "Signup ID is required", nil)
		return nil, "", false
	}
	return svc, id, true
}

func (h *Handler) respondEngineError(w http.ResponseWriter, err error) {
	h.respondError(w, statusFor(err), err.Error(), err)
}

func statusFor(err error) int {
	var (
		ve *apperrors.ValidationError
		ce *apperrors.ConflictError
		ne *apperrors.NotFoundError
		te *apperrors.TransientIOError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &te):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		h.logger.Debug("error response", "message", message, "error", err.Error())
	}
	h.respondJSON(w, statusCode, map[string]any{
		"error": message,
		"code":  statusCode,
	})
}
