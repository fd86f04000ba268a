package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/repository"
	"github.com/blockedby/cardpost/internal/scheduler"
)

// OwnerHeader carries the authenticated owner id, set by the upstream auth layer.
const OwnerHeader = "X-User-ID"

// SendsHandler handles scheduled send requests
type SendsHandler struct {
	scheduler SendScheduler
	log       *logger.Logger
}

// NewSendsHandler creates a new SendsHandler.
func NewSendsHandler(s SendScheduler, log *logger.Logger) *SendsHandler {
	return &SendsHandler{
		scheduler: s,
		log:       log.Component("sends-api"),
	}
}

func ownerFrom(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(OwnerHeader)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Create schedules a card for later delivery.
// POST /api/v1/sends
func (h *SendsHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+OwnerHeader)
		return
	}

	var req scheduler.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	send, err := h.scheduler.Schedule(r.Context(), owner, &req)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scheduler.ErrCardNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, scheduler.ErrNotCardOwner):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			h.log.Error().Err(err).Msg("schedule send failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, send)
}

// List returns the owner's sends, optionally filtered by status.
// GET /api/v1/sends?status=PENDING&limit=20
func (h *SendsHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+OwnerHeader)
		return
	}

	status := models.SendStatus(strings.ToUpper(r.URL.Query().Get("status")))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sends, err := h.scheduler.List(r.Context(), owner, status, limit)
	if err != nil {
		if errors.Is(err, scheduler.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("list sends failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Ensure we return empty array, not null
	if sends == nil {
		sends = []*models.ScheduledSend{}
	}

	writeJSON(w, http.StatusOK, struct {
		Sends []*models.ScheduledSend `json:"sends"`
		Count int                     `json:"count"`
	}{
		Sends: sends,
		Count: len(sends),
	})
}

// GetByID returns one of the owner's sends.
// GET /api/v1/sends/{id}
func (h *SendsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+OwnerHeader)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	send, err := h.scheduler.Get(r.Context(), owner, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "send not found")
			return
		}
		h.log.Error().Err(err).Msg("get send failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, send)
}
