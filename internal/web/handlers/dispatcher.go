package handlers

import (
	"net/http"

	"github.com/blockedby/cardpost/internal/dispatcher"
	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/telegram"
)

// DispatcherHandler provides dispatcher service status information.
type DispatcherHandler struct {
	source       DispatchStatusSource
	counter      SendCounter
	messenger    MessengerStatus
	emailEnabled bool
	log          *logger.Logger
}

// NewDispatcherHandler creates a new DispatcherHandler. counter and messenger may be nil.
func NewDispatcherHandler(source DispatchStatusSource, counter SendCounter, messenger MessengerStatus, emailEnabled bool, log *logger.Logger) *DispatcherHandler {
	return &DispatcherHandler{
		source:       source,
		counter:      counter,
		messenger:    messenger,
		emailEnabled: emailEnabled,
		log:          log.Component("dispatch-status"),
	}
}

// StatusResponse represents the dispatcher service status.
type StatusResponse struct {
	// "healthy" when at least one provider-backed channel can deliver, else "degraded"
	Status string `json:"status"`

	EmailAvailable     bool   `json:"email_available"`
	MessengerAvailable bool   `json:"messenger_available"`
	MessengerStatus    string `json:"messenger_status"`

	// policy
	BatchSize    int   `json:"batch_size"`
	MaxAttempts  int   `json:"max_attempts"`
	Workers      int   `json:"workers"`
	JobTimeoutMs int64 `json:"job_timeout_ms"`

	Sends   map[models.SendStatus]int `json:"sends,omitempty"`
	LastRun *dispatcher.BatchSummary  `json:"last_run,omitempty"`
}

// Status returns the current status of the dispatcher service.
// GET /api/v1/dispatch/status
func (h *DispatcherHandler) Status(w http.ResponseWriter, r *http.Request) {
	messengerStatus := telegram.StatusUnauthorized
	if h.messenger != nil {
		messengerStatus = h.messenger.GetStatus()
	}

	policy := h.source.Policy()
	resp := StatusResponse{
		Status:             "degraded",
		EmailAvailable:     h.emailEnabled,
		MessengerAvailable: messengerStatus == telegram.StatusReady,
		MessengerStatus:    string(messengerStatus),
		BatchSize:          policy.BatchSize,
		MaxAttempts:        policy.Retry.MaxAttempts,
		Workers:            policy.Workers,
		JobTimeoutMs:       policy.JobTimeout.Milliseconds(),
		LastRun:            h.source.LastSummary(),
	}
	if resp.EmailAvailable || resp.MessengerAvailable {
		resp.Status = "healthy"
	}

	if h.counter != nil {
		counts, err := h.counter.CountByStatus(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("count sends failed")
		} else {
			resp.Sends = counts
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
