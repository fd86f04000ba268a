package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/telegram"
	"github.com/blockedby/cardpost/internal/web"
)

// MessengerHandler manages the sender account used for messenger delivery.
type MessengerHandler struct {
	account MessengerAccount
	hub     HubBroadcaster
	log     *logger.Logger
}

// NewMessengerHandler creates a new MessengerHandler. hub may be nil, but then
// login tokens are only logged.
func NewMessengerHandler(account MessengerAccount, hub HubBroadcaster, log *logger.Logger) *MessengerHandler {
	return &MessengerHandler{
		account: account,
		hub:     hub,
		log:     log.Component("messenger-api"),
	}
}

// GetStatus returns the sender account status.
// GET /api/v1/messenger/status
func (h *MessengerHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.account.GetStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         string(status),
		"is_ready":       status == telegram.StatusReady,
		"qr_in_progress": h.account.IsQRInProgress(),
	})
}

// StartLogin starts a QR login in the background. Tokens and the result are
// pushed over the websocket feed.
// POST /api/v1/messenger/login
func (h *MessengerHandler) StartLogin(w http.ResponseWriter, _ *http.Request) {
	if h.account.GetStatus() == telegram.StatusReady {
		writeError(w, http.StatusBadRequest, "already logged in")
		return
	}
	if h.account.IsQRInProgress() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already in progress"})
		return
	}

	go func() {
		err := h.account.StartQR(context.Background(), func(url string) {
			h.log.Info().Msg("messenger login token issued")
			if h.hub != nil {
				h.hub.Broadcast(web.MessengerQREvent(url))
			}
		})

		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("messenger login failed")
		}
		if h.hub != nil {
			h.hub.Broadcast(web.MessengerLoginEvent(err))
		}
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}
