package web

import (
	"time"

	"github.com/google/uuid"
)

// WebSocket event types
const (
	EventSendStatusChanged = "send.status_changed"
	EventDispatchBatch     = "dispatch.batch_completed"
	EventMessengerQR       = "messenger.login_qr"
	EventMessengerLogin    = "messenger.login_finished"
)

// WSEvent represents a structured WebSocket message
type WSEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SendStatusPayload is the payload for EventSendStatusChanged
type SendStatusPayload struct {
	SendID         string    `json:"send_id"`
	CardID         string    `json:"card_id"`
	PreviousStatus string    `json:"previous_status"`
	CurrentStatus  string    `json:"current_status"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SendStatusChangedEvent builds the event broadcast when a send reaches a terminal status.
func SendStatusChangedEvent(sendID, cardID uuid.UUID, from, to, errMsg string, at time.Time) WSEvent {
	return WSEvent{
		Type: EventSendStatusChanged,
		Payload: SendStatusPayload{
			SendID:         sendID.String(),
			CardID:         cardID.String(),
			PreviousStatus: from,
			CurrentStatus:  to,
			Error:          errMsg,
			UpdatedAt:      at,
		},
	}
}

// BatchPayload is the payload for EventDispatchBatch
type BatchPayload struct {
	Processed    int   `json:"processed"`
	SuccessCount int   `json:"successCount"`
	FailedCount  int   `json:"failedCount"`
	SkippedCount int   `json:"skippedCount"`
	DurationMs   int64 `json:"durationMs"`
}

// DispatchBatchEvent builds the event broadcast after each dispatcher run.
func DispatchBatchEvent(p BatchPayload) WSEvent {
	return WSEvent{Type: EventDispatchBatch, Payload: p}
}

// MessengerQREvent carries a login token URL to render as a QR code.
func MessengerQREvent(url string) WSEvent {
	return WSEvent{Type: EventMessengerQR, Payload: map[string]string{"url": url}}
}

// MessengerLoginPayload is the payload for EventMessengerLogin
type MessengerLoginPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MessengerLoginEvent reports the end of a login flow. err nil means success.
func MessengerLoginEvent(err error) WSEvent {
	p := MessengerLoginPayload{Success: err == nil}
	if err != nil {
		p.Error = err.Error()
	}
	return WSEvent{Type: EventMessengerLogin, Payload: p}
}
