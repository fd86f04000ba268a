// Package publisher emits delivery outcome events to NATS JetStream.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/models"
)

// Stream and subjects carrying send outcomes.
const (
	StreamSends       = "sends"
	SubjectSendSent   = "sends.sent"
	SubjectSendFailed = "sends.failed"
)

// StreamSubjects lists every subject bound to StreamSends.
var StreamSubjects = []string{"sends.>"}

// SendOutcomeEvent is published once per send when it reaches a terminal status.
type SendOutcomeEvent struct {
	SendID     uuid.UUID          `json:"send_id"`
	CardID     uuid.UUID          `json:"card_id"`
	OwnerID    uuid.UUID          `json:"owner_id"`
	Channel    models.SendChannel `json:"channel"`
	Status     models.SendStatus  `json:"status"`
	Error      string             `json:"error,omitempty"`
	MessageIDs map[string]string  `json:"message_ids,omitempty"`
	Attempts   int                `json:"attempts"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Subject returns the subject for the event's status.
func (e SendOutcomeEvent) Subject() string {
	if e.Status == models.SendStatusSent {
		return SubjectSendSent
	}
	return SubjectSendFailed
}

// NATSClient interface to allow mocking. *nats.Client implements it.
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher publishes send outcomes.
type NATSPublisher struct {
	js NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(client NATSClient) *NATSPublisher {
	return &NATSPublisher{js: client}
}

// PublishSendOutcome publishes a terminal status event.
func (p *NATSPublisher) PublishSendOutcome(ctx context.Context, event SendOutcomeEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := p.js.Publish(ctx, event.Subject(), event); err != nil {
		return fmt.Errorf("publish send outcome: %w", err)
	}
	return nil
}
