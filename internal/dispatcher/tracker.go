package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/publisher"
	"github.com/blockedby/cardpost/internal/web"
)

// ErrInvalidTransition is returned when a send's claimed status does not allow the write-back.
var ErrInvalidTransition = errors.New("invalid status transition")

// SendStore is the job store contract. MarkSent and MarkFailed are conditional:
// they return false when the send was no longer PENDING.
type SendStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledSend, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

// CardStore resolves cards and records their delivery.
type CardStore interface {
	Resolve(ctx context.Context, cardID uuid.UUID) (*models.CardPayload, error)
	MarkSent(ctx context.Context, cardID uuid.UUID, sentAt time.Time) error
}

// OutcomePublisher emits terminal status events.
type OutcomePublisher interface {
	PublishSendOutcome(ctx context.Context, event publisher.SendOutcomeEvent) error
}

// Broadcaster pushes events to live clients.
type Broadcaster interface {
	Broadcast(v any)
}

// DeliveryTracker performs the single write-back of a send and the side effects
// that follow a real transition.
type DeliveryTracker struct {
	sends  SendStore
	cards  CardStore
	events OutcomePublisher
	hub    Broadcaster
	log    *logger.Logger
}

// NewDeliveryTracker creates a tracker. events and hub may be nil.
func NewDeliveryTracker(sends SendStore, cards CardStore, events OutcomePublisher, hub Broadcaster, log *logger.Logger) *DeliveryTracker {
	return &DeliveryTracker{
		sends:  sends,
		cards:  cards,
		events: events,
		hub:    hub,
		log:    log.Component("tracker"),
	}
}

// TrackSuccess marks the send SENT (PENDING → SENT). Only when this call made the
// transition is the card marked sent and the outcome announced.
func (t *DeliveryTracker) TrackSuccess(ctx context.Context, send *models.ScheduledSend, outcomes []Outcome, at time.Time) (bool, error) {
	if err := checkTransition(send, models.SendStatusSent); err != nil {
		return false, err
	}

	updated, err := t.sends.MarkSent(ctx, send.ID, at)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	if !updated {
		t.log.Info().
			Str("send_id", send.ID.String()).
			Msg("send already finalized by another run, skipping side effects")
		return false, nil
	}

	// the send is terminal at this point; a card update failure must not undo it
	if err := t.cards.MarkSent(ctx, send.CardID, at); err != nil {
		t.log.Error().
			Err(err).
			Str("send_id", send.ID.String()).
			Str("card_id", send.CardID.String()).
			Msg("failed to mark card sent")
	}

	t.announce(ctx, send, models.SendStatusSent, "", outcomes, at)

	t.log.Info().
		Str("send_id", send.ID.String()).
		Str("from", string(models.SendStatusPending)).
		Str("to", string(models.SendStatusSent)).
		Msg("send status changed")

	return true, nil
}

// TrackFailure marks the send FAILED (PENDING → FAILED) with the aggregated reason.
func (t *DeliveryTracker) TrackFailure(ctx context.Context, send *models.ScheduledSend, reason string, outcomes []Outcome, at time.Time) (bool, error) {
	if err := checkTransition(send, models.SendStatusFailed); err != nil {
		return false, err
	}

	updated, err := t.sends.MarkFailed(ctx, send.ID, reason)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	if !updated {
		t.log.Info().
			Str("send_id", send.ID.String()).
			Msg("send already finalized by another run, skipping side effects")
		return false, nil
	}

	t.announce(ctx, send, models.SendStatusFailed, reason, outcomes, at)

	t.log.Warn().
		Str("send_id", send.ID.String()).
		Str("from", string(models.SendStatusPending)).
		Str("to", string(models.SendStatusFailed)).
		Str("error", reason).
		Msg("send failed")

	return true, nil
}

func (t *DeliveryTracker) announce(ctx context.Context, send *models.ScheduledSend, status models.SendStatus, reason string, outcomes []Outcome, at time.Time) {
	if t.events != nil {
		event := publisher.SendOutcomeEvent{
			SendID:     send.ID,
			CardID:     send.CardID,
			OwnerID:    send.OwnerID,
			Channel:    send.Channel,
			Status:     status,
			Error:      reason,
			OccurredAt: at,
		}
		for _, o := range outcomes {
			event.Attempts += o.Attempts
			if o.MessageID != "" {
				if event.MessageIDs == nil {
					event.MessageIDs = make(map[string]string, len(outcomes))
				}
				event.MessageIDs[o.Channel] = o.MessageID
			}
		}
		if err := t.events.PublishSendOutcome(ctx, event); err != nil {
			t.log.Warn().Err(err).Str("send_id", send.ID.String()).Msg("failed to publish send outcome")
		}
	}

	if t.hub != nil {
		t.hub.Broadcast(web.SendStatusChangedEvent(
			send.ID, send.CardID,
			string(models.SendStatusPending), string(status),
			reason, at,
		))
	}
}

var validTransitions = map[models.SendStatus][]models.SendStatus{
	models.SendStatusPending: {models.SendStatusSent, models.SendStatusFailed},
	models.SendStatusSent:    {},
	models.SendStatusFailed:  {},
}

// ValidateTransition reports whether a send may move from one status to another.
// PENDING is the only status with exits; SENT and FAILED are terminal.
func ValidateTransition(from, to models.SendStatus) bool {
	for _, valid := range validTransitions[from] {
		if valid == to {
			return true
		}
	}
	return false
}

func checkTransition(send *models.ScheduledSend, to models.SendStatus) error {
	if !ValidateTransition(send.Status, to) {
		return fmt.Errorf("%w: send %s %s -> %s", ErrInvalidTransition, send.ID, send.Status, to)
	}
	return nil
}
