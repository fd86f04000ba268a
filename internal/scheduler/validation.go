package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/telegram"
)

// validation errors
var (
	ErrValidation       = errors.New("invalid schedule request")
	ErrCardRequired     = fmt.Errorf("%w: card_id is required", ErrValidation)
	ErrTimeRequired     = fmt.Errorf("%w: scheduled_at is required", ErrValidation)
	ErrPastSchedule     = fmt.Errorf("%w: scheduled_at must be in the future", ErrValidation)
	ErrInvalidChannel   = fmt.Errorf("%w: channel must be one of EMAIL, MESSENGER, BOTH, LINK_ONLY", ErrValidation)
	ErrEmailRequired    = fmt.Errorf("%w: recipient_email is required for this channel", ErrValidation)
	ErrMessengerMissing = fmt.Errorf("%w: recipient_messenger_id is required for this channel", ErrValidation)
)

var validate = validator.New()

// ScheduleRequest asks for a card to be delivered at a future time.
type ScheduleRequest struct {
	CardID      uuid.UUID          `json:"card_id"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Channel     models.SendChannel `json:"channel"`

	// RecipientEmail - required for EMAIL and BOTH.
	RecipientEmail string `json:"recipient_email,omitempty" validate:"omitempty,email,max=254"`

	// RecipientMessengerID - platform username, with or without @.
	// required for MESSENGER and BOTH.
	RecipientMessengerID string `json:"recipient_messenger_id,omitempty" validate:"omitempty,max=64"`

	RecipientDisplayName string `json:"recipient_display_name,omitempty" validate:"omitempty,max=120"`
}

// Validate checks the request against now. Addressing fields are trimmed in place.
// does not check card ownership (that needs the card store)
func (r *ScheduleRequest) Validate(now time.Time) error {
	if r.CardID == uuid.Nil {
		return ErrCardRequired
	}
	if r.ScheduledAt.IsZero() {
		return ErrTimeRequired
	}
	if !r.ScheduledAt.After(now) {
		return ErrPastSchedule
	}

	r.Channel = models.SendChannel(strings.ToUpper(strings.TrimSpace(string(r.Channel))))
	if !r.Channel.IsValid() {
		return ErrInvalidChannel
	}

	r.RecipientEmail = strings.TrimSpace(r.RecipientEmail)
	r.RecipientMessengerID = strings.TrimSpace(r.RecipientMessengerID)
	r.RecipientDisplayName = strings.TrimSpace(r.RecipientDisplayName)

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrValidation, jsonName(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if r.Channel.NeedsEmail() && r.RecipientEmail == "" {
		return ErrEmailRequired
	}
	if r.Channel.NeedsMessenger() && telegram.NormalizeUsername(r.RecipientMessengerID) == "" {
		return ErrMessengerMissing
	}

	return nil
}

// ToSend builds the PENDING record for owner. Addressing that the channel
// does not use is dropped.
func (r *ScheduleRequest) ToSend(ownerID uuid.UUID) *models.ScheduledSend {
	send := &models.ScheduledSend{
		CardID:      r.CardID,
		OwnerID:     ownerID,
		ScheduledAt: r.ScheduledAt.UTC(),
		Channel:     r.Channel,
		Status:      models.SendStatusPending,
	}
	if r.Channel.NeedsEmail() {
		send.RecipientEmail = &r.RecipientEmail
	}
	if r.Channel.NeedsMessenger() {
		send.RecipientMessengerID = &r.RecipientMessengerID
	}
	if r.RecipientDisplayName != "" {
		send.RecipientDisplayName = &r.RecipientDisplayName
	}
	return send
}

func jsonName(field string) string {
	switch field {
	case "RecipientEmail":
		return "recipient_email"
	case "RecipientMessengerID":
		return "recipient_messenger_id"
	case "RecipientDisplayName":
		return "recipient_display_name"
	}
	return field
}
