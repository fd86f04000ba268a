package models

import (
	"time"

	"github.com/google/uuid"
)

// SendChannel represents how a scheduled card is delivered.
type SendChannel string

// SendChannel constants define the supported delivery channels.
const (
	SendChannelEmail     SendChannel = "EMAIL"
	SendChannelMessenger SendChannel = "MESSENGER"
	SendChannelBoth      SendChannel = "BOTH"
	SendChannelLinkOnly  SendChannel = "LINK_ONLY"
)

// IsValid reports whether c is a known channel.
func (c SendChannel) IsValid() bool {
	switch c {
	case SendChannelEmail, SendChannelMessenger, SendChannelBoth, SendChannelLinkOnly:
		return true
	}
	return false
}

// NeedsEmail reports whether the channel delivers by email.
func (c SendChannel) NeedsEmail() bool {
	return c == SendChannelEmail || c == SendChannelBoth
}

// NeedsMessenger reports whether the channel delivers through the messaging platform.
func (c SendChannel) NeedsMessenger() bool {
	return c == SendChannelMessenger || c == SendChannelBoth
}

// SendStatus represents the lifecycle state of a scheduled send.
type SendStatus string

// SendStatus constants. SENT and FAILED are terminal.
const (
	SendStatusPending SendStatus = "PENDING"
	SendStatusSent    SendStatus = "SENT"
	SendStatusFailed  SendStatus = "FAILED"
)

// IsTerminal reports whether the status can no longer change.
func (s SendStatus) IsTerminal() bool {
	return s == SendStatusSent || s == SendStatusFailed
}

// ScheduledSend is one "send this card later" request.
type ScheduledSend struct {
	ID      uuid.UUID `json:"id" db:"id"`
	CardID  uuid.UUID `json:"card_id" db:"card_id"`
	OwnerID uuid.UUID `json:"owner_id" db:"owner_id"`

	ScheduledAt time.Time   `json:"scheduled_at" db:"scheduled_at"`
	Channel     SendChannel `json:"channel" db:"channel"`

	// addressing
	RecipientEmail       *string `json:"recipient_email,omitempty" db:"recipient_email"`
	RecipientMessengerID *string `json:"recipient_messenger_id,omitempty" db:"recipient_messenger_id"`
	RecipientDisplayName *string `json:"recipient_display_name,omitempty" db:"recipient_display_name"`

	// outcome
	Status       SendStatus `json:"status" db:"status"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	SentAt       *time.Time `json:"sent_at,omitempty" db:"sent_at"`

	// timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsDue reports whether the send is pending and its scheduled time has passed.
func (s *ScheduledSend) IsDue(now time.Time) bool {
	return s.Status == SendStatusPending && !s.ScheduledAt.After(now)
}
