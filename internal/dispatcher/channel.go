package dispatcher

import (
	"context"
	"errors"

	"github.com/blockedby/cardpost/internal/models"
)

var (
	// ErrInvalidRecipient marks addressing problems. They are never retried.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrChannelNotConfigured is returned when a send needs a channel the process has no provider for.
	ErrChannelNotConfigured = errors.New("channel not configured")
)

// Channel names used in logs, events and aggregated failure messages.
const (
	ChannelEmail     = "email"
	ChannelMessenger = "messenger"
	ChannelLink      = "link"
)

// LinkShareMessageID is the receipt id of link-only deliveries.
const LinkShareMessageID = "link-share"

// Target is the addressing data of one send.
type Target struct {
	Email          string
	PlatformUserID string
}

// Payload is what a channel renders into a message.
type Payload struct {
	CardURL       string
	Title         string
	PreviewImage  string
	SenderName    string
	RecipientName string
}

// Receipt is returned by a successful attempt.
type Receipt struct {
	MessageID string
}

// Channel delivers a card through one provider. Attempt makes exactly one try.
type Channel interface {
	Name() string
	Attempt(ctx context.Context, target Target, payload Payload) (Receipt, error)
}

func targetFor(send *models.ScheduledSend) Target {
	var t Target
	if send.RecipientEmail != nil {
		t.Email = *send.RecipientEmail
	}
	if send.RecipientMessengerID != nil {
		t.PlatformUserID = *send.RecipientMessengerID
	}
	return t
}

// payloadFor merges the card with the send; the send's display name wins over the card's recipient.
func payloadFor(card *models.CardPayload, send *models.ScheduledSend) Payload {
	p := Payload{
		CardURL:       card.URL,
		SenderName:    card.SenderName,
		RecipientName: card.RecipientName,
	}
	if card.Title != nil {
		p.Title = *card.Title
	}
	if card.PreviewImage != nil {
		p.PreviewImage = *card.PreviewImage
	}
	if send.RecipientDisplayName != nil && *send.RecipientDisplayName != "" {
		p.RecipientName = *send.RecipientDisplayName
	}
	return p
}
