package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/telegram"
)

// DirectMessenger sends a text message to one platform user.
// *telegram.Client implements it.
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, recipient, text string) (int64, error)
}

// MessengerSender is the messaging platform delivery channel.
type MessengerSender struct {
	client DirectMessenger
	log    *logger.Logger
}

// NewMessengerSender creates the messenger channel. A nil client makes every
// attempt fail with ErrChannelNotConfigured.
func NewMessengerSender(client DirectMessenger, log *logger.Logger) *MessengerSender {
	return &MessengerSender{
		client: client,
		log:    log.Component("messenger"),
	}
}

// Name implements Channel.
func (s *MessengerSender) Name() string { return ChannelMessenger }

// Attempt sends the card link as a direct message once.
func (s *MessengerSender) Attempt(ctx context.Context, target Target, payload Payload) (Receipt, error) {
	if s.client == nil {
		return Receipt{}, fmt.Errorf("messenger: %w", ErrChannelNotConfigured)
	}
	if telegram.NormalizeUsername(target.PlatformUserID) == "" {
		return Receipt{}, fmt.Errorf("%w: empty messenger id", ErrInvalidRecipient)
	}

	text, err := renderMessengerText(payload)
	if err != nil {
		return Receipt{}, err
	}

	id, err := s.client.SendDirectMessage(ctx, target.PlatformUserID, text)
	if err != nil {
		switch {
		case errors.Is(err, telegram.ErrRecipientNotFound):
			return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		case errors.Is(err, telegram.ErrNotAuthorized):
			return Receipt{}, fmt.Errorf("messenger: %w: %v", ErrChannelNotConfigured, err)
		}
		return Receipt{}, fmt.Errorf("send direct message: %w", err)
	}

	s.log.Debug().Int64("message_id", id).Msg("direct message delivered")
	return Receipt{MessageID: strconv.FormatInt(id, 10)}, nil
}
