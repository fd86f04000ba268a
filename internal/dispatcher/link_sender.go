package dispatcher

import "context"

// LinkSender is the link-only channel: the owner shares the card URL
// themselves, so delivery has nothing to call and always succeeds.
type LinkSender struct{}

// NewLinkSender creates the link-only channel.
func NewLinkSender() *LinkSender {
	return &LinkSender{}
}

// Name implements Channel.
func (LinkSender) Name() string { return ChannelLink }

// Attempt implements Channel.
func (LinkSender) Attempt(context.Context, Target, Payload) (Receipt, error) {
	return Receipt{MessageID: LinkShareMessageID}, nil
}
