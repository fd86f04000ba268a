// Package telegram provides the Telegram MTProto client used for direct-message delivery.
package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/blockedby/cardpost/internal/logger"
)

var (
	// ErrNotAuthorized is returned when no logged-in session is available.
	ErrNotAuthorized = errors.New("telegram client not authorized")

	// ErrRecipientNotFound is returned when a username does not resolve to a user.
	ErrRecipientNotFound = errors.New("telegram recipient not found")
)

// Client wraps the protocol client managed by Manager and exposes the
// operations the delivery pipeline needs.
type Client struct {
	manager *Manager
	pacer   *pacer
	log     *logger.Logger
}

// NewClient creates a new telegram client wrapper using the Manager.
// rps bounds outgoing API calls; values <= 0 use one call per second.
func NewClient(manager *Manager, rps float64, log *logger.Logger) *Client {
	return &Client{
		manager: manager,
		pacer:   newPacer(rps),
		log:     log.Component("telegram"),
	}
}

// Close stops the client via the manager.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.Stop()
	}
}

// GetStatus returns the current status of the telegram client.
func (c *Client) GetStatus() Status {
	if c.manager == nil {
		return StatusUnauthorized
	}
	return c.manager.GetStatus()
}

func (c *Client) getProto() (*gotgproto.Client, error) {
	if c.manager == nil {
		return nil, ErrNotAuthorized
	}
	proto := c.manager.GetClient()
	if proto == nil {
		return nil, ErrNotAuthorized
	}
	return proto, nil
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() (*tg.Client, error) {
	proto, err := c.getProto()
	if err != nil {
		return nil, err
	}
	return proto.API(), nil
}

// SendDirectMessage sends text to a user addressed by username (with or without @).
// Returns the id of the sent message.
func (c *Client) SendDirectMessage(ctx context.Context, recipient, text string) (int64, error) {
	api, err := c.API()
	if err != nil {
		return 0, err
	}

	peer, err := c.resolveUser(ctx, api, recipient)
	if err != nil {
		return 0, err
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return 0, err
	}

	randomID, err := newRandomID()
	if err != nil {
		return 0, err
	}

	updates, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     &tg.InputPeerUser{UserID: peer.ID, AccessHash: peer.AccessHash},
		Message:  text,
		RandomID: randomID,
	})
	if err != nil {
		c.noteFloodWait(err)
		return 0, fmt.Errorf("send message to %s: %w", peer.Username, err)
	}

	msgID := sentMessageID(updates, randomID)
	c.log.Info().
		Str("recipient", peer.Username).
		Int64("message_id", msgID).
		Msg("telegram: direct message sent")

	return msgID, nil
}

func (c *Client) resolveUser(ctx context.Context, api *tg.Client, recipient string) (*Peer, error) {
	username := NormalizeUsername(recipient)
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", ErrRecipientNotFound)
	}

	c.log.Debug().Str("username", username).Msg("telegram: waiting for pacer")
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.noteFloodWait(err)
		if tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID") {
			return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, username)
		}
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok {
			return &Peer{ID: user.ID, AccessHash: user.AccessHash, Username: username}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, username)
}

func (c *Client) noteFloodWait(err error) {
	if wait := floodWait(err); wait > 0 {
		c.log.Warn().Dur("wait", wait).Msg("telegram: FLOOD_WAIT detected, pausing sends")
		c.pacer.Pause(wait)
	}
}

// NormalizeUsername strips whitespace, a leading @ and a t.me link prefix.
func NormalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "@"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

// sentMessageID extracts the new message id from a send response.
func sentMessageID(updates tg.UpdatesClass, randomID int64) int64 {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return int64(u.ID)
	case *tg.Updates:
		for _, upd := range u.Updates {
			if m, ok := upd.(*tg.UpdateMessageID); ok && m.RandomID == randomID {
				return int64(m.ID)
			}
		}
	}
	return 0
}

func newRandomID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generate random id: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
