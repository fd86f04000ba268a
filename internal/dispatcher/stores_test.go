package dispatcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/publisher"
)

// memSendStore mirrors the conditional semantics of the postgres repository.
type memSendStore struct {
	mu    sync.Mutex
	sends map[uuid.UUID]*models.ScheduledSend

	findErr error
	markErr error

	// stale rows are returned by FindDue whether or not they are due
	stale []*models.ScheduledSend

	// beforeMark runs before each conditional update, e.g. to simulate a concurrent run.
	beforeMark func(id uuid.UUID)
}

func newMemSendStore(sends ...*models.ScheduledSend) *memSendStore {
	s := &memSendStore{sends: make(map[uuid.UUID]*models.ScheduledSend)}
	for _, send := range sends {
		s.sends[send.ID] = send
	}
	return s
}

func (s *memSendStore) FindDue(_ context.Context, now time.Time, limit int) ([]*models.ScheduledSend, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.ScheduledSend
	for _, send := range s.sends {
		if send.IsDue(now) {
			cp := *send
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ID.String() < due[j].ID.String()
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	for _, send := range s.stale {
		cp := *send
		due = append(due, &cp)
	}
	return due, nil
}

func (s *memSendStore) MarkSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.finalize(id, func(send *models.ScheduledSend) {
		send.Status = models.SendStatusSent
		send.SentAt = &at
		send.ErrorMessage = nil
	})
}

func (s *memSendStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.finalize(id, func(send *models.ScheduledSend) {
		send.Status = models.SendStatusFailed
		send.ErrorMessage = &reason
	})
}

func (s *memSendStore) finalize(id uuid.UUID, apply func(*models.ScheduledSend)) (bool, error) {
	if s.beforeMark != nil {
		s.beforeMark(id)
	}
	if s.markErr != nil {
		return false, s.markErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	send, ok := s.sends[id]
	if !ok || send.Status != models.SendStatusPending {
		return false, nil
	}
	apply(send)
	return true, nil
}

func (s *memSendStore) get(id uuid.UUID) models.ScheduledSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sends[id]
}

type memCardStore struct {
	mu      sync.Mutex
	cards   map[uuid.UUID]*models.CardPayload
	sent    map[uuid.UUID]time.Time
	markErr error
}

func newMemCardStore(cards ...*models.CardPayload) *memCardStore {
	s := &memCardStore{
		cards: make(map[uuid.UUID]*models.CardPayload),
		sent:  make(map[uuid.UUID]time.Time),
	}
	for _, c := range cards {
		s.cards[c.CardID] = c
	}
	return s
}

var errCardMissing = errors.New("card not found")

func (s *memCardStore) Resolve(_ context.Context, id uuid.UUID) (*models.CardPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, errCardMissing
	}
	return c, nil
}

func (s *memCardStore) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = at
	return nil
}

func (s *memCardStore) sentAt(id uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.sent[id]
	return at, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publisher.SendOutcomeEvent
	err    error
}

func (p *recordingPublisher) PublishSendOutcome(_ context.Context, event publisher.SendOutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) all() []publisher.SendOutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publisher.SendOutcomeEvent(nil), p.events...)
}

type recordingHub struct {
	mu     sync.Mutex
	events []any
}

func (h *recordingHub) Broadcast(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, v)
}

func (h *recordingHub) all() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.events...)
}

func strPtr(s string) *string { return &s }

func newCard() *models.CardPayload {
	return &models.CardPayload{
		CardID:        uuid.New(),
		URL:           "https://cards.example.com/c/" + uuid.NewString()[:8],
		Title:         strPtr("Happy birthday"),
		SenderName:    "Sam",
		RecipientName: "Ann",
	}
}

func newSend(card *models.CardPayload, channel models.SendChannel, at time.Time) *models.ScheduledSend {
	send := &models.ScheduledSend{
		ID:          uuid.New(),
		CardID:      card.CardID,
		OwnerID:     uuid.New(),
		ScheduledAt: at,
		Channel:     channel,
		Status:      models.SendStatusPending,
	}
	if channel.NeedsEmail() {
		send.RecipientEmail = strPtr("ann@example.com")
	}
	if channel.NeedsMessenger() {
		send.RecipientMessengerID = strPtr("@ann")
	}
	return send
}
