package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/repository"
)

type mockCardLookup struct {
	cards map[uuid.UUID]*models.Card
	err   error
}

func (m *mockCardLookup) GetByID(_ context.Context, id uuid.UUID) (*models.Card, error) {
	if m.err != nil {
		return nil, m.err
	}
	card, ok := m.cards[id]
	if !ok {
		return nil, repository.ErrCardNotFound
	}
	return card, nil
}

type mockSendRepository struct {
	created   []*models.ScheduledSend
	createErr error

	listStatus models.SendStatus
	listLimit  int
}

func (m *mockSendRepository) Create(_ context.Context, send *models.ScheduledSend) error {
	if m.createErr != nil {
		return m.createErr
	}
	send.ID = uuid.New()
	send.Status = models.SendStatusPending
	m.created = append(m.created, send)
	return nil
}

func (m *mockSendRepository) GetByID(_ context.Context, id uuid.UUID) (*models.ScheduledSend, error) {
	for _, s := range m.created {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockSendRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, status models.SendStatus, limit int) ([]*models.ScheduledSend, error) {
	m.listStatus = status
	m.listLimit = limit
	var out []*models.ScheduledSend
	for _, s := range m.created {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func setup(t *testing.T) (*Service, *mockSendRepository, *models.Card) {
	t.Helper()
	card := &models.Card{ID: uuid.New(), OwnerID: uuid.New(), ShareSlug: "abc"}
	cards := &mockCardLookup{cards: map[uuid.UUID]*models.Card{card.ID: card}}
	sends := &mockSendRepository{}
	return NewService(cards, sends, &logger.Logger{}), sends, card
}

func linkRequest(cardID uuid.UUID) *ScheduleRequest {
	return &ScheduleRequest{
		CardID:      cardID,
		ScheduledAt: time.Now().Add(time.Hour),
		Channel:     models.SendChannelLinkOnly,
	}
}

func TestSchedule_Creates(t *testing.T) {
	svc, sends, card := setup(t)

	send, err := svc.Schedule(context.Background(), card.OwnerID, linkRequest(card.ID))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, send.ID)
	assert.Equal(t, models.SendStatusPending, send.Status)
	assert.Equal(t, card.ID, send.CardID)
	assert.Len(t, sends.created, 1)
}

func TestSchedule_Rejections(t *testing.T) {
	svc, sends, card := setup(t)

	_, err := svc.Schedule(context.Background(), card.OwnerID, nil)
	assert.ErrorIs(t, err, ErrValidation)

	past := linkRequest(card.ID)
	past.ScheduledAt = time.Now().Add(-time.Minute)
	_, err = svc.Schedule(context.Background(), card.OwnerID, past)
	assert.ErrorIs(t, err, ErrPastSchedule)

	_, err = svc.Schedule(context.Background(), card.OwnerID, linkRequest(uuid.New()))
	assert.ErrorIs(t, err, ErrCardNotFound)

	_, err = svc.Schedule(context.Background(), uuid.New(), linkRequest(card.ID))
	assert.ErrorIs(t, err, ErrNotCardOwner)

	assert.Empty(t, sends.created, "nothing is stored for rejected requests")
}

func TestSchedule_StoreErrors(t *testing.T) {
	card := &models.Card{ID: uuid.New(), OwnerID: uuid.New()}

	svc := NewService(&mockCardLookup{err: errors.New("db down")}, &mockSendRepository{}, &logger.Logger{})
	_, err := svc.Schedule(context.Background(), card.OwnerID, linkRequest(card.ID))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "db down")

	cards := &mockCardLookup{cards: map[uuid.UUID]*models.Card{card.ID: card}}
	svc = NewService(cards, &mockSendRepository{createErr: errors.New("insert failed")}, &logger.Logger{})
	_, err = svc.Schedule(context.Background(), card.OwnerID, linkRequest(card.ID))
	assert.EqualError(t, err, "insert failed")
}

func TestGet_HidesOtherOwners(t *testing.T) {
	svc, _, card := setup(t)

	send, err := svc.Schedule(context.Background(), card.OwnerID, linkRequest(card.ID))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), card.OwnerID, send.ID)
	require.NoError(t, err)
	assert.Equal(t, send.ID, got.ID)

	_, err = svc.Get(context.Background(), uuid.New(), send.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Get(context.Background(), card.OwnerID, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestList(t *testing.T) {
	svc, sends, card := setup(t)
	_, err := svc.Schedule(context.Background(), card.OwnerID, linkRequest(card.ID))
	require.NoError(t, err)

	list, err := svc.List(context.Background(), card.OwnerID, models.SendStatusFailed, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, models.SendStatusFailed, sends.listStatus)
	assert.Equal(t, 10, sends.listLimit)

	_, err = svc.List(context.Background(), card.OwnerID, "DONE", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestList_LimitBounds(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultListLimit},
		{"negative uses default", -5, DefaultListLimit},
		{"within bounds", 20, 20},
		{"at cap", MaxListLimit, MaxListLimit},
		{"above cap", 100000000, MaxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sends, card := setup(t)

			_, err := svc.List(context.Background(), card.OwnerID, "", tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sends.listLimit)
		})
	}
}
