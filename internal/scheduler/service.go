// Package scheduler creates scheduled sends on behalf of card owners.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/repository"
)

var (
	// ErrCardNotFound is returned when the card does not exist.
	ErrCardNotFound = errors.New("card not found")

	// ErrNotCardOwner is returned when the caller does not own the card.
	ErrNotCardOwner = errors.New("card belongs to another owner")
)

// CardLookup reads cards. *repository.CardsRepository implements it.
type CardLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Card, error)
}

// SendRepository persists sends. *repository.ScheduledSendsRepository implements it.
type SendRepository interface {
	Create(ctx context.Context, send *models.ScheduledSend) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledSend, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, status models.SendStatus, limit int) ([]*models.ScheduledSend, error)
}

// Service validates and stores scheduled sends.
type Service struct {
	cards CardLookup
	sends SendRepository
	log   *logger.Logger
	now   func() time.Time
}

// NewService creates a new scheduler service
func NewService(cards CardLookup, sends SendRepository, log *logger.Logger) *Service {
	return &Service{
		cards: cards,
		sends: sends,
		log:   log.Component("scheduler"),
		now:   time.Now,
	}
}

// Schedule validates req, checks that ownerID owns the card and stores a PENDING send.
func (s *Service) Schedule(ctx context.Context, ownerID uuid.UUID, req *ScheduleRequest) (*models.ScheduledSend, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrValidation)
	}
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}

	card, err := s.cards.GetByID(ctx, req.CardID)
	if err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("load card: %w", err)
	}
	if card.OwnerID != ownerID {
		return nil, ErrNotCardOwner
	}

	send := req.ToSend(ownerID)
	if err := s.sends.Create(ctx, send); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("send_id", send.ID.String()).
		Str("owner_id", ownerID.String()).
		Time("scheduled_at", send.ScheduledAt).
		Msg("send scheduled")

	return send, nil
}

// Get returns one of the owner's sends. Other owners' sends look missing.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.ScheduledSend, error) {
	send, err := s.sends.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if send.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return send, nil
}

// List page sizes.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// List returns the owner's sends, newest first. An empty status lists all.
// limit falls back to DefaultListLimit and is capped at MaxListLimit.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, status models.SendStatus, limit int) ([]*models.ScheduledSend, error) {
	if status != "" && status != models.SendStatusPending && !status.IsTerminal() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.sends.ListByOwner(ctx, ownerID, status, limit)
}
