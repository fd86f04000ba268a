package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
)

// ErrCardNotFound is returned when the referenced card does not exist.
var ErrCardNotFound = errors.New("card not found")

// CardsRepository reads cards and records their delivery.
type CardsRepository struct {
	db      *gorm.DB
	baseURL string
	log     *logger.Logger
}

// NewCardsRepository creates a card repository. baseURL is the public origin
// used to build share links.
func NewCardsRepository(db *gorm.DB, baseURL string, log *logger.Logger) *CardsRepository {
	return &CardsRepository{
		db:      db,
		baseURL: baseURL,
		log:     log,
	}
}

// GetByID returns a card or ErrCardNotFound.
func (r *CardsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	var card models.Card
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return &card, nil
}

// Resolve builds the delivery payload for a card.
func (r *CardsRepository) Resolve(ctx context.Context, cardID uuid.UUID) (*models.CardPayload, error) {
	card, err := r.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	return &models.CardPayload{
		CardID:        card.ID,
		URL:           r.shareURL(card),
		Title:         card.Title,
		PreviewImage:  card.PreviewImageURL,
		SenderName:    card.SenderName,
		RecipientName: card.RecipientName,
	}, nil
}

// MarkSent sets the card status to sent and mirrors the send time.
func (r *CardsRepository) MarkSent(ctx context.Context, cardID uuid.UUID, sentAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", cardID).
		Updates(map[string]any{
			"status":  models.CardStatusSent,
			"sent_at": sentAt,
		})
	if res.Error != nil {
		return fmt.Errorf("mark card sent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCardNotFound
	}

	r.log.Info().
		Str("card_id", cardID.String()).
		Msg("card marked sent")

	return nil
}

func (r *CardsRepository) shareURL(card *models.Card) string {
	ref := card.ShareSlug
	if ref == "" {
		ref = card.ID.String()
	}
	return r.baseURL + "/c/" + ref
}
