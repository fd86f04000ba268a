package models

import (
	"time"

	"github.com/google/uuid"
)

// CardStatus is the card subsystem's publication state.
type CardStatus string

// CardStatus constants. Only CardStatusSent is written by the delivery pipeline.
const (
	CardStatusDraft     CardStatus = "draft"
	CardStatusPublished CardStatus = "published"
	CardStatusSent      CardStatus = "sent"
)

// Card is the subset of the card record the delivery pipeline reads and updates.
// The table is owned by the card subsystem.
type Card struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID uuid.UUID `json:"owner_id" gorm:"type:uuid;index;not null"`

	Title           *string `json:"title,omitempty"`
	ShareSlug       string  `json:"share_slug" gorm:"uniqueIndex"`
	PreviewImageURL *string `json:"preview_image_url,omitempty"`

	SenderName    string `json:"sender_name"`
	RecipientName string `json:"recipient_name"`

	Status CardStatus `json:"status" gorm:"type:varchar(32);not null;default:draft"`
	SentAt *time.Time `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the gorm table name.
func (Card) TableName() string {
	return "cards"
}

// CardPayload is the rendered card reference needed to build channel messages.
type CardPayload struct {
	CardID        uuid.UUID
	URL           string
	Title         *string
	PreviewImage  *string
	SenderName    string
	RecipientName string
}
