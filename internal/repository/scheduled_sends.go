package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
)

// ErrNotFound is returned when a scheduled send does not exist.
var ErrNotFound = errors.New("scheduled send not found")

// maxListLimit caps one page of ListByOwner.
const maxListLimit = 200

const sendColumns = `
	id, card_id, owner_id, scheduled_at, channel,
	recipient_email, recipient_messenger_id, recipient_display_name,
	status, error_message, sent_at, created_at, updated_at`

// ScheduledSendsRepository persists scheduled sends.
type ScheduledSendsRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewScheduledSendsRepository creates a new scheduled sends repository
func NewScheduledSendsRepository(pool *pgxpool.Pool, log *logger.Logger) *ScheduledSendsRepository {
	return &ScheduledSendsRepository{
		pool: pool,
		log:  log,
	}
}

// Create inserts a new PENDING scheduled send.
func (r *ScheduledSendsRepository) Create(ctx context.Context, send *models.ScheduledSend) error {
	if send.ID == uuid.Nil {
		send.ID = uuid.New()
	}
	send.Status = models.SendStatusPending

	err := r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_sends (
			id, card_id, owner_id, scheduled_at, channel,
			recipient_email, recipient_messenger_id, recipient_display_name, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, send.ID, send.CardID, send.OwnerID, send.ScheduledAt, send.Channel,
		send.RecipientEmail, send.RecipientMessengerID, send.RecipientDisplayName, send.Status,
	).Scan(&send.CreatedAt, &send.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create scheduled send: %w", err)
	}

	r.log.Info().
		Str("id", send.ID.String()).
		Str("card_id", send.CardID.String()).
		Str("channel", string(send.Channel)).
		Time("scheduled_at", send.ScheduledAt).
		Msg("created scheduled send")

	return nil
}

// GetByID returns a single send. Returns ErrNotFound when missing.
func (r *ScheduledSendsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledSend, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sendColumns+` FROM scheduled_sends WHERE id = $1`, id)

	send, err := scanSend(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scheduled send by id: %w", err)
	}
	return send, nil
}

// ListByOwner returns the owner's sends, newest first. An empty status lists all.
// limit is kept within 1..maxListLimit.
func (r *ScheduledSendsRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, status models.SendStatus, limit int) ([]*models.ScheduledSend, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+sendColumns+`
		FROM scheduled_sends
		WHERE owner_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, ownerID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list scheduled sends: %w", err)
	}
	defer rows.Close()

	return collectSends(rows)
}

// FindDue returns up to limit PENDING sends whose scheduled time is at or before now,
// earliest first.
func (r *ScheduledSendsRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledSend, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sendColumns+`
		FROM scheduled_sends
		WHERE status = 'PENDING' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due sends: %w", err)
	}
	defer rows.Close()

	return collectSends(rows)
}

// MarkSent moves a PENDING send to SENT. Returns false when the row was no longer PENDING.
func (r *ScheduledSendsRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_sends
		SET status = 'SENT', sent_at = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, id, sentAt)
	if err != nil {
		return false, fmt.Errorf("mark send sent: %w", err)
	}

	updated := tag.RowsAffected() == 1
	r.log.Debug().
		Str("id", id.String()).
		Bool("updated", updated).
		Msg("marked send sent")

	return updated, nil
}

// MarkFailed moves a PENDING send to FAILED with a reason.
// Returns false when the row was no longer PENDING.
func (r *ScheduledSendsRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_sends
		SET status = 'FAILED', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark send failed: %w", err)
	}

	updated := tag.RowsAffected() == 1
	r.log.Debug().
		Str("id", id.String()).
		Bool("updated", updated).
		Msg("marked send failed")

	return updated, nil
}

// CountByStatus returns the number of sends per status.
func (r *ScheduledSendsRepository) CountByStatus(ctx context.Context) (map[models.SendStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM scheduled_sends GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count sends by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SendStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.SendStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func scanSend(row pgx.Row) (*models.ScheduledSend, error) {
	var s models.ScheduledSend
	var channel, status string

	err := row.Scan(
		&s.ID, &s.CardID, &s.OwnerID, &s.ScheduledAt, &channel,
		&s.RecipientEmail, &s.RecipientMessengerID, &s.RecipientDisplayName,
		&status, &s.ErrorMessage, &s.SentAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Channel = models.SendChannel(channel)
	s.Status = models.SendStatus(status)
	return &s, nil
}

func collectSends(rows pgx.Rows) ([]*models.ScheduledSend, error) {
	var sends []*models.ScheduledSend
	for rows.Next() {
		s, err := scanSend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled send: %w", err)
		}
		sends = append(sends, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled sends: %w", err)
	}
	return sends, nil
}
