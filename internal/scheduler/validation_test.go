package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/cardpost/internal/models"
)

func TestScheduleRequest_Validate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	card := uuid.New()

	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr error
	}{
		{
			name:    "empty request - requires card",
			req:     ScheduleRequest{},
			wantErr: ErrCardRequired,
		},
		{
			name:    "missing time",
			req:     ScheduleRequest{CardID: card, Channel: "LINK_ONLY"},
			wantErr: ErrTimeRequired,
		},
		{
			name:    "time equal to now is not future",
			req:     ScheduleRequest{CardID: card, ScheduledAt: now, Channel: "LINK_ONLY"},
			wantErr: ErrPastSchedule,
		},
		{
			name:    "past time",
			req:     ScheduleRequest{CardID: card, ScheduledAt: now.Add(-time.Minute), Channel: "LINK_ONLY"},
			wantErr: ErrPastSchedule,
		},
		{
			name:    "unknown channel",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "FAX"},
			wantErr: ErrInvalidChannel,
		},
		{
			name:    "link only needs no addressing",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "LINK_ONLY"},
			wantErr: nil,
		},
		{
			name:    "channel is case insensitive",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: " link_only "},
			wantErr: nil,
		},
		{
			name:    "email without address",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "EMAIL"},
			wantErr: ErrEmailRequired,
		},
		{
			name:    "email with bad address",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "EMAIL", RecipientEmail: "nope"},
			wantErr: ErrValidation,
		},
		{
			name:    "valid email",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "EMAIL", RecipientEmail: "ann@example.com"},
			wantErr: nil,
		},
		{
			name:    "messenger without id",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "MESSENGER", RecipientMessengerID: "@"},
			wantErr: ErrMessengerMissing,
		},
		{
			name:    "valid messenger",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "MESSENGER", RecipientMessengerID: "@ann"},
			wantErr: nil,
		},
		{
			name:    "both needs messenger id too",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "BOTH", RecipientEmail: "ann@example.com"},
			wantErr: ErrMessengerMissing,
		},
		{
			name:    "both needs email too",
			req:     ScheduleRequest{CardID: card, ScheduledAt: future, Channel: "BOTH", RecipientMessengerID: "ann"},
			wantErr: ErrEmailRequired,
		},
		{
			name: "display name too long",
			req: ScheduleRequest{
				CardID: card, ScheduledAt: future, Channel: "LINK_ONLY",
				RecipientDisplayName: strings.Repeat("a", 121),
			},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidation, "every validation error maps to 400")
		})
	}
}

func TestScheduleRequest_ValidateNormalizes(t *testing.T) {
	now := time.Now()
	req := ScheduleRequest{
		CardID:         uuid.New(),
		ScheduledAt:    now.Add(time.Hour),
		Channel:        "email",
		RecipientEmail: "  ann@example.com ",
	}

	require.NoError(t, req.Validate(now))
	assert.Equal(t, models.SendChannelEmail, req.Channel)
	assert.Equal(t, "ann@example.com", req.RecipientEmail)
}

func TestScheduleRequest_ToSendDropsUnusedAddressing(t *testing.T) {
	owner := uuid.New()
	at := time.Date(2026, 5, 2, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	req := ScheduleRequest{
		CardID:               uuid.New(),
		ScheduledAt:          at,
		Channel:              models.SendChannelEmail,
		RecipientEmail:       "ann@example.com",
		RecipientMessengerID: "@ann",
		RecipientDisplayName: "Annie",
	}

	send := req.ToSend(owner)

	assert.Equal(t, owner, send.OwnerID)
	assert.Equal(t, models.SendStatusPending, send.Status)
	assert.True(t, send.ScheduledAt.Equal(at))
	assert.Equal(t, time.UTC, send.ScheduledAt.Location())
	require.NotNil(t, send.RecipientEmail)
	assert.Equal(t, "ann@example.com", *send.RecipientEmail)
	assert.Nil(t, send.RecipientMessengerID)
	require.NotNil(t, send.RecipientDisplayName)
	assert.Equal(t, "Annie", *send.RecipientDisplayName)
}
