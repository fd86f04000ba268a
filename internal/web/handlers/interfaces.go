package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/blockedby/cardpost/internal/dispatcher"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/scheduler"
	"github.com/blockedby/cardpost/internal/telegram"
)

// DispatchRunner runs one dispatch batch. *dispatcher.Service implements it.
type DispatchRunner interface {
	Run(ctx context.Context) (*dispatcher.BatchSummary, error)
}

// DispatchStatusSource exposes the dispatcher's policy and last result.
type DispatchStatusSource interface {
	Policy() dispatcher.Config
	LastSummary() *dispatcher.BatchSummary
}

// SendCounter counts sends per status. *repository.ScheduledSendsRepository implements it.
type SendCounter interface {
	CountByStatus(ctx context.Context) (map[models.SendStatus]int, error)
}

// SendScheduler creates and reads an owner's sends. *scheduler.Service implements it.
type SendScheduler interface {
	Schedule(ctx context.Context, ownerID uuid.UUID, req *scheduler.ScheduleRequest) (*models.ScheduledSend, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.ScheduledSend, error)
	List(ctx context.Context, ownerID uuid.UUID, status models.SendStatus, limit int) ([]*models.ScheduledSend, error)
}

// MessengerStatus reports the sender account's state.
type MessengerStatus interface {
	GetStatus() telegram.Status
}

// MessengerAccount is the sender account login flow. *telegram.Manager implements it.
type MessengerAccount interface {
	MessengerStatus
	StartQR(ctx context.Context, onQRCode func(url string)) error
	IsQRInProgress() bool
}

// HubBroadcaster defines the interface for broadcasting messages to connected clients.
type HubBroadcaster interface {
	Broadcast(message any)
}
