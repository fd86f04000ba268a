package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"gorm.io/gorm"

	"github.com/blockedby/cardpost/internal/config"
)

// ErrNoCredentials is returned when TG_API_ID or TG_API_HASH is missing.
var ErrNoCredentials = errors.New("telegram api credentials not configured")

// device is how the sender account's session shows up under active sessions.
var device = telegram.DeviceConfig{
	DeviceModel:   "cardpost",
	SystemVersion: "server",
	AppVersion:    "1.0",
}

// ClientFactory builds the long running client from the stored session.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// QRClientFactory builds a throwaway client for one QR login.
type QRClientFactory func(cfg *config.Config) (*QRClientBundle, error)

func checkCredentials(cfg *config.Config) error {
	if cfg == nil || !cfg.TelegramEnabled() {
		return ErrNoCredentials
	}
	return nil
}

// NewPersistentClient starts a client on the session stored in db. gotgproto
// writes auth key refreshes and resolved peers back to the same database.
func NewPersistentClient(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
	if err := checkCredentials(cfg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// empty phone: never prompt, the stored session must be valid
	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(db.Dialector),
			DisableCopyright: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("start telegram client from stored session: %w", err)
	}
	return client, nil
}

// QRClientBundle is a raw client wired for QR login. Dispatcher receives the
// login token updates and Storage holds the session once the scan succeeds.
type QRClientBundle struct {
	Client     *telegram.Client
	Dispatcher *tg.UpdateDispatcher
	Storage    *session.StorageMemory
}

// NewQRClient creates a client that keeps its session in memory until the
// Manager converts and stores it.
func NewQRClient(cfg *config.Config) (*QRClientBundle, error) {
	if err := checkCredentials(cfg); err != nil {
		return nil, err
	}

	storage := &session.StorageMemory{}
	dispatcher := tg.NewUpdateDispatcher()

	return &QRClientBundle{
		Client: telegram.NewClient(cfg.TGApiID, cfg.TGApiHash, telegram.Options{
			SessionStorage: storage,
			UpdateHandler:  &dispatcher,
			Device:         device,
		}),
		Dispatcher: &dispatcher,
		Storage:    storage,
	}, nil
}
