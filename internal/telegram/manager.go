package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"gorm.io/gorm"

	"github.com/blockedby/cardpost/internal/config"
	"github.com/blockedby/cardpost/internal/logger"
)

var (
	// ErrAlreadyLoggedIn is returned by StartQR when a session is active.
	ErrAlreadyLoggedIn = errors.New("already logged in")

	// ErrLoginInProgress is returned by StartQR while another login runs.
	ErrLoginInProgress = errors.New("QR login already in progress")
)

// Manager owns the sender account used for messenger deliveries. It restores
// the session from the sessions table and can replace it through a QR login
// or an imported session.
type Manager struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger

	mu              sync.RWMutex
	client          *gotgproto.Client
	status          Status
	clientFactory   ClientFactory
	qrClientFactory QRClientFactory

	loginMu     sync.Mutex
	loginCancel context.CancelFunc // non-nil while a QR login runs
}

// NewManager creates a new Telegram Manager.
func NewManager(cfg *config.Config, db *gorm.DB, log *logger.Logger) *Manager {
	return &Manager{
		db:              db,
		cfg:             cfg,
		log:             log.Component("telegram"),
		status:          StatusInitializing,
		clientFactory:   NewPersistentClient,
		qrClientFactory: NewQRClient,
	}
}

// SetClientFactory replaces how the persistent client is built.
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetQRClientFactory replaces how the login client is built.
func (m *Manager) SetQRClientFactory(f QRClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrClientFactory = f
}

// GetStatus returns the current account status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetClient returns the running client, nil until Ready.
func (m *Manager) GetClient() *gotgproto.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Init restores the stored session. Without one the account stays
// Unauthorized and messenger sends fail as not configured. A session the
// server rejects is treated the same way; only an unreadable sessions table
// is an error.
func (m *Manager) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)

	var stored int64
	if err := m.db.Table("sessions").Count(&stored).Error; err != nil {
		m.setStatus(StatusError)
		return fmt.Errorf("read sessions table: %w", err)
	}
	if stored == 0 {
		m.log.Info().Msg("telegram: no stored session, messenger delivery disabled until login")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	client, err := factory(ctx, m.cfg, m.db)
	if err != nil {
		m.log.Warn().Err(err).Msg("telegram: stored session unusable, messenger delivery disabled until login")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.Lock()
	previous := m.client
	m.client = client
	m.status = StatusReady
	m.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	m.log.Info().Msg("telegram: sender account ready")
	return nil
}

// IsQRInProgress reports whether a QR login is running.
func (m *Manager) IsQRInProgress() bool {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()
	return m.loginCancel != nil
}

// beginLogin claims the single login slot.
func (m *Manager) beginLogin(ctx context.Context) (context.Context, func(), error) {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if m.loginCancel != nil {
		return nil, nil, ErrLoginInProgress
	}
	loginCtx, cancel := context.WithCancel(ctx)
	m.loginCancel = cancel

	end := func() {
		m.loginMu.Lock()
		defer m.loginMu.Unlock()
		cancel()
		m.loginCancel = nil
	}
	return loginCtx, end, nil
}

// StartQR runs a QR login and blocks until the scan succeeds, the flow fails
// or ctx is done. onQRCode receives every login token URL; tokens rotate
// until one is scanned. On success the session is stored and the account
// becomes Ready.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	if m.GetStatus() == StatusReady {
		return ErrAlreadyLoggedIn
	}

	loginCtx, end, err := m.beginLogin(ctx)
	if err != nil {
		return err
	}
	defer end()

	m.mu.RLock()
	factory := m.qrClientFactory
	m.mu.RUnlock()

	bundle, err := factory(m.cfg)
	if err != nil {
		return fmt.Errorf("create QR client: %w", err)
	}

	data, err := m.scan(loginCtx, bundle, onQRCode)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("QR auth flow failed: %w", err)
	}

	return m.ImportSession(ctx, data)
}

// scan drives the login client until a token is accepted and returns the
// resulting session.
func (m *Manager) scan(ctx context.Context, bundle *QRClientBundle, onQRCode func(url string)) (*session.Data, error) {
	var data *session.Data

	err := bundle.Client.Run(ctx, func(ctx context.Context) error {
		accepted := qrlogin.OnLoginToken(bundle.Dispatcher)

		_, err := bundle.Client.QR().Auth(ctx, accepted, func(_ context.Context, token qrlogin.Token) error {
			m.log.Info().Time("expires", token.Expires()).Msg("telegram: QR token issued")
			onQRCode(token.URL())
			return nil
		})
		if err != nil {
			return err
		}

		data, err = (&session.Loader{Storage: bundle.Storage}).Load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("no session after successful login")
	}
	return data, nil
}

// ImportSession stores an already authorized session and re-initializes the
// client from it.
func (m *Manager) ImportSession(ctx context.Context, data *session.Data) error {
	row, err := ConvertToGotgprotoSession(data)
	if err != nil {
		return err
	}
	if err := m.db.Save(row).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	m.log.Info().Msg("telegram: session stored")
	return m.Init(ctx)
}

// CancelQR aborts a running QR login, if any.
func (m *Manager) CancelQR() {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if m.loginCancel != nil {
		m.loginCancel()
	}
}

// Stop disconnects the running client.
func (m *Manager) Stop() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	if client != nil {
		m.status = StatusUnauthorized
	}
	m.mu.Unlock()

	if client != nil {
		client.Stop()
	}
}
