package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customSessionCreators = make(map[string]types.SessionStoreCreator)

func RegisterSessionStore(storeType string, creator types.SessionStoreCreator) {
	customSessionCreators[storeType] = creator
}

// Manager holds the signed-in identity in memory and mirrors it to the
// configured store. It is the token source of the REST client.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	config *types.SessionConfig
	store  types.SessionStore
	sealer *sealer
	state  atomic.Value

	mu      sync.RWMutex
	current types.Session
}

func NewManager(ctx context.Context, logger types.Logger, config *types.SessionConfig) (*Manager, error) {
	if config == nil {
		config = &types.SessionConfig{Type: "memory"}
	}

	store, err := createStore(config)
	if err != nil {
		return nil, err
	}

	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		logger: logger,
		config: config,
		store:  store,
		sealer: newSealer(config.EncryptionKey),
	}
	m.state.Store(StateStopped)

	return m, nil
}

// Start restores a persisted session. A corrupted one is discarded so the
// user signs in again.
func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	session, err := m.store.Load()
	if err == nil {
		session.Token, err = m.sealer.open(session.Token)
	}

	if err != nil {
		m.logger.Warn("Discarding stored session", zap.Error(err))
		if clearErr := m.store.Clear(); clearErr != nil {
			m.setState(StateStopped)
			return types.WrapError(clearErr, "failed to discard stored session")
		}
		session = types.Session{}
	}

	m.mu.Lock()
	m.current = session
	m.mu.Unlock()

	m.setState(StateRunning)

	m.logger.Info("Session manager started",
		zap.String("store", m.storeType()),
		zap.Bool("logged_in", session.LoggedIn()))

	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer func() {
		m.setState(StateStopped)
		m.cancel()
	}()

	if err := m.store.Close(); err != nil {
		return types.WrapError(err, "failed to close session store")
	}

	m.logger.Info("Session manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

func (m *Manager) Current() types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) IsLoggedIn() bool {
	return m.Current().LoggedIn()
}

// Save replaces the session. The token is stored without any "Bearer "
// prefix the server may have added.
func (m *Manager) Save(session types.Session) error {
	session.Token = strings.TrimSpace(strings.TrimPrefix(session.Token, "Bearer "))

	stored := session
	sealed, err := m.sealer.seal(session.Token)
	if err != nil {
		return err
	}
	stored.Token = sealed

	if err := m.store.Save(stored); err != nil {
		return types.WrapError(err, "failed to save session")
	}

	m.mu.Lock()
	m.current = session
	m.mu.Unlock()

	m.logger.Debug("Session saved",
		zap.String("email", session.Email),
		zap.String("role", session.Role))

	return nil
}

// SaveAuth stores the identity returned by a login or registration.
func (m *Manager) SaveAuth(auth *types.AuthData) error {
	if auth == nil || auth.Token == "" {
		return types.ErrNotAuthenticated
	}

	session := types.Session{Token: auth.Token}
	if auth.User != nil {
		session.Email = auth.User.Email
		session.Name = auth.User.DisplayName()
		session.Role = auth.User.Role
		session.UserID = auth.User.ID
		session.Branch = auth.User.Branch
	}

	return m.Save(session)
}

func (m *Manager) Clear() error {
	m.mu.Lock()
	m.current = types.Session{}
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return types.WrapError(err, "failed to clear session")
	}

	m.logger.Debug("Session cleared")
	return nil
}

func (m *Manager) storeType() string {
	if m.config.Type == "" {
		return "memory"
	}
	return m.config.Type
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func createStore(config *types.SessionConfig) (types.SessionStore, error) {
	storeType := "memory"
	if config.Type != "" {
		storeType = config.Type
	}

	switch storeType {
	case "memory":
		return NewMemoryStore(config)
	case "clover":
		return NewCloverStore(config)
	case "sqlite":
		return NewSQLiteStore(config)
	default:
		if creator, exists := customSessionCreators[storeType]; exists {
			return creator(config)
		}
		return nil, types.Errorf(types.ErrSessionTypeUnknown, "session type: %s", storeType)
	}
}
