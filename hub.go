package servicehub

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/servicehub-client/cache"
	"github.com/saiset-co/servicehub-client/client"
	"github.com/saiset-co/servicehub-client/config"
	"github.com/saiset-co/servicehub-client/health"
	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/metrics"
	"github.com/saiset-co/servicehub-client/notify"
	"github.com/saiset-co/servicehub-client/session"
	"github.com/saiset-co/servicehub-client/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Option func(*Hub)

// WithNotificationSource replaces the source built from the notify section.
func WithNotificationSource(source types.NotificationSource) Option {
	return func(h *Hub) { h.source = source }
}

func WithClientOptions(opts ...client.Option) Option {
	return func(h *Hub) { h.clientOpts = append(h.clientOpts, opts...) }
}

func WithTicketChangeHandler(handler types.TicketChangeHandler) Option {
	return func(h *Hub) { h.ticketHandler = handler }
}

func WithScheduleChangeHandler(handler types.ScheduleChangeHandler) Option {
	return func(h *Hub) { h.scheduleHandler = handler }
}

func WithConnectionStateListener(listener types.ConnectionStateListener) Option {
	return func(h *Hub) { h.stateListener = listener }
}

// Hub owns every client component for one signed-in user: session, REST
// API, both data managers and the change listeners matching the role.
type Hub struct {
	ctx             context.Context
	cancel          context.CancelFunc
	state           atomic.Value
	shutdownTimeout time.Duration

	config   *config.ConfigurationManager
	logger   *logger.Manager
	metrics  types.MetricsManager
	session  *session.Manager
	http     *client.HTTPClient
	api      *client.API
	employee *cache.EmployeeDataManager
	manager  *cache.ManagerDataManager
	source   types.NotificationSource
	health   *health.Manager

	collection      string
	clientOpts      []client.Option
	ticketHandler   types.TicketChangeHandler
	scheduleHandler types.ScheduleChangeHandler
	stateListener   types.ConnectionStateListener

	mu        sync.Mutex
	listeners []*notify.Listener
}

func New(ctx context.Context, configPath string, opts ...Option) (*Hub, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	return build(ctx, configManager, opts)
}

// NewWithConfig builds a hub from an in-memory configuration.
func NewWithConfig(ctx context.Context, cfg *types.ServiceConfig, opts ...Option) (*Hub, error) {
	configManager, err := config.NewStaticManager(ctx, cfg)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	return build(ctx, configManager, opts)
}

func build(ctx context.Context, configManager *config.ConfigurationManager, opts []Option) (*Hub, error) {
	hubCtx, cancel := context.WithCancel(ctx)

	h := &Hub{
		ctx:             hubCtx,
		cancel:          cancel,
		config:          configManager,
		shutdownTimeout: 30 * time.Second,
	}
	h.state.Store(StateStopped)

	for _, opt := range opts {
		opt(h)
	}

	if err := h.registerComponents(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register components")
	}

	return h, nil
}

func (h *Hub) registerComponents() error {
	cfg := h.config.GetConfig()

	loggerManager, err := logger.NewManager(h.ctx, h.config)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	h.logger = loggerManager

	h.metrics, err = metrics.NewManager(h.ctx, h.config, loggerManager.Component("metrics"))
	if err != nil {
		return types.WrapError(err, "failed to register metrics manager")
	}

	h.session, err = session.NewManager(h.ctx, loggerManager.Component("session"), cfg.Session)
	if err != nil {
		return types.WrapError(err, "failed to register session manager")
	}

	h.http, err = client.NewHTTPClient(h.ctx, loggerManager.Component("client"), h.metrics, cfg.API, h.session, h.clientOpts...)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP client")
	}
	h.api = client.NewAPI(h.http)

	cacheConfig := cfg.Cache
	if cacheConfig == nil {
		cacheConfig = &types.CacheConfig{}
	}

	employeeOpts, err := cache.OptionsFromConfig(cacheConfig.Employee, loggerManager.Component("employee_cache"), h.metrics)
	if err != nil {
		return types.WrapError(err, "failed to read employee cache config")
	}
	h.employee = cache.NewEmployeeDataManager(h.ctx, h.api, employeeOpts)

	managerOpts, err := cache.OptionsFromConfig(cacheConfig.Manager, loggerManager.Component("manager_cache"), h.metrics)
	if err != nil {
		return types.WrapError(err, "failed to read manager cache config")
	}
	h.manager = cache.NewManagerDataManager(h.ctx, h.api, managerOpts)

	if h.source == nil {
		h.source, err = notify.NewSource(h.ctx, loggerManager.Component("notify"), h.metrics, cfg.Notify, h.session)
		if err != nil {
			return types.WrapError(err, "failed to register notification source")
		}
	}
	h.collection = notify.CollectionOf(cfg.Notify)

	h.health = health.NewManager(loggerManager.Component("health"), cfg.Name, cfg.Version)
	h.health.RegisterChecker("session", h.checkSession)
	h.health.RegisterChecker("api", h.checkAPI)
	h.health.RegisterChecker("notifications", h.checkNotifications)

	return nil
}

// Health runs every registered check.
func (h *Hub) Health(ctx context.Context) health.Report {
	return h.health.Check(ctx)
}

func (h *Hub) checkSession(context.Context) health.Check {
	if !h.session.IsRunning() {
		return health.Check{Status: health.StatusUnhealthy, Message: "session store closed"}
	}
	if !h.session.IsLoggedIn() {
		return health.Check{Status: health.StatusUnknown, Message: "signed out"}
	}
	current := h.session.Current()
	return health.Check{Status: health.StatusHealthy, Message: current.Name + " (" + current.Role + ")"}
}

func (h *Hub) checkAPI(context.Context) health.Check {
	state := h.http.BreakerState()
	switch state {
	case client.StateBreakerOpen:
		return health.Check{Status: health.StatusUnhealthy, Message: "circuit breaker open"}
	case client.StateBreakerHalfOpen:
		return health.Check{Status: health.StatusUnknown, Message: "circuit breaker half-open"}
	default:
		return health.Check{Status: health.StatusHealthy, Message: "circuit breaker " + state.String()}
	}
}

func (h *Hub) checkNotifications(context.Context) health.Check {
	if !h.source.IsRunning() {
		return health.Check{Status: health.StatusUnhealthy, Message: "source not running"}
	}

	if c, ok := h.source.(interface{ Connected() bool }); ok && !c.Connected() {
		return health.Check{Status: health.StatusUnknown, Message: "reconnecting"}
	}

	if !h.Listening() {
		return health.Check{Status: health.StatusUnknown, Message: "no active listeners"}
	}
	return health.Check{Status: health.StatusHealthy, Message: "listening"}
}

func (h *Hub) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	if err := h.startComponents(); err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	h.setState(StateRunning)

	if h.session.IsLoggedIn() {
		if err := h.StartListeners(); err != nil {
			h.logger.Warn("Listeners not started", zap.Error(err))
		}
	}

	h.logger.Info("Hub started",
		zap.String("name", h.config.GetConfig().Name),
		zap.Bool("logged_in", h.session.IsLoggedIn()))

	return nil
}

func (h *Hub) startComponents() error {
	if err := h.config.Start(); err != nil {
		return types.WrapError(err, "failed to start config manager")
	}

	if err := h.logger.Start(); err != nil {
		return types.WrapError(err, "failed to start logger")
	}

	g := new(errgroup.Group)

	g.Go(func() error {
		if err := h.metrics.Start(); err != nil {
			h.logger.Error("Failed to start metrics manager", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		if err := h.session.Start(); err != nil {
			return types.WrapError(err, "failed to start session manager")
		}
		return nil
	})

	g.Go(func() error {
		if err := h.source.Start(); err != nil {
			h.logger.Error("Failed to start notification source", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

func (h *Hub) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	h.logger.Info("Stopping hub...")
	h.StopListeners()

	err := h.stopComponents()

	h.cancel()
	h.setState(StateStopped)

	return err
}

func (h *Hub) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	var errors []error

	g, gCtx := errgroup.WithContext(ctx)

	for name, manager := range map[string]types.LifecycleManager{
		"notification source": h.source,
		"HTTP client":         h.http,
		"metrics manager":     h.metrics,
	} {
		name, manager := name, manager
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if !manager.IsRunning() {
					return nil
				}
				if err := manager.Stop(); err != nil {
					h.logger.Error("Failed to stop "+name, zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			h.logger.Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errors = append(errors, err)
		}
	}

	h.employee.Close()
	h.manager.Close()

	if err := h.session.Stop(); err != nil {
		h.logger.Error("Failed to stop session manager", zap.Error(err))
		errors = append(errors, err)
	}

	h.logger.Info("All components stopped")

	if err := h.logger.Stop(); err != nil {
		errors = append(errors, err)
	}

	if err := h.config.Stop(); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errors)
	}
	return nil
}

func (h *Hub) IsRunning() bool {
	return h.getState() == StateRunning
}

// Login signs in, persists the session and starts the listeners of the
// returned role.
func (h *Hub) Login(ctx context.Context, email, password string) (*types.AuthData, error) {
	auth, err := h.api.Login(ctx, &types.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	if err := h.startSession(auth); err != nil {
		return nil, err
	}

	return auth, nil
}

// Register creates an account. A response that still needs verification
// leaves the user signed out.
func (h *Hub) Register(ctx context.Context, req *types.RegisterRequest) (*types.AuthData, error) {
	auth, err := h.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	if auth.Token == "" || auth.RequiresVerification {
		return auth, nil
	}

	if err := h.startSession(auth); err != nil {
		return nil, err
	}

	return auth, nil
}

func (h *Hub) startSession(auth *types.AuthData) error {
	h.StopListeners()
	h.clearCaches()

	if err := h.session.SaveAuth(auth); err != nil {
		return err
	}

	if h.IsRunning() {
		if err := h.StartListeners(); err != nil {
			h.logger.Warn("Listeners not started", zap.Error(err))
		}
	}
	return nil
}

// Logout always clears local state; a failed server call is only logged.
func (h *Hub) Logout(ctx context.Context) error {
	if h.session.IsLoggedIn() {
		if err := h.api.Logout(ctx); err != nil {
			h.logger.ErrorWithErrStack("Server logout failed", errors.WithStack(err))
		}
	}

	h.StopListeners()
	h.clearCaches()

	return h.session.Clear()
}

// StartListeners starts the listeners of the current role. Listeners whose
// filter value is unknown stay idle.
func (h *Hub) StartListeners() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.listeners) == 0 {
		h.listeners = h.buildListeners(h.session.Current().Role)
	}

	var firstErr error
	for _, l := range h.listeners {
		if err := l.StartListening(h.ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Hub) StopListeners() {
	h.mu.Lock()
	listeners := h.listeners
	h.listeners = nil
	h.mu.Unlock()

	for _, l := range listeners {
		l.StopListening()
	}
}

func (h *Hub) Listening() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, l := range h.listeners {
		if l.IsListening() {
			return true
		}
	}
	return false
}

func (h *Hub) buildListeners(role string) []*notify.Listener {
	opts := notify.ListenerOptions{
		Source:     h.source,
		Collection: h.collection,
		Logger:     h.logger.Component("listener"),
		Metrics:    h.metrics,
	}

	var listeners []*notify.Listener

	switch strings.ToLower(role) {
	case types.RoleManager, types.RoleAdmin:
		listeners = append(listeners, notify.NewManagerListener(opts, h.manager, h.session))
	case types.RoleEmployee, types.RoleTechnician:
		listeners = append(listeners,
			notify.NewEmployeeScheduleListener(opts, h.employee, h.session, h.scheduleHandler),
			notify.NewEmployeeTicketListener(opts, h.employee, h.session, h.ticketHandler))
	default:
		listeners = append(listeners, notify.NewCustomerTicketListener(opts, h.session, h.ticketHandler))
	}

	if h.stateListener != nil {
		for _, l := range listeners {
			l.SetConnectionStateListener(h.stateListener)
		}
	}

	h.logger.Debug("Listeners built", zap.String("role", role), zap.Int("count", len(listeners)))

	return listeners
}

func (h *Hub) clearCaches() {
	h.employee.ClearCache()
	h.manager.ClearAllCache()
}

func (h *Hub) API() *client.API                         { return h.api }
func (h *Hub) Session() *session.Manager                { return h.session }
func (h *Hub) EmployeeData() *cache.EmployeeDataManager { return h.employee }
func (h *Hub) ManagerData() *cache.ManagerDataManager   { return h.manager }
func (h *Hub) Source() types.NotificationSource         { return h.source }
func (h *Hub) Logger() types.Logger                     { return h.logger }
func (h *Hub) Metrics() types.MetricsManager            { return h.metrics }
func (h *Hub) Config() types.ConfigManager              { return h.config }

func (h *Hub) getState() State {
	return h.state.Load().(State)
}

func (h *Hub) setState(newState State) bool {
	currentState := h.getState()
	return h.state.CompareAndSwap(currentState, newState)
}

func (h *Hub) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}
