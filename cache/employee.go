package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/types"
)

const DefaultEmployeeTTL = 10 * time.Second

// EmployeeAPI is the part of the REST client the employee cache reads from.
type EmployeeAPI interface {
	EmployeeTickets(ctx context.Context, status string) ([]types.Ticket, error)
	EmployeeSchedule(ctx context.Context) ([]types.ScheduledTicket, error)
}

type Options struct {
	TTL     time.Duration
	Policy  types.InFlightPolicy
	Clock   types.Clock
	Logger  types.Logger
	Metrics types.MetricsManager
}

// OptionsFromConfig maps one cache policy section onto Options.
func OptionsFromConfig(config types.CachePolicyConfig, log types.Logger, metrics types.MetricsManager) (Options, error) {
	opts := Options{
		TTL:     config.TTL,
		Logger:  log,
		Metrics: metrics,
	}

	if config.InFlight != "" {
		policy, err := types.ParseInFlightPolicy(config.InFlight)
		if err != nil {
			return Options{}, err
		}
		opts.Policy = policy
	}

	return opts, nil
}

func (o Options) withDefaults(ttl time.Duration, policy types.InFlightPolicy) Options {
	if o.TTL <= 0 {
		o.TTL = ttl
	}
	if o.Policy == "" {
		o.Policy = policy
	}
	if o.Clock == nil {
		o.Clock = types.SystemClock
	}
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
	return o
}

// EmployeeDataManager caches the signed-in employee's tickets and schedule.
type EmployeeDataManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	api      EmployeeAPI
	logger   types.Logger
	tickets  *Slot[[]types.Ticket]
	schedule *Slot[[]types.ScheduledTicket]
}

func NewEmployeeDataManager(ctx context.Context, api EmployeeAPI, opts Options) *EmployeeDataManager {
	opts = opts.withDefaults(DefaultEmployeeTTL, types.InFlightDrop)
	managerCtx, cancel := context.WithCancel(ctx)

	return &EmployeeDataManager{
		ctx:    managerCtx,
		cancel: cancel,
		api:    api,
		logger: opts.Logger,
		tickets: NewSlot(managerCtx, SlotConfig[[]types.Ticket]{
			Kind:    types.KindTickets,
			TTL:     opts.TTL,
			Policy:  opts.Policy,
			Clock:   opts.Clock,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clone:   cloneSlice[types.Ticket],
		}),
		schedule: NewSlot(managerCtx, SlotConfig[[]types.ScheduledTicket]{
			Kind:    types.KindSchedule,
			TTL:     opts.TTL,
			Policy:  opts.Policy,
			Clock:   opts.Clock,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clone:   cloneSlice[types.ScheduledTicket],
		}),
	}
}

func (m *EmployeeDataManager) LoadTickets(ctx context.Context, force bool, cb types.Callback[[]types.Ticket]) bool {
	return m.tickets.Load(ctx, force, m.fetchTickets, cb)
}

func (m *EmployeeDataManager) LoadSchedule(ctx context.Context, force bool, cb types.Callback[[]types.ScheduledTicket]) bool {
	return m.schedule.Load(ctx, force, m.fetchSchedule, cb)
}

func (m *EmployeeDataManager) Tickets(ctx context.Context, force bool) ([]types.Ticket, error) {
	return m.tickets.Get(ctx, force, m.fetchTickets)
}

func (m *EmployeeDataManager) Schedule(ctx context.Context, force bool) ([]types.ScheduledTicket, error) {
	return m.schedule.Get(ctx, force, m.fetchSchedule)
}

func (m *EmployeeDataManager) GetCachedTickets() []types.Ticket {
	return m.tickets.Cached()
}

func (m *EmployeeDataManager) GetCachedSchedule() []types.ScheduledTicket {
	return m.schedule.Cached()
}

func (m *EmployeeDataManager) ClearCache() {
	m.tickets.Clear()
	m.schedule.Clear()
	m.logger.Debug("Employee cache cleared")
}

func (m *EmployeeDataManager) ClearTicketCache() {
	m.tickets.Clear()
}

func (m *EmployeeDataManager) ClearScheduleCache() {
	m.schedule.Clear()
}

// ForceRefreshAll clears both entries and reloads them, returning the first
// load error. An entry whose load is already running is left to finish.
func (m *EmployeeDataManager) ForceRefreshAll(ctx context.Context) error {
	m.ClearCache()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.tickets.Get(gctx, true, m.fetchTickets)
		return ignoreInFlight(err)
	})
	g.Go(func() error {
		_, err := m.schedule.Get(gctx, true, m.fetchSchedule)
		return ignoreInFlight(err)
	})

	if err := g.Wait(); err != nil {
		m.logger.Warn("Employee refresh failed", zap.Error(err))
		return err
	}
	return nil
}

func (m *EmployeeDataManager) SubscribeTickets(fn func([]types.Ticket)) (cancel func()) {
	return m.tickets.Subscribe(fn)
}

func (m *EmployeeDataManager) SubscribeSchedule(fn func([]types.ScheduledTicket)) (cancel func()) {
	return m.schedule.Subscribe(fn)
}

// Close cancels running fetches; their callers receive the cancellation
// error.
func (m *EmployeeDataManager) Close() {
	m.cancel()
}

func (m *EmployeeDataManager) fetchTickets(ctx context.Context) ([]types.Ticket, error) {
	return m.api.EmployeeTickets(ctx, "")
}

func (m *EmployeeDataManager) fetchSchedule(ctx context.Context) ([]types.ScheduledTicket, error) {
	return m.api.EmployeeSchedule(ctx)
}

func ignoreInFlight(err error) error {
	if types.IsError(err, types.ErrLoadInFlight) {
		return nil
	}
	return err
}
