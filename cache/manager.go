package cache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
)

const DefaultManagerTTL = 3 * time.Minute

// ManagerAPI is the part of the REST client the manager cache reads from.
type ManagerAPI interface {
	Employees(ctx context.Context) (types.EmployeeRoster, error)
	ManagerTickets(ctx context.Context) ([]types.Ticket, error)
	ManagerDashboard(ctx context.Context) (types.Dashboard, error)
}

// ManagerDataManager caches the branch roster, branch tickets and dashboard
// for a signed-in manager.
type ManagerDataManager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	api       ManagerAPI
	logger    types.Logger
	employees *Slot[types.EmployeeRoster]
	tickets   *Slot[[]types.Ticket]
	dashboard *Slot[types.Dashboard]

	listenersMu sync.Mutex
	listeners   []types.EmployeeDataChangeListener
}

func NewManagerDataManager(ctx context.Context, api ManagerAPI, opts Options) *ManagerDataManager {
	opts = opts.withDefaults(DefaultManagerTTL, types.InFlightJoin)
	managerCtx, cancel := context.WithCancel(ctx)

	m := &ManagerDataManager{
		ctx:    managerCtx,
		cancel: cancel,
		api:    api,
		logger: opts.Logger,
		employees: NewSlot(managerCtx, SlotConfig[types.EmployeeRoster]{
			Kind:    types.KindEmployees,
			TTL:     opts.TTL,
			Policy:  opts.Policy,
			Clock:   opts.Clock,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clone:   cloneRoster,
		}),
		tickets: NewSlot(managerCtx, SlotConfig[[]types.Ticket]{
			Kind:    types.KindTickets,
			TTL:     opts.TTL,
			Policy:  opts.Policy,
			Clock:   opts.Clock,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clone:   cloneSlice[types.Ticket],
		}),
		dashboard: NewSlot(managerCtx, SlotConfig[types.Dashboard]{
			Kind:    types.KindDashboard,
			TTL:     opts.TTL,
			Policy:  opts.Policy,
			Clock:   opts.Clock,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clone:   cloneDashboard,
		}),
	}

	m.employees.Subscribe(m.notifyEmployeeListeners)

	return m
}

func (m *ManagerDataManager) LoadEmployees(ctx context.Context, force bool, cb types.Callback[types.EmployeeRoster]) bool {
	return m.employees.Load(ctx, force, m.api.Employees, cb)
}

func (m *ManagerDataManager) LoadTickets(ctx context.Context, force bool, cb types.Callback[[]types.Ticket]) bool {
	return m.tickets.Load(ctx, force, m.api.ManagerTickets, cb)
}

func (m *ManagerDataManager) LoadDashboard(ctx context.Context, force bool, cb types.Callback[types.Dashboard]) bool {
	return m.dashboard.Load(ctx, force, m.api.ManagerDashboard, cb)
}

func (m *ManagerDataManager) Employees(ctx context.Context, force bool) (types.EmployeeRoster, error) {
	return m.employees.Get(ctx, force, m.api.Employees)
}

func (m *ManagerDataManager) Tickets(ctx context.Context, force bool) ([]types.Ticket, error) {
	return m.tickets.Get(ctx, force, m.api.ManagerTickets)
}

func (m *ManagerDataManager) Dashboard(ctx context.Context, force bool) (types.Dashboard, error) {
	return m.dashboard.Get(ctx, force, m.api.ManagerDashboard)
}

// LoadAllData loads the three entries concurrently, honouring freshness.
// Part callbacks may run concurrently with each other; exactly one of
// OnLoadComplete or OnLoadError follows them. Nothing is reported once ctx
// is done.
func (m *ManagerDataManager) LoadAllData(ctx context.Context, cb types.DataLoadCallback) {
	go m.loadAll(ctx, false, cb)
}

// ForceRefreshAllData clears every entry and reloads it, reporting through
// cb the same way LoadAllData does.
func (m *ManagerDataManager) ForceRefreshAllData(ctx context.Context, cb types.DataLoadCallback) {
	m.ClearAllCache()
	go m.loadAll(ctx, true, cb)
}

func (m *ManagerDataManager) loadAll(ctx context.Context, force bool, cb types.DataLoadCallback) {
	g := new(errgroup.Group)

	g.Go(func() error {
		roster, err := m.employees.Get(ctx, force, m.api.Employees)
		if err != nil {
			return types.WrapError(err, "employees")
		}
		if !callerGone(ctx) {
			cb.OnEmployeesLoaded(roster.BranchName(), roster.Employees)
		}
		return nil
	})

	g.Go(func() error {
		tickets, err := m.tickets.Get(ctx, force, m.api.ManagerTickets)
		if err != nil {
			return types.WrapError(err, "tickets")
		}
		if !callerGone(ctx) {
			cb.OnTicketsLoaded(tickets)
		}
		return nil
	})

	g.Go(func() error {
		dashboard, err := m.dashboard.Get(ctx, force, m.api.ManagerDashboard)
		if err != nil {
			return types.WrapError(err, "dashboard")
		}
		if !callerGone(ctx) {
			cb.OnDashboardStatsLoaded(dashboard.Stats, dashboard.Recent)
		}
		return nil
	})

	err := g.Wait()
	if callerGone(ctx) {
		m.logger.Debug("Combined load abandoned by caller")
		return
	}

	if err != nil {
		m.logger.Warn("Combined load failed", zap.Error(err))
		cb.OnLoadError(err)
		return
	}

	cb.OnLoadComplete()
}

// RefreshEmployees clears the roster and reloads it in the background.
// Registered employee listeners see the result.
func (m *ManagerDataManager) RefreshEmployees(ctx context.Context) bool {
	m.employees.Clear()
	return m.employees.Load(ctx, true, m.api.Employees, nil)
}

// RefreshTickets clears the ticket list and reloads it in the background.
// Ticket subscribers see the result.
func (m *ManagerDataManager) RefreshTickets(ctx context.Context) bool {
	m.tickets.Clear()
	return m.tickets.Load(ctx, true, m.api.ManagerTickets, nil)
}

// RegisterEmployeeListener adds l unless it is already registered. A nil
// or non-comparable listener yields types.ErrListenerInvalid.
func (m *ManagerDataManager) RegisterEmployeeListener(l types.EmployeeDataChangeListener) error {
	if !comparableListener(l) {
		return types.Errorf(types.ErrListenerInvalid, "%T", l)
	}

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for _, existing := range m.listeners {
		if sameListener(existing, l) {
			return nil
		}
	}
	m.listeners = append(m.listeners, l)
	return nil
}

func (m *ManagerDataManager) UnregisterEmployeeListener(l types.EmployeeDataChangeListener) {
	if !comparableListener(l) {
		return
	}

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for i, existing := range m.listeners {
		if sameListener(existing, l) {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func comparableListener(l types.EmployeeDataChangeListener) bool {
	return l != nil && reflect.ValueOf(l).Comparable()
}

func sameListener(a, b types.EmployeeDataChangeListener) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	return va.Type() == vb.Type() && va.Equal(vb)
}

func (m *ManagerDataManager) SubscribeTickets(fn func([]types.Ticket)) (cancel func()) {
	return m.tickets.Subscribe(fn)
}

func (m *ManagerDataManager) GetCachedEmployees() []types.Employee {
	return m.employees.Cached().Employees
}

func (m *ManagerDataManager) GetCachedBranchName() string {
	return m.employees.Cached().BranchName()
}

func (m *ManagerDataManager) GetCachedTickets() []types.Ticket {
	return m.tickets.Cached()
}

func (m *ManagerDataManager) GetCachedDashboardStats() types.DashboardStats {
	return m.dashboard.Cached().Stats
}

func (m *ManagerDataManager) GetCachedRecentTickets() []types.RecentTicket {
	return m.dashboard.Cached().Recent
}

// IsDataLoaded reports whether every entry holds data, fresh or not.
func (m *ManagerDataManager) IsDataLoaded() bool {
	return m.employees.Loaded() && m.tickets.Loaded() && m.dashboard.Loaded()
}

func (m *ManagerDataManager) ClearEmployeeCache() {
	m.employees.Clear()
}

func (m *ManagerDataManager) ClearTicketCache() {
	m.tickets.Clear()
}

func (m *ManagerDataManager) ClearAllCache() {
	m.employees.Clear()
	m.tickets.Clear()
	m.dashboard.Clear()
	m.logger.Debug("Manager cache cleared")
}

// UpdateTicketAssignmentInCache patches one cached ticket in place after a
// successful assignment, without touching the entry's age. It returns
// types.ErrTicketNotCached when the ticket is not in the cache.
func (m *ManagerDataManager) UpdateTicketAssignmentInCache(ticketID, status, assignedStaff, scheduledDate, scheduledTime string) error {
	updated := m.tickets.Update(func(tickets []types.Ticket) ([]types.Ticket, bool) {
		for i := range tickets {
			if tickets[i].TicketID != ticketID {
				continue
			}
			tickets[i].Status = status
			tickets[i].AssignedStaff = assignedStaff
			tickets[i].ScheduledDate = scheduledDate
			tickets[i].ScheduledTime = scheduledTime
			return tickets, true
		}
		return tickets, false
	})

	if !updated {
		return types.Errorf(types.ErrTicketNotCached, "ticket: %s", ticketID)
	}

	m.logger.Debug("Ticket assignment patched in cache",
		zap.String("ticket_id", ticketID),
		zap.String("status", status),
		zap.String("assigned_staff", assignedStaff))

	return nil
}

func (m *ManagerDataManager) Close() {
	m.cancel()
}

func (m *ManagerDataManager) notifyEmployeeListeners(roster types.EmployeeRoster) {
	m.listenersMu.Lock()
	listeners := make([]types.EmployeeDataChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	branch := roster.BranchName()
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Employee listener panicked", zap.String("panic", fmt.Sprint(r)))
				}
			}()
			l.OnEmployeeDataChanged(branch, cloneSlice(roster.Employees))
		}()
	}
}

func cloneRoster(r types.EmployeeRoster) types.EmployeeRoster {
	return types.EmployeeRoster{
		Branch:    r.Branch,
		Employees: cloneSlice(r.Employees),
	}
}

func cloneDashboard(d types.Dashboard) types.Dashboard {
	return types.Dashboard{
		Stats:  d.Stats,
		Recent: cloneSlice(d.Recent),
	}
}
