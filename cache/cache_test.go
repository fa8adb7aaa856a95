package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/types"
)

const waitTimeout = 2 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeAPI serves both data managers. A non-nil gate blocks every fetch
// until it is closed.
type fakeAPI struct {
	mu        sync.Mutex
	gate      chan struct{}
	tickets   []types.Ticket
	schedule  []types.ScheduledTicket
	roster    types.EmployeeRoster
	dashboard types.Dashboard
	errs      map[types.DataKind]error

	ticketCalls    atomic.Int32
	scheduleCalls  atomic.Int32
	employeeCalls  atomic.Int32
	dashboardCalls atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{errs: make(map[types.DataKind]error)}
}

func (f *fakeAPI) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeAPI) setErr(kind types.DataKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[kind] = err
}

func (f *fakeAPI) wait(ctx context.Context, kind types.DataKind) error {
	f.mu.Lock()
	gate := f.gate
	err := f.errs[kind]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAPI) EmployeeTickets(ctx context.Context, _ string) ([]types.Ticket, error) {
	f.ticketCalls.Add(1)
	if err := f.wait(ctx, types.KindTickets); err != nil {
		return nil, err
	}
	return cloneSlice(f.tickets), nil
}

func (f *fakeAPI) ManagerTickets(ctx context.Context) ([]types.Ticket, error) {
	return f.EmployeeTickets(ctx, "")
}

func (f *fakeAPI) EmployeeSchedule(ctx context.Context) ([]types.ScheduledTicket, error) {
	f.scheduleCalls.Add(1)
	if err := f.wait(ctx, types.KindSchedule); err != nil {
		return nil, err
	}
	return cloneSlice(f.schedule), nil
}

func (f *fakeAPI) Employees(ctx context.Context) (types.EmployeeRoster, error) {
	f.employeeCalls.Add(1)
	if err := f.wait(ctx, types.KindEmployees); err != nil {
		return types.EmployeeRoster{}, err
	}
	return cloneRoster(f.roster), nil
}

func (f *fakeAPI) ManagerDashboard(ctx context.Context) (types.Dashboard, error) {
	f.dashboardCalls.Add(1)
	if err := f.wait(ctx, types.KindDashboard); err != nil {
		return types.Dashboard{}, err
	}
	return cloneDashboard(f.dashboard), nil
}

type result[T any] struct {
	data T
	err  error
}

func capture[T any]() (types.Callback[T], chan result[T]) {
	ch := make(chan result[T], 4)
	return types.CallbackFuncs[T]{
		Success: func(data T) { ch <- result[T]{data: data} },
		Error:   func(err error) { ch <- result[T]{err: err} },
	}, ch
}

func awaitResult[T any](t *testing.T, ch chan result[T]) result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("callback was not invoked")
		return result[T]{}
	}
}

func sampleTickets(n int) []types.Ticket {
	out := make([]types.Ticket, n)
	for i := range out {
		out[i] = types.Ticket{
			ID:       i + 1,
			TicketID: "TCK-" + string(rune('A'+i)),
			Status:   "pending",
		}
	}
	return out
}

type EmployeeDataManagerTestSuite struct {
	suite.Suite
	clock   *fakeClock
	api     *fakeAPI
	manager *EmployeeDataManager
}

func (s *EmployeeDataManagerTestSuite) SetupTest() {
	s.clock = newFakeClock()
	s.api = newFakeAPI()
	s.api.tickets = sampleTickets(3)
	s.api.schedule = []types.ScheduledTicket{{TicketID: "TCK-A", ScheduledDate: "2024-03-05"}}
	s.manager = NewEmployeeDataManager(context.Background(), s.api, Options{Clock: s.clock})
}

func (s *EmployeeDataManagerTestSuite) TearDownTest() {
	s.manager.Close()
}

func (s *EmployeeDataManagerTestSuite) TestFreshEntryIsServedWithoutNetwork() {
	cb, ch := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, cb))
	first := awaitResult(s.T(), ch)
	s.Require().NoError(first.err)
	s.Len(first.data, 3)

	s.clock.Advance(time.Second)

	cb2, ch2 := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, cb2))
	second := awaitResult(s.T(), ch2)
	s.Require().NoError(second.err)
	s.Equal(first.data, second.data)
	s.Equal(int32(1), s.api.ticketCalls.Load())
}

func (s *EmployeeDataManagerTestSuite) TestExpiredEntryIsReloaded() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)

	s.clock.Advance(DefaultEmployeeTTL)

	_, err = s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)
	s.Equal(int32(2), s.api.ticketCalls.Load())
}

func (s *EmployeeDataManagerTestSuite) TestForceBypassesFreshEntry() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)

	s.api.tickets = sampleTickets(5)
	tickets, err := s.manager.Tickets(context.Background(), true)
	s.Require().NoError(err)
	s.Len(tickets, 5)
	s.Equal(int32(2), s.api.ticketCalls.Load())
}

func (s *EmployeeDataManagerTestSuite) TestConcurrentCallerIsDropped() {
	gate := s.api.block()

	cb, ch := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, cb))

	var dropped atomic.Bool
	late := types.CallbackFuncs[[]types.Ticket]{
		Success: func([]types.Ticket) { dropped.Store(true) },
		Error:   func(error) { dropped.Store(true) },
	}
	s.False(s.manager.LoadTickets(context.Background(), false, late))

	close(gate)
	r := awaitResult(s.T(), ch)
	s.Require().NoError(r.err)
	s.Len(r.data, 3)

	s.Equal(int32(1), s.api.ticketCalls.Load())
	s.False(dropped.Load())
}

func (s *EmployeeDataManagerTestSuite) TestBlockingGetReportsDrop() {
	gate := s.api.block()
	defer close(gate)

	s.True(s.manager.LoadTickets(context.Background(), false, nil))

	_, err := s.manager.Tickets(context.Background(), false)
	s.ErrorIs(err, types.ErrLoadInFlight)
}

func (s *EmployeeDataManagerTestSuite) TestReturnedDataIsACopy() {
	tickets, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)

	tickets[0].Status = "tampered"

	cached := s.manager.GetCachedTickets()
	s.Len(cached, 3)
	s.Equal("pending", cached[0].Status)

	cached[1].Status = "tampered"
	s.Equal("pending", s.manager.GetCachedTickets()[1].Status)
}

func (s *EmployeeDataManagerTestSuite) TestClearEmptiesEntries() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)
	_, err = s.manager.Schedule(context.Background(), false)
	s.Require().NoError(err)

	s.manager.ClearTicketCache()
	s.Empty(s.manager.GetCachedTickets())
	s.NotNil(s.manager.GetCachedTickets())
	s.Len(s.manager.GetCachedSchedule(), 1)

	s.manager.ClearCache()
	s.Empty(s.manager.GetCachedSchedule())

	_, err = s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)
	s.Equal(int32(2), s.api.ticketCalls.Load())
}

func (s *EmployeeDataManagerTestSuite) TestFailedLoadKeepsPriorValue() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)

	s.api.setErr(types.KindTickets, types.NewLogicalError(200, "Unauthorized"))

	tickets, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)
	s.Len(tickets, 3)
	s.Equal(int32(1), s.api.ticketCalls.Load())

	_, err = s.manager.Tickets(context.Background(), true)
	s.Require().Error(err)
	s.True(types.IsAPIErrorKind(err, types.APIErrorLogical))
	s.Equal("Unauthorized", err.Error())

	s.Len(s.manager.GetCachedTickets(), 3)
	s.False(s.manager.tickets.Loading())
}

func (s *EmployeeDataManagerTestSuite) TestCancelledCallerGetsNoCallback() {
	gate := s.api.block()

	ctx, cancel := context.WithCancel(context.Background())
	var called atomic.Bool
	s.True(s.manager.LoadTickets(ctx, false, types.CallbackFuncs[[]types.Ticket]{
		Success: func([]types.Ticket) { called.Store(true) },
		Error:   func(error) { called.Store(true) },
	}))

	loaded := make(chan struct{})
	cancelSub := s.manager.SubscribeTickets(func([]types.Ticket) { close(loaded) })
	defer cancelSub()

	cancel()
	close(gate)

	select {
	case <-loaded:
	case <-time.After(waitTimeout):
		s.FailNow("load did not complete")
	}

	s.False(called.Load())
	s.Len(s.manager.GetCachedTickets(), 3)
}

func (s *EmployeeDataManagerTestSuite) TestClearDuringLoadDiscardsResult() {
	gate := s.api.block()

	cb, ch := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, cb))

	s.manager.ClearCache()
	s.False(s.manager.tickets.Loading())

	close(gate)
	r := awaitResult(s.T(), ch)
	s.Require().NoError(r.err)
	s.Len(r.data, 3)

	s.Empty(s.manager.GetCachedTickets())
	s.False(s.manager.tickets.Fresh())

	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)
	s.Equal(int32(2), s.api.ticketCalls.Load())
}

func (s *EmployeeDataManagerTestSuite) TestLoadErrorIsLoggedWithStack() {
	core, logs := observer.New(zapcore.ErrorLevel)
	s.manager.Close()
	s.manager = NewEmployeeDataManager(context.Background(), s.api, Options{
		Clock:  s.clock,
		Logger: logger.NewZapWrapper(zap.New(core)),
	})

	s.api.setErr(types.KindSchedule, types.NewHTTPError(503, "maintenance", nil))

	_, err := s.manager.Schedule(context.Background(), false)
	s.Require().Error(err)
	s.Equal("API error: 503 maintenance", err.Error())

	entries := logs.FilterMessage("Failed to load data").All()
	s.Require().Len(entries, 1)
	fields := entries[0].ContextMap()
	s.Equal("schedule", fields["kind"])
	s.Equal("API error: 503 maintenance", fields["error"])
	s.NotEmpty(fields["stack"])
}

func (s *EmployeeDataManagerTestSuite) TestForceRefreshAll() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)

	s.api.schedule = append(s.api.schedule, types.ScheduledTicket{TicketID: "TCK-B"})

	s.Require().NoError(s.manager.ForceRefreshAll(context.Background()))
	s.Equal(int32(2), s.api.ticketCalls.Load())
	s.Len(s.manager.GetCachedSchedule(), 2)
}

func (s *EmployeeDataManagerTestSuite) TestForceRefreshAllReportsError() {
	boom := errors.New("boom")
	s.api.setErr(types.KindSchedule, boom)

	err := s.manager.ForceRefreshAll(context.Background())
	s.ErrorIs(err, boom)
}

func (s *EmployeeDataManagerTestSuite) TestCloseFailsRunningLoad() {
	gate := s.api.block()
	defer close(gate)

	cb, ch := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, cb))

	s.manager.Close()

	r := awaitResult(s.T(), ch)
	s.ErrorIs(r.err, context.Canceled)
}

func TestEmployeeDataManagerTestSuite(t *testing.T) {
	suite.Run(t, new(EmployeeDataManagerTestSuite))
}

type recordingListener struct {
	mu     sync.Mutex
	calls  int
	branch string
	count  int
}

func (l *recordingListener) OnEmployeeDataChanged(branch string, employees []types.Employee) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.branch = branch
	l.count = len(employees)
}

func (l *recordingListener) snapshot() (int, string, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls, l.branch, l.count
}

type sliceListener struct {
	seen []string
}

func (sliceListener) OnEmployeeDataChanged(string, []types.Employee) {}

type valueListener struct {
	name string
}

func (valueListener) OnEmployeeDataChanged(string, []types.Employee) {}

type loadRecorder struct {
	mu        sync.Mutex
	branch    string
	employees int
	tickets   int
	stats     types.DashboardStats
	recent    int
	completed int
	errs      []error
	done      chan struct{}
}

func newLoadRecorder() *loadRecorder {
	return &loadRecorder{done: make(chan struct{}, 2)}
}

func (r *loadRecorder) OnEmployeesLoaded(branch string, employees []types.Employee) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branch = branch
	r.employees = len(employees)
}

func (r *loadRecorder) OnTicketsLoaded(tickets []types.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = len(tickets)
}

func (r *loadRecorder) OnDashboardStatsLoaded(stats types.DashboardStats, recent []types.RecentTicket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
	r.recent = len(recent)
}

func (r *loadRecorder) OnLoadComplete() {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *loadRecorder) OnLoadError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *loadRecorder) await(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(waitTimeout):
		t.Fatal("combined load did not finish")
	}
}

type ManagerDataManagerTestSuite struct {
	suite.Suite
	clock   *fakeClock
	api     *fakeAPI
	manager *ManagerDataManager
}

func (s *ManagerDataManagerTestSuite) SetupTest() {
	s.clock = newFakeClock()
	s.api = newFakeAPI()
	s.api.tickets = sampleTickets(4)
	s.api.roster = types.EmployeeRoster{
		Branch: "Downtown",
		Employees: []types.Employee{
			{ID: 1, FirstName: "Ana"},
			{ID: 2, FirstName: "Ben"},
			{ID: 3, FirstName: "Cy"},
			{ID: 4, FirstName: "Di"},
			{ID: 5, FirstName: "Ed"},
		},
	}
	s.api.dashboard = types.Dashboard{
		Stats:  types.DashboardStats{TotalTickets: 4, Pending: 3, Completed: 1},
		Recent: []types.RecentTicket{{TicketID: "TCK-A"}, {TicketID: "TCK-B"}},
	}
	s.manager = NewManagerDataManager(context.Background(), s.api, Options{Clock: s.clock})
}

func (s *ManagerDataManagerTestSuite) TearDownTest() {
	s.manager.Close()
}

func (s *ManagerDataManagerTestSuite) TestDefaults() {
	s.Equal(DefaultManagerTTL, s.manager.tickets.ttl)
	s.Equal(types.InFlightJoin, s.manager.tickets.policy)
}

func (s *ManagerDataManagerTestSuite) TestConcurrentCallersJoin() {
	gate := s.api.block()

	cb1, ch1 := capture[[]types.Ticket]()
	cb2, ch2 := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, cb1))
	s.True(s.manager.LoadTickets(context.Background(), false, cb2))

	close(gate)

	r1 := awaitResult(s.T(), ch1)
	r2 := awaitResult(s.T(), ch2)
	s.Require().NoError(r1.err)
	s.Require().NoError(r2.err)
	s.Len(r1.data, 4)
	s.Equal(r1.data, r2.data)
	s.Equal(int32(1), s.api.ticketCalls.Load())

	r1.data[0].Status = "tampered"
	s.Equal("pending", r2.data[0].Status)
}

func (s *ManagerDataManagerTestSuite) TestClearEmployeeCache() {
	roster, err := s.manager.Employees(context.Background(), false)
	s.Require().NoError(err)
	s.Len(roster.Employees, 5)
	s.Equal("Downtown", s.manager.GetCachedBranchName())

	s.manager.ClearEmployeeCache()

	s.Empty(s.manager.GetCachedEmployees())
	s.Equal(types.NoBranchAssigned, s.manager.GetCachedBranchName())
}

func (s *ManagerDataManagerTestSuite) TestMissingBranchFallsBack() {
	s.api.roster.Branch = ""

	_, err := s.manager.Employees(context.Background(), false)
	s.Require().NoError(err)
	s.Equal(types.NoBranchAssigned, s.manager.GetCachedBranchName())
}

func (s *ManagerDataManagerTestSuite) TestLoadAllData() {
	rec := newLoadRecorder()
	s.manager.LoadAllData(context.Background(), rec)
	rec.await(s.T())

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.Equal(1, rec.completed)
	s.Empty(rec.errs)
	s.Equal("Downtown", rec.branch)
	s.Equal(5, rec.employees)
	s.Equal(4, rec.tickets)
	s.Equal(4, rec.stats.TotalTickets)
	s.Equal(2, rec.recent)

	s.True(s.manager.IsDataLoaded())
	s.Equal(3, s.manager.GetCachedDashboardStats().Pending)
	s.Len(s.manager.GetCachedRecentTickets(), 2)
}

func (s *ManagerDataManagerTestSuite) TestLoadAllDataUsesFreshEntries() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)

	rec := newLoadRecorder()
	s.manager.LoadAllData(context.Background(), rec)
	rec.await(s.T())

	s.Equal(int32(1), s.api.ticketCalls.Load())
	s.Equal(int32(1), s.api.employeeCalls.Load())
}

func (s *ManagerDataManagerTestSuite) TestLoadAllDataReportsOneError() {
	s.api.setErr(types.KindDashboard, types.NewHTTPError(500, "server error", nil))

	rec := newLoadRecorder()
	s.manager.LoadAllData(context.Background(), rec)
	rec.await(s.T())

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.Equal(0, rec.completed)
	s.Require().Len(rec.errs, 1)
	s.True(types.IsAPIErrorKind(rec.errs[0], types.APIErrorHTTP))
	s.False(s.manager.IsDataLoaded())
}

func (s *ManagerDataManagerTestSuite) TestForceRefreshAllData() {
	rec := newLoadRecorder()
	s.manager.LoadAllData(context.Background(), rec)
	rec.await(s.T())

	rec = newLoadRecorder()
	s.manager.ForceRefreshAllData(context.Background(), rec)
	rec.await(s.T())

	s.Equal(int32(2), s.api.ticketCalls.Load())
	s.Equal(int32(2), s.api.employeeCalls.Load())
	s.Equal(int32(2), s.api.dashboardCalls.Load())
}

func (s *ManagerDataManagerTestSuite) TestClearedTicketsAreNotJoined() {
	gate := s.api.block()

	stale, staleCh := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, stale))

	s.manager.ClearTicketCache()

	s.api.tickets = sampleTickets(2)

	fresh, freshCh := capture[[]types.Ticket]()
	s.True(s.manager.LoadTickets(context.Background(), false, fresh))

	close(gate)
	s.Require().NoError(awaitResult(s.T(), staleCh).err)
	r := awaitResult(s.T(), freshCh)
	s.Require().NoError(r.err)
	s.Len(r.data, 2)

	s.Equal(int32(2), s.api.ticketCalls.Load())
	s.Len(s.manager.GetCachedTickets(), 2)
}

func (s *ManagerDataManagerTestSuite) TestEmployeeListenersAreDeduplicated() {
	listener := &recordingListener{}
	other := &recordingListener{}

	s.Require().NoError(s.manager.RegisterEmployeeListener(listener))
	s.Require().NoError(s.manager.RegisterEmployeeListener(listener))
	s.Require().NoError(s.manager.RegisterEmployeeListener(other))

	_, err := s.manager.Employees(context.Background(), false)
	s.Require().NoError(err)

	calls, branch, count := listener.snapshot()
	s.Equal(1, calls)
	s.Equal("Downtown", branch)
	s.Equal(5, count)

	s.manager.UnregisterEmployeeListener(other)
	s.manager.UnregisterEmployeeListener(other)

	_, err = s.manager.Employees(context.Background(), true)
	s.Require().NoError(err)

	calls, _, _ = listener.snapshot()
	s.Equal(2, calls)
	calls, _, _ = other.snapshot()
	s.Equal(1, calls)
}

func (s *ManagerDataManagerTestSuite) TestNonComparableListenerIsRejected() {
	listener := sliceListener{seen: []string{"Downtown"}}

	s.NotPanics(func() {
		s.ErrorIs(s.manager.RegisterEmployeeListener(listener), types.ErrListenerInvalid)
		s.ErrorIs(s.manager.RegisterEmployeeListener(nil), types.ErrListenerInvalid)
		s.manager.UnregisterEmployeeListener(listener)
	})

	byValue := valueListener{name: "board"}
	s.Require().NoError(s.manager.RegisterEmployeeListener(byValue))
	s.Require().NoError(s.manager.RegisterEmployeeListener(byValue))
	s.Require().NoError(s.manager.RegisterEmployeeListener(&recordingListener{}))

	s.manager.listenersMu.Lock()
	s.Len(s.manager.listeners, 2)
	s.manager.listenersMu.Unlock()

	s.manager.UnregisterEmployeeListener(byValue)

	s.manager.listenersMu.Lock()
	s.Len(s.manager.listeners, 1)
	s.manager.listenersMu.Unlock()
}

func (s *ManagerDataManagerTestSuite) TestRefreshEmployeesNotifiesListeners() {
	listener := &recordingListener{}
	s.Require().NoError(s.manager.RegisterEmployeeListener(listener))

	s.True(s.manager.RefreshEmployees(context.Background()))

	s.Eventually(func() bool {
		calls, _, _ := listener.snapshot()
		return calls == 1
	}, waitTimeout, 10*time.Millisecond)
}

func (s *ManagerDataManagerTestSuite) TestRefreshTicketsReachesSubscribers() {
	got := make(chan []types.Ticket, 1)
	cancel := s.manager.SubscribeTickets(func(t []types.Ticket) { got <- t })
	defer cancel()

	s.True(s.manager.RefreshTickets(context.Background()))

	select {
	case tickets := <-got:
		s.Len(tickets, 4)
	case <-time.After(waitTimeout):
		s.FailNow("subscriber was not notified")
	}
}

func (s *ManagerDataManagerTestSuite) TestUpdateTicketAssignmentInCache() {
	_, err := s.manager.Tickets(context.Background(), false)
	s.Require().NoError(err)
	loadedAt := s.manager.tickets.LoadedAt()

	s.clock.Advance(time.Minute)

	err = s.manager.UpdateTicketAssignmentInCache("TCK-B", "scheduled", "Ben", "2024-03-05", "10:30")
	s.Require().NoError(err)

	cached := s.manager.GetCachedTickets()
	s.Equal("scheduled", cached[1].Status)
	s.Equal("Ben", cached[1].AssignedStaff)
	s.Equal("2024-03-05", cached[1].ScheduledDate)
	s.Equal("10:30", cached[1].ScheduledTime)
	s.Equal("pending", cached[0].Status)
	s.Equal(loadedAt, s.manager.tickets.LoadedAt())

	err = s.manager.UpdateTicketAssignmentInCache("TCK-Z", "scheduled", "Ben", "", "")
	s.ErrorIs(err, types.ErrTicketNotCached)
}

func (s *ManagerDataManagerTestSuite) TestUpdateOnEmptyCache() {
	err := s.manager.UpdateTicketAssignmentInCache("TCK-A", "scheduled", "Ben", "", "")
	s.ErrorIs(err, types.ErrTicketNotCached)
}

func TestManagerDataManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerDataManagerTestSuite))
}

func TestSlotRecoversFromPanickingFetch(t *testing.T) {
	slot := NewSlot(context.Background(), SlotConfig[int]{Kind: types.KindDashboard, TTL: time.Minute})

	_, err := slot.Get(context.Background(), false, func(context.Context) (int, error) {
		panic("bad payload")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrOperationFailed)
	assert.False(t, slot.Loading())
	assert.False(t, slot.Loaded())
}

func TestSlotSubscriberCancel(t *testing.T) {
	slot := NewSlot(context.Background(), SlotConfig[int]{Kind: types.KindDashboard, TTL: time.Minute})

	var calls atomic.Int32
	cancel := slot.Subscribe(func(int) { calls.Add(1) })

	_, err := slot.Get(context.Background(), true, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	cancel()
	cancel()

	_, err = slot.Get(context.Background(), true, func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, slot.Cached())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(types.CachePolicyConfig{TTL: time.Minute, InFlight: "join"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, opts.TTL)
	assert.Equal(t, types.InFlightJoin, opts.Policy)

	_, err = OptionsFromConfig(types.CachePolicyConfig{InFlight: "queue"}, nil, nil)
	assert.ErrorIs(t, err, types.ErrCachePolicyUnknown)
}

func TestSlotUpdateRunsOutsideLock(t *testing.T) {
	slot := NewSlot(context.Background(), SlotConfig[int]{Kind: types.KindDashboard, TTL: time.Minute})

	_, err := slot.Get(context.Background(), false, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	var calls int
	changed := slot.Update(func(v int) (int, bool) {
		calls++
		assert.Equal(t, v, slot.Cached())
		if calls == 1 {
			_, err := slot.Get(context.Background(), true, func(context.Context) (int, error) { return 10, nil })
			require.NoError(t, err)
		}
		return v + 1, true
	})

	assert.True(t, changed)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 11, slot.Cached())
}
