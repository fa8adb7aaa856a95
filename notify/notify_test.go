package notify

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

	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/types"
)

const waitTimeout = 3 * time.Second

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]types.ChangeEvent
	errs    []error
	signal  chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{signal: make(chan struct{}, 64)}
}

func (r *batchRecorder) handler(changes []types.ChangeEvent, err error) {
	r.mu.Lock()
	if err != nil {
		r.errs = append(r.errs, err)
	} else {
		r.batches = append(r.batches, changes)
	}
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *batchRecorder) counts() (batches, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches), len(r.errs)
}

func (r *batchRecorder) lastBatch() []types.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func ticketChange(typ types.ChangeType, id, field, value string) Change {
	return Change{
		Type:       typ,
		DocumentID: id,
		TicketID:   id,
		Fields:     map[string]interface{}{field: value},
	}
}

func TestChangeMatches(t *testing.T) {
	change := Change{Fields: map[string]interface{}{"assignedTo": 7, "branch": "North"}}

	assert.True(t, change.Matches(types.Query{Collection: "tickets"}))
	assert.True(t, change.Matches(types.Query{Field: "assignedTo", Value: "7"}))
	assert.True(t, change.Matches(types.Query{Field: "branch", Value: "North"}))
	assert.False(t, change.Matches(types.Query{Field: "branch", Value: "South"}))
	assert.False(t, change.Matches(types.Query{Field: "customerId", Value: "7"}))
}

func TestRegistryDispatchFiltersPerSubscription(t *testing.T) {
	reg := newRegistry(logger.NewNopLogger())
	north, south, other := newBatchRecorder(), newBatchRecorder(), newBatchRecorder()

	reg.add(types.Query{Collection: "tickets", Field: "branch", Value: "North"}, north.handler)
	reg.add(types.Query{Collection: "tickets", Field: "branch", Value: "South"}, south.handler)
	reg.add(types.Query{Collection: "payments"}, other.handler)

	delivered := reg.dispatch(Message{
		Collection: "tickets",
		Changes: []Change{
			ticketChange(types.ChangeAdded, "TCK-1", "branch", "North"),
			ticketChange(types.ChangeModified, "TCK-2", "branch", "North"),
		},
	})

	assert.Equal(t, 1, delivered)
	require.Len(t, north.lastBatch(), 2)
	assert.Equal(t, "TCK-1", north.lastBatch()[0].TicketID)
	assert.Equal(t, types.ChangeModified, north.lastBatch()[1].Type)

	southBatches, _ := south.counts()
	otherBatches, _ := other.counts()
	assert.Zero(t, southBatches)
	assert.Zero(t, otherBatches)
}

func TestRegistryFailScopesByCollection(t *testing.T) {
	reg := newRegistry(logger.NewNopLogger())
	tickets, payments := newBatchRecorder(), newBatchRecorder()

	reg.add(types.Query{Collection: "tickets"}, tickets.handler)
	reg.add(types.Query{Collection: "payments"}, payments.handler)

	reg.fail("tickets", errors.New("boom"))
	_, ticketErrs := tickets.counts()
	_, paymentErrs := payments.counts()
	assert.Equal(t, 1, ticketErrs)
	assert.Zero(t, paymentErrs)

	reg.fail("", errors.New("down"))
	_, ticketErrs = tickets.counts()
	_, paymentErrs = payments.counts()
	assert.Equal(t, 2, ticketErrs)
	assert.Equal(t, 1, paymentErrs)
}

func TestRegistryRecoversHandlerPanic(t *testing.T) {
	reg := newRegistry(logger.NewNopLogger())
	calm := newBatchRecorder()

	reg.add(types.Query{Collection: "tickets"}, func([]types.ChangeEvent, error) { panic("handler bug") })
	reg.add(types.Query{Collection: "tickets"}, calm.handler)

	assert.NotPanics(t, func() {
		reg.dispatch(Message{Collection: "tickets", Changes: []Change{{Type: types.ChangeAdded, DocumentID: "d"}}})
	})

	batches, _ := calm.counts()
	assert.Equal(t, 1, batches)
}

func TestLocalSourceListenValidation(t *testing.T) {
	source := NewLocalSource(logger.NewNopLogger())
	rec := newBatchRecorder()

	_, err := source.Listen(context.Background(), types.Query{Collection: "tickets"}, rec.handler)
	assert.ErrorIs(t, err, types.ErrServiceIsNotRunning)

	require.NoError(t, source.Start())
	defer source.Stop()

	_, err = source.Listen(context.Background(), types.Query{Collection: "tickets"}, nil)
	assert.ErrorIs(t, err, types.ErrNotifyConfigInvalid)

	_, err = source.Listen(context.Background(), types.Query{}, rec.handler)
	assert.ErrorIs(t, err, types.ErrNotifyConfigInvalid)

	_, err = source.Listen(context.Background(), types.Query{Collection: "tickets", Field: "branch"}, rec.handler)
	assert.ErrorIs(t, err, types.ErrNotifyFilterEmpty)
}

func TestLocalSourceRemoveStopsDelivery(t *testing.T) {
	source := NewLocalSource(logger.NewNopLogger())
	require.NoError(t, source.Start())
	defer source.Stop()

	rec := newBatchRecorder()
	reg, err := source.Listen(context.Background(), types.Query{Collection: "tickets"}, rec.handler)
	require.NoError(t, err)
	assert.Equal(t, 1, source.Subscriptions())

	msg := Message{Collection: "tickets", Changes: []Change{{Type: types.ChangeAdded, DocumentID: "a"}}}
	assert.Equal(t, 1, source.Publish(msg))

	reg.Remove()
	reg.Remove()
	assert.Zero(t, source.Subscriptions())
	assert.Zero(t, source.Publish(msg))

	batches, _ := rec.counts()
	assert.Equal(t, 1, batches)
}

func TestNewSource(t *testing.T) {
	log := logger.NewNopLogger()

	source, err := NewSource(context.Background(), log, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalSource{}, source)

	source, err = NewSource(context.Background(), log, nil, &types.NotifyConfig{Enabled: true, Type: "polling"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PollingSource{}, source)

	source, err = NewSource(context.Background(), log, nil, &types.NotifyConfig{
		Enabled: true,
		Type:    "websocket",
		Config:  map[string]interface{}{"url": "ws://example.invalid/ws"},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &WebSocketSource{}, source)

	_, err = NewSource(context.Background(), log, nil, &types.NotifyConfig{Enabled: true, Type: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, types.ErrNotifyTypeUnknown)

	custom := NewLocalSource(log)
	RegisterSource("custom-test", func(interface{}) (types.NotificationSource, error) { return custom, nil })
	source, err = NewSource(context.Background(), log, nil, &types.NotifyConfig{Enabled: true, Type: "custom-test"}, nil)
	require.NoError(t, err)
	assert.Same(t, custom, source)
}

func TestCollectionOf(t *testing.T) {
	assert.Equal(t, "tickets", CollectionOf(nil))
	assert.Equal(t, "tickets", CollectionOf(&types.NotifyConfig{}))
	assert.Equal(t, "jobs", CollectionOf(&types.NotifyConfig{Collection: "jobs"}))
}

type stateRecorder struct {
	connected    atomic.Int32
	disconnected atomic.Int32
	errors       atomic.Int32
}

func (s *stateRecorder) OnConnected()      { s.connected.Add(1) }
func (s *stateRecorder) OnDisconnected()   { s.disconnected.Add(1) }
func (s *stateRecorder) OnError(err error) { s.errors.Add(1) }

type ListenerTestSuite struct {
	suite.Suite
	source *LocalSource
	opts   ListenerOptions
}

func TestListenerTestSuite(t *testing.T) {
	suite.Run(t, new(ListenerTestSuite))
}

func (s *ListenerTestSuite) SetupTest() {
	s.source = NewLocalSource(logger.NewNopLogger())
	s.Require().NoError(s.source.Start())
	s.opts = ListenerOptions{Source: s.source, Logger: logger.NewNopLogger()}
}

func (s *ListenerTestSuite) TearDownTest() {
	_ = s.source.Stop()
}

func (s *ListenerTestSuite) publish(changes ...Change) {
	s.source.Publish(Message{Collection: DefaultCollection, Changes: changes})
}

func (s *ListenerTestSuite) TestEmptyFilterValueIsNoop() {
	var calls atomic.Int32
	l := NewListener("test", s.opts, "branch", func() string { return "" }, func(context.Context, []types.ChangeEvent) {
		calls.Add(1)
	})

	s.NoError(l.StartListening(context.Background()))
	s.False(l.IsListening())
	s.Zero(s.source.Subscriptions())
}

func (s *ListenerTestSuite) TestStartIsIdempotentAndFilters() {
	var calls atomic.Int32
	l := NewListener("test", s.opts, "branch", func() string { return "North" }, func(context.Context, []types.ChangeEvent) {
		calls.Add(1)
	})

	s.Require().NoError(l.StartListening(context.Background()))
	s.Require().NoError(l.StartListening(context.Background()))
	s.True(l.IsListening())
	s.Equal(1, s.source.Subscriptions())

	s.publish(ticketChange(types.ChangeAdded, "TCK-1", "branch", "South"))
	s.Zero(calls.Load())

	s.publish(ticketChange(types.ChangeAdded, "TCK-2", "branch", "North"))
	s.Equal(int32(1), calls.Load())
}

func (s *ListenerTestSuite) TestErrorsKeepListening() {
	state := &stateRecorder{}
	var calls atomic.Int32
	l := NewListener("test", s.opts, "branch", func() string { return "North" }, func(context.Context, []types.ChangeEvent) {
		calls.Add(1)
	})
	l.SetConnectionStateListener(state)

	s.Require().NoError(l.StartListening(context.Background()))
	s.Equal(int32(1), state.connected.Load())

	s.source.Fail(DefaultCollection, types.ErrNotifyConnectionFailed)
	s.Equal(int32(1), state.errors.Load())
	s.True(l.IsListening())

	s.publish(ticketChange(types.ChangeModified, "TCK-1", "branch", "North"))
	s.Equal(int32(1), calls.Load())
}

func (s *ListenerTestSuite) TestStopListening() {
	state := &stateRecorder{}
	var calls atomic.Int32
	l := NewListener("test", s.opts, "branch", func() string { return "North" }, func(context.Context, []types.ChangeEvent) {
		calls.Add(1)
	})
	l.SetConnectionStateListener(state)

	l.StopListening()
	s.Zero(state.disconnected.Load())

	s.Require().NoError(l.StartListening(context.Background()))
	l.StopListening()
	l.StopListening()

	s.False(l.IsListening())
	s.Zero(s.source.Subscriptions())
	s.Equal(int32(1), state.disconnected.Load())

	s.publish(ticketChange(types.ChangeAdded, "TCK-1", "branch", "North"))
	s.Zero(calls.Load())

	s.Require().NoError(l.StartListening(context.Background()))
	s.True(l.IsListening())
}

func (s *ListenerTestSuite) TestListenFailureReportsError() {
	state := &stateRecorder{}
	s.Require().NoError(s.source.Stop())

	l := NewListener("test", s.opts, "branch", func() string { return "North" }, func(context.Context, []types.ChangeEvent) {})
	l.SetConnectionStateListener(state)

	err := l.StartListening(context.Background())
	s.ErrorIs(err, types.ErrServiceIsNotRunning)
	s.False(l.IsListening())
	s.Equal(int32(1), state.errors.Load())

	s.Require().NoError(s.source.Start())
}

func (s *ListenerTestSuite) TestReactionPanicIsContained() {
	var calls atomic.Int32
	l := NewListener("test", s.opts, "branch", func() string { return "North" }, func(context.Context, []types.ChangeEvent) {
		if calls.Add(1) == 1 {
			panic("reaction bug")
		}
	})
	s.Require().NoError(l.StartListening(context.Background()))

	s.NotPanics(func() {
		s.publish(ticketChange(types.ChangeAdded, "TCK-1", "branch", "North"))
	})
	s.publish(ticketChange(types.ChangeAdded, "TCK-2", "branch", "North"))
	s.Equal(int32(2), calls.Load())
}

type fakeIdentity struct {
	session types.Session
}

func (f fakeIdentity) Current() types.Session { return f.session }

type fakeManagerCache struct {
	branch   string
	refreshs atomic.Int32
}

func (f *fakeManagerCache) GetCachedBranchName() string { return f.branch }

func (f *fakeManagerCache) RefreshTickets(context.Context) bool {
	f.refreshs.Add(1)
	return true
}

type fakeEmployeeCache struct {
	mu             sync.Mutex
	schedule       []types.ScheduledTicket
	scheduleClears int
	ticketClears   int
	ticketLoads    int
	forced         []bool
}

func (f *fakeEmployeeCache) ClearScheduleCache() {
	f.mu.Lock()
	f.scheduleClears++
	f.mu.Unlock()
}

func (f *fakeEmployeeCache) LoadSchedule(_ context.Context, force bool, cb types.Callback[[]types.ScheduledTicket]) bool {
	f.mu.Lock()
	f.forced = append(f.forced, force)
	schedule := f.schedule
	f.mu.Unlock()
	if cb != nil {
		cb.OnSuccess(schedule)
	}
	return true
}

func (f *fakeEmployeeCache) ClearTicketCache() {
	f.mu.Lock()
	f.ticketClears++
	f.mu.Unlock()
}

func (f *fakeEmployeeCache) LoadTickets(_ context.Context, force bool, _ types.Callback[[]types.Ticket]) bool {
	f.mu.Lock()
	f.ticketLoads++
	f.forced = append(f.forced, force)
	f.mu.Unlock()
	return true
}

type scheduleHandler struct {
	schedules [][]types.ScheduledTicket
	errs      []error
}

func (h *scheduleHandler) OnScheduleChanged(schedule []types.ScheduledTicket) {
	h.schedules = append(h.schedules, schedule)
}

func (h *scheduleHandler) OnError(err error) { h.errs = append(h.errs, err) }

type ticketHandler struct {
	assigned []string
	updated  []string
	removed  []string
	statuses map[string]string
}

func newTicketHandler() *ticketHandler {
	return &ticketHandler{statuses: make(map[string]string)}
}

func (h *ticketHandler) OnTicketAssigned(e types.ChangeEvent) { h.assigned = append(h.assigned, e.TicketID) }
func (h *ticketHandler) OnTicketUpdated(e types.ChangeEvent)  { h.updated = append(h.updated, e.TicketID) }
func (h *ticketHandler) OnTicketRemoved(e types.ChangeEvent)  { h.removed = append(h.removed, e.TicketID) }
func (h *ticketHandler) OnTicketStatusChanged(ticketID, status string) {
	h.statuses[ticketID] = status
}

func (s *ListenerTestSuite) TestManagerListenerRefreshesTickets() {
	cache := &fakeManagerCache{branch: "North"}
	l := NewManagerListener(s.opts, cache, fakeIdentity{})

	s.Require().NoError(l.StartListening(context.Background()))
	s.publish(ticketChange(types.ChangeModified, "TCK-1", "branch", "North"))

	s.Equal(int32(1), cache.refreshs.Load())
}

func (s *ListenerTestSuite) TestManagerListenerFallsBackToSessionBranch() {
	cache := &fakeManagerCache{branch: types.NoBranchAssigned}
	l := NewManagerListener(s.opts, cache, fakeIdentity{session: types.Session{Branch: "South"}})

	s.Require().NoError(l.StartListening(context.Background()))
	s.publish(ticketChange(types.ChangeModified, "TCK-1", "branch", types.NoBranchAssigned))
	s.Zero(cache.refreshs.Load())

	s.publish(ticketChange(types.ChangeModified, "TCK-2", "branch", "South"))
	s.Equal(int32(1), cache.refreshs.Load())
}

func (s *ListenerTestSuite) TestManagerListenerWithoutBranchDoesNotListen() {
	cache := &fakeManagerCache{branch: types.NoBranchAssigned}
	l := NewManagerListener(s.opts, cache, fakeIdentity{})

	s.NoError(l.StartListening(context.Background()))
	s.False(l.IsListening())
}

func (s *ListenerTestSuite) TestEmployeeScheduleListenerReloads() {
	cache := &fakeEmployeeCache{schedule: []types.ScheduledTicket{{TicketID: "TCK-1", ScheduledDate: "2024-03-05"}}}
	handler := &scheduleHandler{}
	l := NewEmployeeScheduleListener(s.opts, cache, fakeIdentity{session: types.Session{Name: "Ana Cruz"}}, handler)

	s.Require().NoError(l.StartListening(context.Background()))
	s.publish(ticketChange(types.ChangeModified, "TCK-1", "assigned_staff", "Ana Cruz"))

	s.Equal(1, cache.scheduleClears)
	s.Equal([]bool{true}, cache.forced)
	s.Require().Len(handler.schedules, 1)
	s.Equal("TCK-1", handler.schedules[0][0].TicketID)
}

func (s *ListenerTestSuite) TestEmployeeTicketListenerDispatchesHooks() {
	cache := &fakeEmployeeCache{}
	handler := newTicketHandler()
	l := NewEmployeeTicketListener(s.opts, cache, fakeIdentity{session: types.Session{UserID: 42}}, handler)

	s.Require().NoError(l.StartListening(context.Background()))

	added := ticketChange(types.ChangeAdded, "TCK-1", "assignedTo", "42")
	modified := ticketChange(types.ChangeModified, "TCK-2", "assignedTo", "42")
	modified.Status = "in_progress"
	removed := ticketChange(types.ChangeRemoved, "TCK-3", "assignedTo", "42")
	s.publish(added, modified, removed)

	s.Equal([]string{"TCK-1"}, handler.assigned)
	s.Equal([]string{"TCK-2"}, handler.updated)
	s.Equal([]string{"TCK-3"}, handler.removed)
	s.Equal(map[string]string{"TCK-2": "in_progress"}, handler.statuses)
	s.Equal(1, cache.ticketClears)
	s.Equal(1, cache.ticketLoads)
}

func (s *ListenerTestSuite) TestEmployeeTicketListenerNeedsUserID() {
	l := NewEmployeeTicketListener(s.opts, &fakeEmployeeCache{}, fakeIdentity{}, nil)

	s.NoError(l.StartListening(context.Background()))
	s.False(l.IsListening())
}

func (s *ListenerTestSuite) TestCustomerTicketListener() {
	handler := newTicketHandler()
	l := NewCustomerTicketListener(s.opts, fakeIdentity{session: types.Session{UserID: 9}}, handler)

	s.Require().NoError(l.StartListening(context.Background()))
	s.publish(ticketChange(types.ChangeAdded, "TCK-9", "customerId", "9"))
	s.publish(ticketChange(types.ChangeAdded, "TCK-10", "customerId", "10"))

	s.Equal([]string{"TCK-9"}, handler.assigned)
}
