package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/types"
)

// Fetcher performs the remote load for one slot.
type Fetcher[T any] func(ctx context.Context) (T, error)

type SlotConfig[T any] struct {
	Kind    types.DataKind
	TTL     time.Duration
	Policy  types.InFlightPolicy
	Clock   types.Clock
	Logger  types.Logger
	Metrics types.MetricsManager
	// Clone returns an independent copy; nil means values are shared.
	Clone func(T) T
}

type waiter[T any] struct {
	ctx context.Context
	cb  types.Callback[T]
}

// flight is one running fetch and the callers waiting on it.
type flight[T any] struct {
	generation uint64
	waiters    []waiter[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Slot is one TTL-bounded cache entry with a single in-flight load.
type Slot[T any] struct {
	ctx     context.Context
	kind    types.DataKind
	ttl     time.Duration
	policy  types.InFlightPolicy
	clock   types.Clock
	logger  types.Logger
	metrics types.MetricsManager
	clone   func(T) T

	mu          sync.Mutex
	value       T
	loaded      bool
	loadedAt    time.Time
	flight      *flight[T]
	generation  uint64
	version     uint64
	subscribers []subscriber[T]
	nextSubID   uint64
}

// NewSlot binds the slot to ctx: every fetch runs on it, so a load outlives
// the caller that started it but not the owner of the slot.
func NewSlot[T any](ctx context.Context, config SlotConfig[T]) *Slot[T] {
	s := &Slot[T]{
		ctx:     ctx,
		kind:    config.Kind,
		ttl:     config.TTL,
		policy:  config.Policy,
		clock:   config.Clock,
		logger:  config.Logger,
		metrics: config.Metrics,
		clone:   config.Clone,
	}

	if s.clock == nil {
		s.clock = types.SystemClock
	}
	if s.policy == "" {
		s.policy = types.InFlightDrop
	}
	if s.clone == nil {
		s.clone = func(v T) T { return v }
	}
	if s.logger == nil {
		s.logger = logger.NewNopLogger()
	}

	return s
}

// Load answers cb from the cache when fresh, otherwise starts a fetch.
// It returns false only when the request was dropped because a load is
// already running under the drop policy; cb is never called in that case.
// A callback whose ctx is done by the time the result arrives is skipped.
func (s *Slot[T]) Load(ctx context.Context, force bool, fetch Fetcher[T], cb types.Callback[T]) bool {
	s.mu.Lock()

	if !force && s.freshLocked() {
		data := s.clone(s.value)
		s.mu.Unlock()

		s.logger.Debug("Returning cached data", zap.String("kind", string(s.kind)))
		s.recordMetric("hit")
		s.deliverSuccess(ctx, cb, data)
		return true
	}

	if s.flight != nil {
		if s.policy == types.InFlightJoin {
			s.flight.waiters = append(s.flight.waiters, waiter[T]{ctx: ctx, cb: cb})
			s.mu.Unlock()

			s.logger.Debug("Joined running load", zap.String("kind", string(s.kind)))
			s.recordMetric("joined")
			return true
		}
		s.mu.Unlock()

		s.logger.Debug("Already loading, skipping", zap.String("kind", string(s.kind)))
		s.recordMetric("dropped")
		return false
	}

	f := &flight[T]{generation: s.generation, waiters: []waiter[T]{{ctx: ctx, cb: cb}}}
	s.flight = f
	s.mu.Unlock()

	s.logger.Debug("Loading from API",
		zap.String("kind", string(s.kind)),
		zap.Bool("force", force))
	s.recordMetric("miss")

	go s.run(fetch, f)

	return true
}

// Get is the blocking form of Load. A dropped request yields
// types.ErrLoadInFlight.
func (s *Slot[T]) Get(ctx context.Context, force bool, fetch Fetcher[T]) (T, error) {
	type result struct {
		data T
		err  error
	}

	var zero T
	ch := make(chan result, 1)

	accepted := s.Load(ctx, force, fetch, types.CallbackFuncs[T]{
		Success: func(data T) { ch <- result{data: data} },
		Error:   func(err error) { ch <- result{err: err} },
	})
	if !accepted {
		return zero, types.Errorf(types.ErrLoadInFlight, "kind: %s", s.kind)
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Cached returns a copy of the stored value regardless of age, or the
// empty value when nothing is stored.
func (s *Slot[T]) Cached() T {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		var zero T
		return s.clone(zero)
	}
	return s.clone(s.value)
}

func (s *Slot[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Slot[T]) Fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freshLocked()
}

func (s *Slot[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flight != nil
}

func (s *Slot[T]) LoadedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedAt
}

// Clear drops the stored value and detaches a running load: that load
// still answers the callers it already has but stores nothing, and the
// next Load starts a new fetch.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	s.generation++
	s.version++
	s.flight = nil
	var zero T
	s.value = zero
	s.loaded = false
	s.loadedAt = time.Time{}
	s.mu.Unlock()

	s.logger.Debug("Cache cleared", zap.String("kind", string(s.kind)))
	s.recordMetric("clear")
}

// Update applies fn to a copy of the stored value outside the slot lock.
// When fn reports a change the copy replaces the stored value, subscribers
// are notified and the load timestamp is kept. If the value was replaced
// while fn ran, fn is applied again to the new value. Nothing happens when
// the slot is empty.
func (s *Slot[T]) Update(fn func(T) (T, bool)) bool {
	for {
		s.mu.Lock()
		if !s.loaded {
			s.mu.Unlock()
			return false
		}
		current := s.clone(s.value)
		version := s.version
		s.mu.Unlock()

		updated, changed := fn(current)
		if !changed {
			return false
		}

		s.mu.Lock()
		if s.version != version {
			s.mu.Unlock()
			continue
		}
		s.value = updated
		s.version++
		subscribers := s.snapshotSubscribersLocked()
		s.mu.Unlock()

		s.recordMetric("update")
		s.notify(subscribers, updated)

		return true
	}
}

// Subscribe registers fn to receive every value stored by a load or Update.
// Subscribers run before the callers of the load that produced the value.
func (s *Slot[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Slot[T]) run(fetch Fetcher[T], f *flight[T]) {
	start := s.clock.Now()
	data, err := s.safeFetch(fetch)

	s.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	if s.flight == f {
		s.flight = nil
	}

	if err != nil {
		s.mu.Unlock()

		s.logger.ErrorWithErrStack("Failed to load data", errors.WithStack(err),
			zap.String("kind", string(s.kind)))
		s.recordMetric("load_error")

		for _, w := range waiters {
			s.deliverError(w.ctx, w.cb, err)
		}
		return
	}

	if f.generation != s.generation {
		s.mu.Unlock()

		s.logger.Debug("Discarding load started before clear", zap.String("kind", string(s.kind)))
		s.recordMetric("discarded")

		for _, w := range waiters {
			s.deliverSuccess(w.ctx, w.cb, s.clone(data))
		}
		return
	}

	s.value = s.clone(data)
	s.version++
	s.loaded = true
	s.loadedAt = s.clock.Now()
	subscribers := s.snapshotSubscribersLocked()
	s.mu.Unlock()

	s.logger.Debug("Data loaded",
		zap.String("kind", string(s.kind)),
		zap.Duration("took", s.clock.Now().Sub(start)),
		zap.Int("callers", len(waiters)))
	s.recordMetric("load_success")

	s.notify(subscribers, data)
	for _, w := range waiters {
		s.deliverSuccess(w.ctx, w.cb, s.clone(data))
	}
}

func (s *Slot[T]) safeFetch(fetch Fetcher[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrOperationFailed, "load %s panicked: %v", s.kind, r)
		}
	}()

	if err = s.ctx.Err(); err != nil {
		return data, err
	}
	return fetch(s.ctx)
}

func (s *Slot[T]) deliverSuccess(ctx context.Context, cb types.Callback[T], data T) {
	if cb == nil || callerGone(ctx) {
		return
	}
	cb.OnSuccess(data)
}

func (s *Slot[T]) deliverError(ctx context.Context, cb types.Callback[T], err error) {
	if cb == nil || callerGone(ctx) {
		return
	}
	cb.OnError(err)
}

func (s *Slot[T]) notify(subscribers []subscriber[T], data T) {
	for _, sub := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Cache subscriber panicked",
						zap.String("kind", string(s.kind)),
						zap.String("panic", fmt.Sprint(r)))
				}
			}()
			sub.fn(s.clone(data))
		}()
	}
}

func (s *Slot[T]) snapshotSubscribersLocked() []subscriber[T] {
	if len(s.subscribers) == 0 {
		return nil
	}
	out := make([]subscriber[T], len(s.subscribers))
	copy(out, s.subscribers)
	return out
}

func (s *Slot[T]) freshLocked() bool {
	return s.loaded && s.clock.Now().Sub(s.loadedAt) < s.ttl
}

func (s *Slot[T]) recordMetric(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Counter("cache_operations_total", map[string]string{
		"kind":   string(s.kind),
		"result": result,
	}).Inc()
}

func callerGone(ctx context.Context) bool {
	return ctx != nil && ctx.Err() != nil
}

func cloneSlice[E any](in []E) []E {
	out := make([]E, len(in))
	copy(out, in)
	return out
}
