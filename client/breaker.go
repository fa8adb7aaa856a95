package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
)

type CircuitBreakerState int32

const (
	StateBreakerClosed CircuitBreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateBreakerClosed:
		return "closed"
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker short-circuits calls after FailureThreshold consecutive
// failures until RecoveryTimeout passes. A nil or disabled breaker always
// lets calls through.
type CircuitBreaker struct {
	config    *types.CircuitBreakerConfig
	logger    types.Logger
	clock     types.Clock
	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int
	successes int
	lastFail  time.Time
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, clock types.Clock) *CircuitBreaker {
	if config == nil || !config.Enabled {
		return nil
	}

	cfg := *config
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = types.SystemClock
	}

	return &CircuitBreaker{
		config: &cfg,
		logger: logger,
		clock:  clock,
		state:  StateBreakerClosed,
	}
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateBreakerOpen:
		if cb.clock.Now().Sub(cb.lastFail) >= cb.config.RecoveryTimeout {
			cb.transition(StateBreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures = 0
	case StateBreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenRequests {
			cb.transition(StateBreakerClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFail = cb.clock.Now()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateBreakerOpen)
		}
	case StateBreakerHalfOpen:
		cb.transition(StateBreakerOpen)
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	if cb == nil {
		return StateBreakerClosed
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateBreakerClosed)
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	if to == StateBreakerClosed {
		cb.failures = 0
	}

	cb.logger.Info("Circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", cb.failures))
}
