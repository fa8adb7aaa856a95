package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/types"
)

// ChangeFunc reacts to one non-empty batch of changes.
type ChangeFunc func(ctx context.Context, changes []types.ChangeEvent)

type ListenerOptions struct {
	Source     types.NotificationSource
	Collection string
	Logger     types.Logger
	Metrics    types.MetricsManager
}

func (o ListenerOptions) withDefaults() ListenerOptions {
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	return o
}

// Listener bridges one filtered query of a notification source to a
// reaction. The filter value is resolved when listening starts.
type Listener struct {
	name       string
	source     types.NotificationSource
	logger     types.Logger
	metrics    types.MetricsManager
	collection string
	field      string
	resolve    func() string
	onChange   ChangeFunc

	mu     sync.Mutex
	reg    types.Registration
	cancel context.CancelFunc

	stateMu sync.RWMutex
	state   types.ConnectionStateListener
}

func NewListener(name string, opts ListenerOptions, field string, resolve func() string, onChange ChangeFunc) *Listener {
	opts = opts.withDefaults()

	return &Listener{
		name:       name,
		source:     opts.Source,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		collection: opts.Collection,
		field:      field,
		resolve:    resolve,
		onChange:   onChange,
	}
}

func (l *Listener) SetConnectionStateListener(state types.ConnectionStateListener) {
	l.stateMu.Lock()
	l.state = state
	l.stateMu.Unlock()
}

// StartListening registers with the source. Calling it while listening is
// a no-op, and so is starting without a filter value.
func (l *Listener) StartListening(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reg != nil {
		return nil
	}

	value := l.resolve()
	if value == "" {
		l.logger.Warn("Filter value is empty, not listening",
			zap.String("listener", l.name),
			zap.String("field", l.field))
		return nil
	}

	listenCtx, cancel := context.WithCancel(ctx)
	query := types.Query{Collection: l.collection, Field: l.field, Value: value}

	reg, err := l.source.Listen(listenCtx, query, func(changes []types.ChangeEvent, err error) {
		l.handle(listenCtx, changes, err)
	})
	if err != nil {
		cancel()
		l.logger.Error("Failed to start listening",
			zap.String("listener", l.name),
			zap.Error(err))
		if state := l.stateListener(); state != nil {
			state.OnError(err)
		}
		return types.WrapError(err, "listener "+l.name)
	}

	l.reg = reg
	l.cancel = cancel

	l.logger.Info("Listening for changes",
		zap.String("listener", l.name),
		zap.String("collection", l.collection),
		zap.String("field", l.field),
		zap.String("value", value))

	if state := l.stateListener(); state != nil {
		state.OnConnected()
	}
	return nil
}

func (l *Listener) StopListening() {
	l.mu.Lock()
	reg, cancel := l.reg, l.cancel
	l.reg, l.cancel = nil, nil
	l.mu.Unlock()

	if reg == nil {
		return
	}

	reg.Remove()
	cancel()

	l.logger.Info("Stopped listening", zap.String("listener", l.name))

	if state := l.stateListener(); state != nil {
		state.OnDisconnected()
	}
}

func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reg != nil
}

func (l *Listener) handle(ctx context.Context, changes []types.ChangeEvent, err error) {
	if err != nil {
		l.logger.Error("Listener error",
			zap.String("listener", l.name),
			zap.Error(err))
		l.count("notify_errors_total")
		if state := l.stateListener(); state != nil {
			state.OnError(err)
		}
		return
	}

	if len(changes) == 0 || ctx.Err() != nil {
		return
	}

	l.count("notify_events_total")
	l.logger.Debug("Changes received",
		zap.String("listener", l.name),
		zap.Int("changes", len(changes)))

	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("Change reaction panicked",
				zap.String("listener", l.name),
				zap.Any("panic", rec))
		}
	}()

	l.onChange(ctx, changes)
}

func (l *Listener) stateListener() types.ConnectionStateListener {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

func (l *Listener) count(name string) {
	if l.metrics == nil {
		return
	}
	l.metrics.Counter(name, map[string]string{"listener": l.name}).Inc()
}
