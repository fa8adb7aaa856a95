package notify

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateReconnecting
)

type WebSocketConfig struct {
	URL            string         `json:"url"`
	ReconnectDelay types.Duration `json:"reconnect_delay"`
	// MaxRetries bounds consecutive failed dials; 0 retries forever.
	MaxRetries   int            `json:"max_retries"`
	PingInterval types.Duration `json:"ping_interval"`
	PongWait     types.Duration `json:"pong_wait"`
	WriteWait    types.Duration `json:"write_wait"`
	DialTimeout  types.Duration `json:"dial_timeout"`
}

// subscribeFrame asks the server to push changes for one query.
type subscribeFrame struct {
	Action string       `json:"action"`
	ID     string       `json:"id"`
	Query  *types.Query `json:"query,omitempty"`
}

// WebSocketSource receives change messages over a single socket and
// re-subscribes every registration after a reconnect.
type WebSocketSource struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	metrics           types.MetricsManager
	config            *WebSocketConfig
	tokens            types.TokenSource
	registry          *registry
	conn              *websocket.Conn
	connMu            sync.RWMutex
	writeMu           sync.Mutex
	state             atomic.Value
	reconnectAttempts int32
	done              chan struct{}
}

func NewWebSocketSource(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config interface{}, tokens types.TokenSource) (*WebSocketSource, error) {
	wsConfig := &WebSocketConfig{
		URL:            "ws://localhost:8000/ws/tickets",
		ReconnectDelay: types.Duration(5 * time.Second),
		PingInterval:   types.Duration(54 * time.Second),
		PongWait:       types.Duration(60 * time.Second),
		WriteWait:      types.Duration(10 * time.Second),
		DialTimeout:    types.Duration(10 * time.Second),
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, wsConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal WebSocket config")
		}
	}

	if wsConfig.URL == "" {
		return nil, types.Errorf(types.ErrNotifyConfigInvalid, "websocket url is empty")
	}

	sourceCtx, cancel := context.WithCancel(ctx)

	source := &WebSocketSource{
		ctx:      sourceCtx,
		cancel:   cancel,
		logger:   logger,
		metrics:  metrics,
		config:   wsConfig,
		tokens:   tokens,
		registry: newRegistry(logger),
		done:     make(chan struct{}),
	}

	source.state.Store(StateStopped)

	logger.Info("WebSocket notification source initialized",
		zap.String("url", wsConfig.URL),
		zap.Duration("reconnect_delay", wsConfig.ReconnectDelay.Std()),
		zap.Int("max_retries", wsConfig.MaxRetries))

	return source, nil
}

// Start launches the connection loop. A server that is down is not an
// error here: failures reach subscribers while the loop keeps retrying.
func (w *WebSocketSource) Start() error {
	if !w.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	go w.run()

	w.logger.Info("WebSocket notification source started")
	return nil
}

func (w *WebSocketSource) Stop() error {
	if !w.transitionState(StateRunning, StateStopping) &&
		!w.transitionState(StateReconnecting, StateStopping) &&
		!w.transitionState(StateStarting, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer w.setState(StateStopped)

	w.cancel()
	w.closeConn()

	select {
	case <-w.done:
		w.logger.Info("WebSocket notification source stopped gracefully")
	case <-time.After(5 * time.Second):
		w.logger.Warn("WebSocket notification source stop timeout")
	}

	return nil
}

func (w *WebSocketSource) IsRunning() bool {
	state := w.getState()
	return state == StateStarting || state == StateRunning || state == StateReconnecting
}

// Connected reports whether a socket is currently open.
func (w *WebSocketSource) Connected() bool {
	w.connMu.RLock()
	defer w.connMu.RUnlock()
	return w.conn != nil
}

func (w *WebSocketSource) Listen(_ context.Context, query types.Query, handler types.SnapshotHandler) (types.Registration, error) {
	if err := validateListen(query, handler); err != nil {
		return nil, err
	}
	if !w.IsRunning() {
		return nil, types.ErrServiceIsNotRunning
	}

	sub := w.registry.add(query, handler)

	if err := w.writeFrame(subscribeFrame{Action: "subscribe", ID: sub.id, Query: &sub.query}); err != nil {
		// the subscription is sent again once the socket is back
		w.logger.Debug("Subscribe deferred until reconnect",
			zap.String("subscription", sub.id),
			zap.Error(err))
	}

	w.logger.Debug("Subscribed to changes",
		zap.String("subscription", sub.id),
		zap.String("collection", query.Collection),
		zap.String("field", query.Field))

	return &registration{remove: func() {
		if _, ok := w.registry.remove(sub.id); !ok {
			return
		}
		if err := w.writeFrame(subscribeFrame{Action: "unsubscribe", ID: sub.id}); err != nil {
			w.logger.Debug("Unsubscribe not sent", zap.String("subscription", sub.id), zap.Error(err))
		}
	}}, nil
}

func (w *WebSocketSource) run() {
	defer close(w.done)
	defer w.logger.Debug("Connection loop stopped")

	for {
		if w.ctx.Err() != nil {
			return
		}

		conn, err := w.connect()
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}

			attempt := atomic.AddInt32(&w.reconnectAttempts, 1)
			w.logger.Error("Connection attempt failed",
				zap.Int32("attempt", attempt),
				zap.Error(err))
			w.recordMetric("connect_error")
			w.registry.fail("", types.Errorf(types.ErrNotifyConnectionFailed, "%v", err))

			if w.config.MaxRetries > 0 && int(attempt) >= w.config.MaxRetries {
				w.logger.Error("Max reconnection attempts reached, giving up")
				return
			}
			if !w.wait(w.config.ReconnectDelay.Std()) {
				return
			}
			continue
		}

		atomic.StoreInt32(&w.reconnectAttempts, 0)
		if !w.transitionState(StateStarting, StateRunning) {
			w.transitionState(StateReconnecting, StateRunning)
		}
		w.recordMetric("connected")
		w.resubscribe()

		stopPing := w.startPing(conn)
		err = w.readPump(conn)
		stopPing()
		w.closeConn()

		if w.ctx.Err() != nil {
			return
		}

		w.transitionState(StateRunning, StateReconnecting)
		w.logger.Warn("WebSocket connection lost", zap.Error(err))
		w.recordMetric("disconnected")
		w.registry.fail("", types.Errorf(types.ErrNotifyConnectionFailed, "connection lost: %v", err))

		if !w.wait(w.config.ReconnectDelay.Std()) {
			return
		}
	}
}

func (w *WebSocketSource) connect() (*websocket.Conn, error) {
	w.logger.Debug("Attempting to connect to WebSocket server",
		zap.String("url", w.config.URL))

	dialCtx, cancel := context.WithTimeout(w.ctx, w.config.DialTimeout.Std())
	defer cancel()

	header := http.Header{}
	if w.tokens != nil {
		if token := strings.TrimPrefix(w.tokens.Token(), "Bearer "); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.config.URL, header)
	if err != nil {
		return nil, types.WrapError(err, "failed to dial WebSocket server")
	}

	_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))
		return nil
	})

	w.connMu.Lock()
	if w.ctx.Err() != nil {
		w.connMu.Unlock()
		_ = conn.Close()
		return nil, w.ctx.Err()
	}
	w.conn = conn
	w.connMu.Unlock()

	w.logger.Info("Connected to WebSocket server")
	return conn, nil
}

func (w *WebSocketSource) resubscribe() {
	for _, sub := range w.registry.snapshot() {
		if err := w.writeFrame(subscribeFrame{Action: "subscribe", ID: sub.id, Query: &sub.query}); err != nil {
			w.logger.Warn("Failed to resubscribe",
				zap.String("subscription", sub.id),
				zap.Error(err))
			return
		}
	}
}

func (w *WebSocketSource) readPump(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Debug("WebSocket connection closed", zap.Error(err))
			}
			return err
		}

		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))

		var msg Message
		if err := utils.Unmarshal(data, &msg); err != nil {
			w.logger.Error("Failed to unmarshal message", zap.Error(err))
			w.recordMetric("decode_error")
			continue
		}

		delivered := w.registry.dispatch(msg)
		w.recordMetric("message")

		w.logger.Debug("Change message received",
			zap.String("collection", msg.Collection),
			zap.Int("changes", len(msg.Changes)),
			zap.Int("delivered", delivered))
	}
}

func (w *WebSocketSource) startPing(conn *websocket.Conn) func() {
	interval := w.config.PingInterval.Std()
	if interval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(w.config.WriteWait.Std())
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					w.logger.Debug("Ping failed", zap.Error(err))
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func (w *WebSocketSource) writeFrame(frame subscribeFrame) error {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()

	if conn == nil {
		return types.ErrNotifyConnectionFailed
	}

	data, err := utils.Marshal(frame)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait.Std()))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocketSource) closeConn() {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Debug("Failed to close connection", zap.Error(err))
		}
		w.conn = nil
	}
}

func (w *WebSocketSource) wait(delay time.Duration) bool {
	select {
	case <-time.After(delay):
		return true
	case <-w.ctx.Done():
		return false
	}
}

func (w *WebSocketSource) recordMetric(event string) {
	if w.metrics == nil {
		return
	}
	w.metrics.Counter("notify_source_events_total", map[string]string{
		"source": "websocket",
		"event":  event,
	}).Inc()
}

func (w *WebSocketSource) getState() State {
	return w.state.Load().(State)
}

func (w *WebSocketSource) setState(newState State) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *WebSocketSource) transitionState(from, to State) bool {
	return w.state.CompareAndSwap(from, to)
}
