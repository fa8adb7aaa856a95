package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

type RedisConfig struct {
	Host               string         `json:"host"`
	Port               int            `json:"port"`
	Password           string         `json:"password"`
	DB                 int            `json:"db"`
	PoolSize           int            `json:"pool_size"`
	MinIdleConnections int            `json:"min_idle_connections"`
	DialTimeout        types.Duration `json:"dial_timeout"`
	ReadTimeout        types.Duration `json:"read_timeout"`
	WriteTimeout       types.Duration `json:"write_timeout"`
	KeyPrefix          string         `json:"key_prefix"`
}

// RedisSource receives change messages from Pub/Sub channels named
// "<key_prefix>:<collection>".
type RedisSource struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	metrics  types.MetricsManager
	config   *RedisConfig
	client   *redis.Client
	pubsub   *redis.PubSub
	registry *registry
	subMu    sync.Mutex
	started  int32
	done     chan struct{}
}

func NewRedisSource(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config interface{}) (*RedisSource, error) {
	var redisConfig = &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        types.Duration(5 * time.Second),
		ReadTimeout:        types.Duration(3 * time.Second),
		WriteTimeout:       types.Duration(3 * time.Second),
		KeyPrefix:          "servicehub",
	}

	if config != nil {
		err := utils.UnmarshalConfig(config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis source config")
		}
	}

	sourceCtx, cancel := context.WithCancel(ctx)

	source := &RedisSource{
		ctx:      sourceCtx,
		cancel:   cancel,
		logger:   logger,
		metrics:  metrics,
		config:   redisConfig,
		registry: newRegistry(logger),
		done:     make(chan struct{}),
	}

	source.initRedisClient()

	return source, nil
}

// Start checks the server is reachable and starts the receive loop.
func (r *RedisSource) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServiceIsRunning
	}

	if err := r.ping(); err != nil {
		atomic.StoreInt32(&r.started, 0)
		return types.Errorf(types.ErrNotifyConnectionFailed, "redis %s: %v", r.addr(), err)
	}

	r.subMu.Lock()
	r.pubsub = r.client.Subscribe(r.ctx)
	channel := r.pubsub.Channel()
	r.subMu.Unlock()

	go r.receive(channel)

	r.logger.Info("Redis notification source started",
		zap.String("addr", r.addr()),
		zap.String("prefix", r.config.KeyPrefix))

	return nil
}

func (r *RedisSource) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServiceIsNotRunning
	}

	r.cancel()

	r.subMu.Lock()
	if r.pubsub != nil {
		if err := r.pubsub.Close(); err != nil {
			r.logger.Error("Failed to close redis subscription", zap.Error(err))
		}
	}
	r.subMu.Unlock()

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		r.logger.Warn("Redis receive loop shutdown timeout")
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis notification source stopped")
	return nil
}

func (r *RedisSource) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisSource) Listen(ctx context.Context, query types.Query, handler types.SnapshotHandler) (types.Registration, error) {
	if err := validateListen(query, handler); err != nil {
		return nil, err
	}
	if !r.IsRunning() {
		return nil, types.ErrServiceIsNotRunning
	}

	channel := r.ChannelName(query.Collection)

	r.subMu.Lock()
	first := r.registry.countCollection(query.Collection) == 0
	sub := r.registry.add(query, handler)
	if first {
		if err := r.pubsub.Subscribe(ctx, channel); err != nil {
			r.registry.remove(sub.id)
			r.subMu.Unlock()
			return nil, types.Errorf(types.ErrNotifyConnectionFailed, "subscribe %s: %v", channel, err)
		}
	}
	r.subMu.Unlock()

	r.logger.Debug("Subscribed to redis channel",
		zap.String("channel", channel),
		zap.String("field", query.Field))

	return &registration{remove: func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()

		if _, ok := r.registry.remove(sub.id); !ok {
			return
		}
		if r.registry.countCollection(query.Collection) > 0 || !r.IsRunning() {
			return
		}
		if err := r.pubsub.Unsubscribe(r.ctx, channel); err != nil {
			r.logger.Debug("Failed to unsubscribe redis channel", zap.String("channel", channel), zap.Error(err))
		}
	}}, nil
}

func (r *RedisSource) ChannelName(collection string) string {
	if r.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:%s", r.config.KeyPrefix, collection)
	}
	return collection
}

func (r *RedisSource) receive(channel <-chan *redis.Message) {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			return
		case m, ok := <-channel:
			if !ok {
				return
			}
			r.handleMessage(m.Channel, []byte(m.Payload))
		}
	}
}

func (r *RedisSource) handleMessage(channel string, payload []byte) {
	collection := r.collectionOf(channel)

	var msg Message
	if err := utils.Unmarshal(payload, &msg); err != nil {
		r.logger.Error("Failed to unmarshal redis message",
			zap.String("channel", channel),
			zap.Error(err))
		r.recordMetric("decode_error")
		r.registry.fail(collection, types.Errorf(types.ErrNotifyConnectionFailed, "malformed message on %s", channel))
		return
	}

	if msg.Collection == "" {
		msg.Collection = collection
	}

	delivered := r.registry.dispatch(msg)
	r.recordMetric("message")

	r.logger.Debug("Change message received",
		zap.String("channel", channel),
		zap.Int("changes", len(msg.Changes)),
		zap.Int("delivered", delivered))
}

func (r *RedisSource) collectionOf(channel string) string {
	if r.config.KeyPrefix == "" {
		return channel
	}
	prefix := r.config.KeyPrefix + ":"
	if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
		return channel[len(prefix):]
	}
	return channel
}

func (r *RedisSource) initRedisClient() {
	r.client = redis.NewClient(&redis.Options{
		Addr:         r.addr(),
		Password:     r.config.Password,
		DB:           r.config.DB,
		PoolSize:     r.config.PoolSize,
		MinIdleConns: r.config.MinIdleConnections,
		DialTimeout:  r.config.DialTimeout.Std(),
		ReadTimeout:  r.config.ReadTimeout.Std(),
		WriteTimeout: r.config.WriteTimeout.Std(),
	})
}

func (r *RedisSource) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisSource) addr() string {
	return fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)
}

func (r *RedisSource) recordMetric(event string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Counter("notify_source_events_total", map[string]string{
		"source": "redis",
		"event":  event,
	}).Inc()
}
