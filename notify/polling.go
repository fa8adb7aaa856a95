package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

type PollingConfig struct {
	// Schedule is a cron expression with a seconds field, or a descriptor such
	// as "@every 30s".
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone"`
}

// PollingSource has no server push: every registration receives a
// synthetic "modified" change on a schedule.
type PollingSource struct {
	logger   types.Logger
	metrics  types.MetricsManager
	config   *PollingConfig
	cron     *cron.Cron
	registry *registry
	running  int32
}

func NewPollingSource(logger types.Logger, metrics types.MetricsManager, config interface{}) (*PollingSource, error) {
	pollConfig := &PollingConfig{
		Schedule: "@every 30s",
		Timezone: "UTC",
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, pollConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal polling config")
		}
	}

	timezone, err := time.LoadLocation(pollConfig.Timezone)
	if err != nil {
		timezone = time.UTC
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(pollConfig.Schedule); err != nil {
		return nil, types.Errorf(types.ErrNotifyConfigInvalid, "polling schedule %q: %v", pollConfig.Schedule, err)
	}

	cronL := cronLogger{logger: logger}

	return &PollingSource{
		logger:  logger,
		metrics: metrics,
		config:  pollConfig,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronL)),
		),
		registry: newRegistry(logger),
	}, nil
}

func (p *PollingSource) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrServiceIsRunning
	}

	p.cron.Start()

	p.logger.Info("Polling notification source started", zap.String("schedule", p.config.Schedule))
	return nil
}

func (p *PollingSource) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrServiceIsNotRunning
	}

	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
		p.logger.Info("Polling notification source stopped gracefully")
	case <-time.After(10 * time.Second):
		p.logger.Warn("Polling notification source stop timeout")
	}

	return nil
}

func (p *PollingSource) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PollingSource) Listen(_ context.Context, query types.Query, handler types.SnapshotHandler) (types.Registration, error) {
	if err := validateListen(query, handler); err != nil {
		return nil, err
	}
	if !p.IsRunning() {
		return nil, types.ErrServiceIsNotRunning
	}

	sub := p.registry.add(query, handler)

	entryID, err := p.cron.AddFunc(p.config.Schedule, func() {
		p.tick(sub)
	})
	if err != nil {
		p.registry.remove(sub.id)
		return nil, types.Errorf(types.ErrNotifyConfigInvalid, "schedule poll: %v", err)
	}

	p.logger.Debug("Polling registered",
		zap.String("subscription", sub.id),
		zap.String("collection", query.Collection),
		zap.Int("entry_id", int(entryID)))

	return &registration{remove: func() {
		p.cron.Remove(entryID)
		p.registry.remove(sub.id)
	}}, nil
}

func (p *PollingSource) tick(sub *subscription) {
	p.registry.call(sub, []types.ChangeEvent{{
		Type:       types.ChangeModified,
		DocumentID: fmt.Sprintf("poll:%s", sub.query.Collection),
	}}, nil)

	if p.metrics != nil {
		p.metrics.Counter("notify_source_events_total", map[string]string{
			"source": "polling",
			"event":  "tick",
		}).Inc()
	}
}

type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(toFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
