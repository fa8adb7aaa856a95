package notify

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
)

// LocalSource delivers messages published in-process. It backs tests and
// lets the CLI simulate server pushes.
type LocalSource struct {
	logger   types.Logger
	registry *registry
	running  int32
}

func NewLocalSource(logger types.Logger) *LocalSource {
	return &LocalSource{
		logger:   logger,
		registry: newRegistry(logger),
	}
}

func (s *LocalSource) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrServiceIsRunning
	}
	s.logger.Debug("Local notification source started")
	return nil
}

func (s *LocalSource) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrServiceIsNotRunning
	}
	s.logger.Debug("Local notification source stopped")
	return nil
}

func (s *LocalSource) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *LocalSource) Listen(_ context.Context, query types.Query, handler types.SnapshotHandler) (types.Registration, error) {
	if err := validateListen(query, handler); err != nil {
		return nil, err
	}
	if !s.IsRunning() {
		return nil, types.ErrServiceIsNotRunning
	}

	sub := s.registry.add(query, handler)

	return &registration{remove: func() {
		s.registry.remove(sub.id)
	}}, nil
}

// Publish delivers msg synchronously and returns how many subscriptions
// received a batch.
func (s *LocalSource) Publish(msg Message) int {
	if !s.IsRunning() {
		return 0
	}

	delivered := s.registry.dispatch(msg)
	s.logger.Debug("Local message published",
		zap.String("collection", msg.Collection),
		zap.Int("changes", len(msg.Changes)),
		zap.Int("delivered", delivered))
	return delivered
}

// Fail reports err to every subscription of collection.
func (s *LocalSource) Fail(collection string, err error) {
	s.registry.fail(collection, err)
}

func (s *LocalSource) Subscriptions() int {
	return s.registry.len()
}

func validateListen(query types.Query, handler types.SnapshotHandler) error {
	if handler == nil {
		return types.Errorf(types.ErrNotifyConfigInvalid, "handler is nil")
	}
	if query.Collection == "" {
		return types.Errorf(types.ErrNotifyConfigInvalid, "collection is empty")
	}
	if query.Field != "" && query.Value == "" {
		return types.Errorf(types.ErrNotifyFilterEmpty, "field %s", query.Field)
	}
	return nil
}
