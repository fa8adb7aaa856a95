package metrics

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

// NewManager builds the configured metrics backend. Disabled metrics yield
// a NoopMetrics so callers never nil-check.
func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.MetricsManager, error) {
	metricsConfig := config.GetConfig().Metrics
	if metricsConfig == nil || !metricsConfig.Enabled {
		return NewNoopMetrics(), nil
	}

	var (
		manager types.MetricsManager
		err     error
	)

	switch metricsConfig.Type {
	case "", "prometheus":
		manager, err = NewPrometheusMetrics(ctx, logger, metricsConfig)
	case "noop":
		manager = NewNoopMetrics()
	default:
		creator, exists := customMetricsCreators.Load(metricsConfig.Type)
		if !exists {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsConfig.Type)
		}
		manager, err = creator.(types.MetricsManagerCreator)(metricsConfig)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	logger.Debug("Metrics manager initialized", zap.String("type", metricsConfig.Type))

	return manager, nil
}
