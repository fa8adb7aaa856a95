package notify

import (
	"context"

	"github.com/saiset-co/servicehub-client/types"
)

const DefaultCollection = "tickets"

var customSourceCreators = make(map[string]types.NotificationSourceCreator)

func RegisterSource(sourceType string, creator types.NotificationSourceCreator) {
	customSourceCreators[sourceType] = creator
}

// NewSource builds the change feed named by config.Type. A nil or disabled
// config yields a local source nothing publishes to.
func NewSource(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.NotifyConfig, tokens types.TokenSource) (types.NotificationSource, error) {
	if config == nil || !config.Enabled {
		return NewLocalSource(logger), nil
	}

	switch config.Type {
	case "websocket":
		return NewWebSocketSource(ctx, logger, metrics, config.Config, tokens)
	case "redis":
		return NewRedisSource(ctx, logger, metrics, config.Config)
	case "polling":
		return NewPollingSource(logger, metrics, config.Config)
	case "local":
		return NewLocalSource(logger), nil
	default:
		if creator, exists := customSourceCreators[config.Type]; exists {
			return creator(config.Config)
		}
		return nil, types.Errorf(types.ErrNotifyTypeUnknown, "notify type: %s", config.Type)
	}
}

// CollectionOf returns the watched collection, defaulting to tickets.
func CollectionOf(config *types.NotifyConfig) string {
	if config == nil || config.Collection == "" {
		return DefaultCollection
	}
	return config.Collection
}
