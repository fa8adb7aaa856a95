package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/servicehub-client/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

// LoadFromBytes expands ${VAR} references, overlays the document on the
// defaults and validates the result.
func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	config := l.Defaults()
	if err := yaml.Unmarshal(expanded, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.Validate(config); err != nil {
		return nil, nil, err
	}

	raw, err := toRawMap(config)
	if err != nil {
		return nil, nil, err
	}

	return config, raw, nil
}

func (l *Loader) Validate(config *types.ServiceConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}
	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}
	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "servicehub-client",
		Version: "1.0.0",
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		API: &types.APIConfig{
			BaseURL:        "http://localhost:8000/",
			ConnectTimeout: 60 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   60 * time.Second,
			Retries:        0,
			UserAgent:      "servicehub-client/1.0",
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Cache: &types.CacheConfig{
			Employee: types.CachePolicyConfig{
				TTL:      10 * time.Second,
				InFlight: string(types.InFlightDrop),
			},
			Manager: types.CachePolicyConfig{
				TTL:      3 * time.Minute,
				InFlight: string(types.InFlightJoin),
			},
		},
		Session: &types.SessionConfig{
			Type: "memory",
		},
		Notify: &types.NotifyConfig{
			Enabled:    false,
			Collection: "tickets",
		},
		Metrics: &types.MetricsConfig{
			Enabled:   false,
			Type:      "prometheus",
			Namespace: "servicehub",
		},
	}
}

func toRawMap(config *types.ServiceConfig) (map[string]interface{}, error) {
	configBytes, err := yaml.Marshal(config)
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal config")
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(configBytes, &raw); err != nil {
		return nil, types.WrapError(err, "failed to build raw config")
	}
	return raw, nil
}
