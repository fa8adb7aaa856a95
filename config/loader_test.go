package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/servicehub-client/types"
)

const sampleYAML = `
name: field-app
api:
  base_url: "http://${HUB_TEST_HOST}:8000/"
  read_timeout: 15s
cache:
  employee:
    ttl: 5s
notify:
  enabled: true
  type: websocket
  config:
    url: "ws://localhost:9000/ws"
    reconnect_delay: 2s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileMergesDefaults(t *testing.T) {
	t.Setenv("HUB_TEST_HOST", "10.0.0.5")

	cfg, raw, err := NewLoader().LoadFromFile(context.Background(), writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NotNil(t, raw)

	assert.Equal(t, "field-app", cfg.Name)
	assert.Equal(t, "http://10.0.0.5:8000/", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.API.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Cache.Employee.TTL)
	assert.Equal(t, "drop", cfg.Cache.Employee.InFlight)
	assert.Equal(t, 3*time.Minute, cfg.Cache.Manager.TTL)
	assert.Equal(t, "join", cfg.Cache.Manager.InFlight)
	assert.Equal(t, "tickets", cfg.Notify.Collection)
}

func TestLoadFromBytesRejectsInvalid(t *testing.T) {
	_, _, err := NewLoader().LoadFromBytes([]byte("api:\n  base_url: \"not a url\"\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigValidateFailed)

	_, _, err = NewLoader().LoadFromBytes([]byte("cache:\n  manager:\n    in_flight: queue\n"))
	assert.ErrorIs(t, err, types.ErrConfigValidateFailed)

	_, _, err = NewLoader().LoadFromBytes([]byte("notify:\n  enabled: true\n"))
	assert.ErrorIs(t, err, types.ErrConfigValidateFailed)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, _, err := NewLoader().LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestManagerPathLookup(t *testing.T) {
	cm, err := NewConfigurationManager(context.Background(), writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "websocket", cm.GetValue("notify.type", ""))
	assert.Equal(t, "fallback", cm.GetValue("notify.config.missing", "fallback"))

	var wsCfg struct {
		URL            string        `yaml:"url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	}
	require.NoError(t, cm.GetAs("notify.config", &wsCfg))
	assert.Equal(t, "ws://localhost:9000/ws", wsCfg.URL)
	assert.Equal(t, 2*time.Second, wsCfg.ReconnectDelay)

	assert.ErrorIs(t, cm.GetAs("notify.nope", &wsCfg), types.ErrConfigInvalidPath)
	assert.Contains(t, cm.Paths(), "api.base_url")
}

func TestStaticManagerLifecycle(t *testing.T) {
	cfg := NewLoader().Defaults()
	cm, err := NewStaticManager(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, cm.Start())
	assert.True(t, cm.IsRunning())
	assert.ErrorIs(t, cm.Start(), types.ErrServiceIsRunning)
	require.NoError(t, cm.Load())
	require.NoError(t, cm.Stop())
	assert.False(t, cm.IsRunning())
}
