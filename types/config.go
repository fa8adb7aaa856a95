package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Version string         `yaml:"version" json:"version"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger"`
	API     *APIConfig     `yaml:"api" json:"api" validate:"required"`
	Cache   *CacheConfig   `yaml:"cache" json:"cache"`
	Session *SessionConfig `yaml:"session" json:"session"`
	Notify  *NotifyConfig  `yaml:"notify" json:"notify"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type APIConfig struct {
	BaseURL         string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	ConnectTimeout  time.Duration         `yaml:"connect_timeout" json:"connect_timeout" validate:"min=0"`
	ReadTimeout     time.Duration         `yaml:"read_timeout" json:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration         `yaml:"write_timeout" json:"write_timeout" validate:"min=0"`
	Retries         int                   `yaml:"retries" json:"retries" validate:"min=0,max=10"`
	MaxConnsPerHost int                   `yaml:"max_conns_per_host" json:"max_conns_per_host" validate:"min=0"`
	UserAgent       string                `yaml:"user_agent" json:"user_agent"`
	CircuitBreaker  *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout" validate:"min=0"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type CacheConfig struct {
	Employee CachePolicyConfig `yaml:"employee" json:"employee"`
	Manager  CachePolicyConfig `yaml:"manager" json:"manager"`
}

// CachePolicyConfig tunes one side of the data managers.
type CachePolicyConfig struct {
	TTL      time.Duration `yaml:"ttl" json:"ttl" validate:"min=0"`
	InFlight string        `yaml:"in_flight" json:"in_flight" validate:"omitempty,oneof=drop join"`
}

type SessionConfig struct {
	Type          string `yaml:"type" json:"type" validate:"omitempty,oneof=memory clover sqlite"`
	Path          string `yaml:"path" json:"path"`
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
}

type NotifyConfig struct {
	Enabled    bool        `yaml:"enabled" json:"enabled"`
	Type       string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Collection string      `yaml:"collection" json:"collection"`
	Config     interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Type      string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
	Runtime   bool              `yaml:"runtime" json:"runtime"`
	Listen    string            `yaml:"listen" json:"listen" validate:"omitempty,hostname_port"`
}
