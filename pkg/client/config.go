package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/viaduct-io/wireline/pkg/backoff"
)

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultHeartbeatInterval    = 15 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultMaxQueueSize         = 100
	DefaultDrainBatchSize       = 16
)

// Config describes one managed stream client. It is owned by the
// Manager for its whole lifetime and never mutated, only replaced.
//
// The zero value is not useful; start from DefaultConfig, which turns
// the reconnection, queue and heartbeat toggles on.
type Config struct {
	Addr         string            `json:"addr" yaml:"addr"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers"`
	Subprotocols []string          `json:"subprotocols,omitempty" yaml:"subprotocols"`

	ConnectTimeout    time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval,omitempty" yaml:"heartbeat_interval"`

	EnableHeartbeat    bool `json:"enable_heartbeat" yaml:"enable_heartbeat"`
	EnableReconnection bool `json:"enable_reconnection" yaml:"enable_reconnection"`
	EnableQueue        bool `json:"enable_queue" yaml:"enable_queue"`
	DeduplicateQueue   bool `json:"deduplicate_queue,omitempty" yaml:"deduplicate_queue"`

	MaxReconnectAttempts int `json:"max_reconnect_attempts,omitempty" yaml:"max_reconnect_attempts"`
	MaxQueueSize         int `json:"max_queue_size,omitempty" yaml:"max_queue_size"`
	DrainBatchSize       int `json:"drain_batch_size,omitempty" yaml:"drain_batch_size"`

	Backoff backoff.Config `json:"backoff,omitempty" yaml:"backoff"`
}

// DefaultConfig returns a config for addr with every toggle on and the
// documented defaults applied.
func DefaultConfig(addr string) Config {
	cfg := Config{
		Addr:               addr,
		EnableHeartbeat:    true,
		EnableReconnection: true,
		EnableQueue:        true,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.DrainBatchSize <= 0 {
		c.DrainBatchSize = DefaultDrainBatchSize
	}
}

// Validate checks that required fields are set.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

// UnmarshalJSON decodes a config, tolerating missing optional fields:
// absent toggles default to enabled, absent bounds to their documented
// defaults.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	aux := struct {
		*alias
		EnableHeartbeat    *bool `json:"enable_heartbeat"`
		EnableReconnection *bool `json:"enable_reconnection"`
		EnableQueue        *bool `json:"enable_queue"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	c.EnableHeartbeat = aux.EnableHeartbeat == nil || *aux.EnableHeartbeat
	c.EnableReconnection = aux.EnableReconnection == nil || *aux.EnableReconnection
	c.EnableQueue = aux.EnableQueue == nil || *aux.EnableQueue
	c.applyDefaults()
	return nil
}
