package config

import (
	"time"

	"github.com/viaduct-io/wireline/pkg/backoff"
	"github.com/viaduct-io/wireline/pkg/client"
)

// AppConfig is the root configuration for a wireline instance.
type AppConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Stream   StreamConfig   `yaml:"stream"`
	Journal  JournalConfig  `yaml:"journal"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the managed stream settings. Toggle fields use
// pointers so that an absent key means "enabled" while an explicit
// false stays false.
type StreamConfig struct {
	Addr         string            `yaml:"addr"`
	Headers      map[string]string `yaml:"headers"`
	Subprotocols []string          `yaml:"subprotocols"`

	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	EnableHeartbeat    *bool `yaml:"enable_heartbeat"`
	EnableReconnection *bool `yaml:"enable_reconnection"`
	EnableQueue        *bool `yaml:"enable_queue"`
	DeduplicateQueue   bool  `yaml:"deduplicate_queue"`

	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	MaxQueueSize         int `yaml:"max_queue_size"`
	DrainBatchSize       int `yaml:"drain_batch_size"`

	Backoff backoff.Config `yaml:"backoff"`
}

// JournalConfig holds the optional Postgres queue journal. When Host is
// empty the journal is disabled.
type JournalConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a journal database was configured at all.
func (j JournalConfig) Enabled() bool {
	return j.Postgres.Host != ""
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ClientConfig converts the stream section into a client.Config ready
// to hand to client.New.
func (c *AppConfig) ClientConfig() client.Config {
	s := c.Stream
	cfg := client.Config{
		Addr:                 s.Addr,
		Headers:              s.Headers,
		Subprotocols:         s.Subprotocols,
		ConnectTimeout:       s.ConnectTimeout,
		HeartbeatInterval:    s.HeartbeatInterval,
		EnableHeartbeat:      s.EnableHeartbeat == nil || *s.EnableHeartbeat,
		EnableReconnection:   s.EnableReconnection == nil || *s.EnableReconnection,
		EnableQueue:          s.EnableQueue == nil || *s.EnableQueue,
		DeduplicateQueue:     s.DeduplicateQueue,
		MaxReconnectAttempts: s.MaxReconnectAttempts,
		MaxQueueSize:         s.MaxQueueSize,
		DrainBatchSize:       s.DrainBatchSize,
		Backoff:              s.Backoff,
	}
	return cfg
}
