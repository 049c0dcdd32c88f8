package config

import "github.com/viaduct-io/wireline/pkg/client"

// Default values for optional configuration fields.
const (
	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

func (c *AppConfig) applyDefaults() {
	// Stream defaults
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = client.DefaultConnectTimeout
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = client.DefaultHeartbeatInterval
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = client.DefaultMaxReconnectAttempts
	}
	if c.Stream.MaxQueueSize == 0 {
		c.Stream.MaxQueueSize = client.DefaultMaxQueueSize
	}
	if c.Stream.DrainBatchSize == 0 {
		c.Stream.DrainBatchSize = client.DefaultDrainBatchSize
	}

	// Journal defaults only apply when a journal is configured.
	if c.Journal.Enabled() {
		applyDBDefaults(&c.Journal.Postgres)
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
