package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWriteTimeout         = 5 * time.Second
	DefaultReadLimit            = 1 << 20
	DefaultSendBufferSize       = 256
	DefaultReconnectDelay       = 1 * time.Second
	DefaultReconnectStrategy    = "fixed"
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultKeepaliveInterval    = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultAuthTimeout          = 10 * time.Second
	DefaultEventBufferSize      = 1024
	DefaultQueueMaxSize         = 1000
	DefaultQueueOverflow        = "drop_oldest"
	DefaultAuthFrameType        = "authenticate"
	DefaultRefreshInterval      = 15 * time.Minute
	DefaultRefreshBefore        = 30 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultHealthPort           = 8080
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

func (c *ClientConfig) applyDefaults() {
	// Server defaults
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.SendBufferSize == 0 {
		c.Server.SendBufferSize = DefaultSendBufferSize
	}

	// Connection defaults
	conn := &c.Connection
	if conn.AutoConnect == nil {
		conn.AutoConnect = boolPtr(true)
	}
	if conn.AutoReconnect == nil {
		conn.AutoReconnect = boolPtr(true)
	}
	if conn.ReconnectDelay == 0 {
		conn.ReconnectDelay = DefaultReconnectDelay
	}
	if conn.ReconnectStrategy == "" {
		conn.ReconnectStrategy = DefaultReconnectStrategy
	}
	if conn.MaxReconnectDelay == 0 {
		conn.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if conn.MaxReconnectAttempts == nil {
		n := DefaultMaxReconnectAttempts
		conn.MaxReconnectAttempts = &n
	}
	if conn.KeepaliveInterval == 0 {
		conn.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if conn.ConnectTimeout == 0 {
		conn.ConnectTimeout = DefaultConnectTimeout
	}
	if conn.AuthTimeout == 0 {
		conn.AuthTimeout = DefaultAuthTimeout
	}
	if conn.EventBufferSize == 0 {
		conn.EventBufferSize = DefaultEventBufferSize
	}

	// Queue defaults
	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = DefaultQueueMaxSize
	}
	if c.Queue.Overflow == "" {
		c.Queue.Overflow = DefaultQueueOverflow
	}

	// Auth defaults
	if c.Auth.FrameType == "" {
		c.Auth.FrameType = DefaultAuthFrameType
	}
	if c.Auth.RefreshInterval == 0 {
		c.Auth.RefreshInterval = DefaultRefreshInterval
	}
	if c.Auth.RefreshBefore == 0 {
		c.Auth.RefreshBefore = DefaultRefreshBefore
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}
	if c.Archive.HealthPort == 0 {
		c.Archive.HealthPort = DefaultHealthPort
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
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

func boolPtr(b bool) *bool { return &b }
