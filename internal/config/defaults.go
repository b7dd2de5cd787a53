package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID        = "nsmuxd"
	DefaultAddr              = ":8080"
	DefaultPath              = "/websockets"
	DefaultBufferSize        = 4096
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultPollTimeout       = 3 * time.Second
	DefaultKeepaliveInterval = 15 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultPongTimeout       = 60 * time.Second
	DefaultMaxMessageSize    = 1 << 20
	DefaultMailboxSize       = 16
	DefaultEventBuffer       = 64
	DefaultFunnelOverflow    = "block"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultAuditBatchSize    = 500
	DefaultAuditFlush        = 1 * time.Second
	DefaultAuditBuffer       = 10000
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = DefaultBufferSize
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = DefaultBufferSize
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Session defaults
	if c.Session.PollTimeout == 0 {
		c.Session.PollTimeout = DefaultPollTimeout
	}
	if c.Session.KeepaliveInterval == 0 {
		c.Session.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.PongTimeout == 0 {
		c.Session.PongTimeout = DefaultPongTimeout
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Session.MailboxSize == 0 {
		c.Session.MailboxSize = DefaultMailboxSize
	}
	if c.Session.EventBuffer == 0 {
		c.Session.EventBuffer = DefaultEventBuffer
	}
	if c.Session.FunnelOverflow == "" {
		c.Session.FunnelOverflow = DefaultFunnelOverflow
	}

	// Audit defaults
	if c.Audit.Enabled {
		applyDBDefaults(&c.Audit.Database)
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultAuditBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultAuditFlush
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultAuditBuffer
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

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
