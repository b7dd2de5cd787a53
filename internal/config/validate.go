package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}
	if c.Server.ReadBufferSize < 0 || c.Server.WriteBufferSize < 0 {
		return errors.New("server buffer sizes must be >= 0")
	}

	if c.Session.PollTimeout <= 0 {
		return errors.New("session.poll_timeout must be > 0")
	}
	if c.Session.KeepaliveInterval <= 0 {
		return errors.New("session.keepalive_interval must be > 0")
	}
	if c.Session.PongTimeout > 0 && c.Session.PongTimeout <= c.Session.KeepaliveInterval {
		return fmt.Errorf("session.pong_timeout (%s) must exceed keepalive_interval (%s)",
			c.Session.PongTimeout, c.Session.KeepaliveInterval)
	}
	if c.Session.MailboxSize < 1 {
		return errors.New("session.mailbox_size must be >= 1")
	}
	if c.Session.EventBuffer < 1 {
		return errors.New("session.event_buffer must be >= 1")
	}
	if c.Session.FunnelCapacity < 0 {
		return errors.New("session.funnel_capacity must be >= 0")
	}
	switch c.Session.FunnelOverflow {
	case "block", "drop_oldest":
	default:
		return fmt.Errorf("session.funnel_overflow must be block or drop_oldest, got %q", c.Session.FunnelOverflow)
	}

	if c.Audit.Enabled {
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
		}
	}

	if c.Metrics.IsEnabled() {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
		}
		if c.Metrics.Path == c.Server.Path {
			return fmt.Errorf("metrics.path cannot equal server.path (%s)", c.Server.Path)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
