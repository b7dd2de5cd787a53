package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/rickgao/nsmux/internal/config"
	"github.com/rickgao/nsmux/internal/queue"
	"github.com/rickgao/nsmux/internal/server"
	"github.com/rickgao/nsmux/internal/session"
	"github.com/rickgao/nsmux/internal/transport"
)

// serverOptions maps file config onto the server, transport and session layers.
func serverOptions(cfg *config.Config) server.Options {
	tr := transport.DefaultOptions()
	tr.ReadBufferSize = cfg.Server.ReadBufferSize
	tr.WriteBufferSize = cfg.Server.WriteBufferSize
	tr.HandshakeTimeout = cfg.Server.HandshakeTimeout
	tr.AllowedOrigins = cfg.Server.AllowedOrigins
	tr.WriteTimeout = cfg.Session.WriteTimeout
	tr.PongTimeout = cfg.Session.PongTimeout
	tr.MaxMessageSize = cfg.Session.MaxMessageSize

	return server.Options{
		InstanceID:  cfg.Instance.ID,
		Path:        cfg.Server.Path,
		MetricsPath: cfg.Metrics.Path,
		Transport:   tr,
		Session: session.Config{
			PollTimeout:       cfg.Session.PollTimeout,
			KeepaliveInterval: cfg.Session.KeepaliveInterval,
			MailboxSize:       cfg.Session.MailboxSize,
			EventBufferSize:   cfg.Session.EventBuffer,
			FunnelCapacity:    cfg.Session.FunnelCapacity,
			FunnelOverflow:    queue.OverflowPolicy(cfg.Session.FunnelOverflow),
		},
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
