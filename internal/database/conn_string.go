package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/nsmux/internal/config"
)

// BuildConnString builds a PostgreSQL connection URL from config.
func BuildConnString(cfg config.DBConfig) string {
	return buildURL(cfg, url.QueryEscape(cfg.Password))
}

// RedactedConnString is BuildConnString with the password masked, for logs.
func RedactedConnString(cfg config.DBConfig) string {
	masked := ""
	if cfg.Password != "" {
		masked = "xxxxx"
	}
	return buildURL(cfg, masked)
}

func buildURL(cfg config.DBConfig, password string) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultDBPort
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		password,
		cfg.Host,
		port,
		cfg.Name,
		sslMode,
	)
}
