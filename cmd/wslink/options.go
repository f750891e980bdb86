package main

import (
	"github.com/rickgao/wslink/internal/config"
	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/journal"
)

// managerConfig maps the YAML connection and activity sections onto the
// connection manager settings.
func managerConfig(cfg *config.ClientConfig) connection.Config {
	mc := connection.Config{
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		HeartbeatThreshold:   cfg.Connection.HeartbeatThreshold,
		PingPayload:          cfg.Connection.PingPayload,
		ReconnectBaseDelay:   cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Connection.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ActivitySignals:      cfg.Activity.Signals,
	}
	if cfg.Activity.Enabled {
		mc.IdleTimeout = cfg.Activity.IdleTimeout
		mc.IdleCloseDelay = cfg.Activity.CloseDelay
	}
	return mc
}

func transportConfig(cfg *config.ClientConfig) connection.WebSocketConfig {
	return connection.WebSocketConfig{
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		ReadLimit:        cfg.Connection.ReadLimit,
	}
}

func journalConfig(cfg *config.ClientConfig) journal.Config {
	return journal.Config{
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
		BufferSize:    cfg.Journal.BufferSize,
	}
}
