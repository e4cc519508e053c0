package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url must use ws or wss, got %q", u.Scheme)
	}
	if c.Server.SendBufferSize < 1 {
		return errors.New("server.send_buffer_size must be >= 1")
	}

	conn := c.Connection
	if !slices.Contains([]string{"fixed", "exponential"}, conn.ReconnectStrategy) {
		return fmt.Errorf("connection.reconnect_strategy must be fixed or exponential, got %q", conn.ReconnectStrategy)
	}
	if conn.ReconnectDelay < 0 {
		return errors.New("connection.reconnect_delay must be >= 0")
	}
	if conn.MaxReconnectDelay < conn.ReconnectDelay {
		return fmt.Errorf("connection.max_reconnect_delay (%s) cannot be less than reconnect_delay (%s)",
			conn.MaxReconnectDelay, conn.ReconnectDelay)
	}
	if conn.MaxMissedPongs < 0 {
		return errors.New("connection.max_missed_pongs must be >= 0")
	}
	if conn.ConnectTimeout < 0 || conn.AuthTimeout < 0 {
		return errors.New("connection timeouts must be >= 0")
	}
	for i, ch := range conn.InitialChannels {
		if ch == "" {
			return fmt.Errorf("connection.initial_channels[%d] is empty", i)
		}
	}
	if conn.EventBufferSize < 1 {
		return errors.New("connection.event_buffer_size must be >= 1")
	}

	if c.Queue.MaxSize < 1 {
		return errors.New("queue.max_size must be >= 1")
	}
	if c.Queue.Overflow != "drop_oldest" && c.Queue.Overflow != "reject" {
		return fmt.Errorf("queue.overflow must be drop_oldest or reject, got %q", c.Queue.Overflow)
	}

	if c.Auth.FrameType != "authenticate" && c.Auth.FrameType != "register" {
		return fmt.Errorf("auth.frame_type must be authenticate or register, got %q", c.Auth.FrameType)
	}
	if c.Auth.Token != "" && c.Auth.TokenURL != "" {
		return errors.New("auth.token and auth.token_url are mutually exclusive")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// ValidateArchive checks the archive section, which only the recorder needs.
func (c *ClientConfig) ValidateArchive() error {
	if err := c.Archive.Database.validate("archive.database"); err != nil {
		return err
	}
	if c.Archive.BatchSize < 1 {
		return errors.New("archive.batch_size must be >= 1")
	}
	if c.Archive.BufferSize < 1 {
		return errors.New("archive.buffer_size must be >= 1")
	}
	if c.Archive.HealthPort < 1 || c.Archive.HealthPort > 65535 {
		return fmt.Errorf("archive.health_port must be between 1 and 65535, got %d", c.Archive.HealthPort)
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
