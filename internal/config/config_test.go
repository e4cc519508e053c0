package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  url: wss://rt.example.com/ws
  headers:
    X-Client-Version: "1.2"
connection:
  auto_connect: false
  reconnect_delay: 250ms
  max_reconnect_attempts: 0
  initial_channels: [news, "business:7"]
queue:
  max_size: 50
  overflow: reject
auth:
  token: abc
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://rt.example.com/ws", cfg.Server.URL)
	assert.Equal(t, "1.2", cfg.Server.HTTPHeader().Get("X-Client-Version"))
	require.NotNil(t, cfg.Connection.AutoConnect)
	assert.False(t, *cfg.Connection.AutoConnect)
	assert.Equal(t, 250*time.Millisecond, cfg.Connection.ReconnectDelay)
	require.NotNil(t, cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, 0, *cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, []string{"news", "business:7"}, cfg.Connection.InitialChannels)
	assert.Equal(t, 50, cfg.Queue.MaxSize)
	assert.Equal(t, "reject", cfg.Queue.Overflow)
	assert.Equal(t, "abc", cfg.Auth.Token)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_RT_TOKEN", "secret123")
	t.Setenv("TEST_DB_PASSWORD", "dbpass")

	yaml := `
server:
  url: ws://localhost:8080/ws
auth:
  token: ${TEST_RT_TOKEN}
archive:
  database:
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.Auth.Token)
	assert.Equal(t, "dbpass", cfg.Archive.Database.Password)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeTempFile(t, "server: [not, a, map"))
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "server:\n  url: ws://localhost/ws\n")

	cfg, err := LoadWithDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, DefaultSendBufferSize, cfg.Server.SendBufferSize)
	assert.True(t, *cfg.Connection.AutoConnect)
	assert.True(t, *cfg.Connection.AutoReconnect)
	assert.Equal(t, DefaultReconnectDelay, cfg.Connection.ReconnectDelay)
	assert.Equal(t, DefaultReconnectStrategy, cfg.Connection.ReconnectStrategy)
	assert.Equal(t, DefaultMaxReconnectAttempts, *cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, DefaultKeepaliveInterval, cfg.Connection.KeepaliveInterval)
	assert.Equal(t, DefaultConnectTimeout, cfg.Connection.ConnectTimeout)
	assert.Equal(t, DefaultQueueMaxSize, cfg.Queue.MaxSize)
	assert.Equal(t, DefaultQueueOverflow, cfg.Queue.Overflow)
	assert.Equal(t, DefaultAuthFrameType, cfg.Auth.FrameType)
	assert.Equal(t, DefaultDBPort, cfg.Archive.Database.Port)
	assert.Equal(t, DefaultMaxConns, cfg.Archive.Database.MaxConns)
	assert.Equal(t, DefaultHealthPort, cfg.Archive.HealthPort)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoadAndValidate(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, "server:\n  url: http://localhost/ws\n"))
	assert.ErrorContains(t, err, "validate config: server.url must use ws or wss")

	cfg, err := LoadAndValidate(writeTempFile(t, "server:\n  url: wss://localhost/ws\n"))
	require.NoError(t, err)
	assert.Equal(t, "wss://localhost/ws", cfg.Server.URL)
}

func validConfig() ClientConfig {
	cfg := ClientConfig{Server: ServerConfig{URL: "ws://localhost/ws"}}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(c *ClientConfig) { c.Server.URL = "" },
			wantErr: "server.url is required",
		},
		{
			name:    "bad strategy",
			mutate:  func(c *ClientConfig) { c.Connection.ReconnectStrategy = "random" },
			wantErr: `connection.reconnect_strategy must be fixed or exponential, got "random"`,
		},
		{
			name: "max delay below delay",
			mutate: func(c *ClientConfig) {
				c.Connection.ReconnectDelay = 10 * time.Second
				c.Connection.MaxReconnectDelay = time.Second
			},
			wantErr: "connection.max_reconnect_delay (1s) cannot be less than reconnect_delay (10s)",
		},
		{
			name:    "empty initial channel",
			mutate:  func(c *ClientConfig) { c.Connection.InitialChannels = []string{"a", ""} },
			wantErr: "connection.initial_channels[1] is empty",
		},
		{
			name:    "bad overflow",
			mutate:  func(c *ClientConfig) { c.Queue.Overflow = "block" },
			wantErr: `queue.overflow must be drop_oldest or reject, got "block"`,
		},
		{
			name:    "bad frame type",
			mutate:  func(c *ClientConfig) { c.Auth.FrameType = "login" },
			wantErr: `auth.frame_type must be authenticate or register, got "login"`,
		},
		{
			name: "token and token url",
			mutate: func(c *ClientConfig) {
				c.Auth.Token = "t"
				c.Auth.TokenURL = "https://idp/token"
			},
			wantErr: "auth.token and auth.token_url are mutually exclusive",
		},
		{
			name:    "bad log level",
			mutate:  func(c *ClientConfig) { c.Log.Level = "trace" },
			wantErr: `log.level must be debug, info, warn or error, got "trace"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *ClientConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateArchive(t *testing.T) {
	cfg := validConfig()
	assert.EqualError(t, cfg.ValidateArchive(), "archive.database.host is required")

	cfg.Archive.Database = DBConfig{Host: "localhost", Name: "rt", User: "rt", Password: "pw", MaxConns: 5, MinConns: 10}
	assert.EqualError(t, cfg.ValidateArchive(), "archive.database.min_conns (10) cannot exceed max_conns (5)")

	cfg.Archive.Database.MinConns = 1
	assert.NoError(t, cfg.ValidateArchive())
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExampleConfig(t *testing.T) {
	t.Setenv("RT_TOKEN", "example-token")
	t.Setenv("RT_DB_PASSWORD", "secret")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "client.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateArchive())

	assert.Equal(t, "example-token", cfg.Auth.Token)
	assert.Equal(t, []string{"news"}, cfg.Connection.InitialChannels)
	assert.Equal(t, "secret", cfg.Archive.Database.Password)
}
