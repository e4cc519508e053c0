package config

import (
	"net/http"
	"time"
)

// ClientConfig is the root configuration for a realtime client process.
type ClientConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Queue      QueueConfig      `yaml:"queue"`
	Auth       AuthConfig       `yaml:"auth"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig identifies the realtime endpoint.
type ServerConfig struct {
	URL            string            `yaml:"url"`     // ws:// or wss:// endpoint
	Headers        map[string]string `yaml:"headers"` // Extra handshake headers
	WriteTimeout   time.Duration     `yaml:"write_timeout"`
	ReadLimit      int64             `yaml:"read_limit"` // Max inbound frame bytes
	SendBufferSize int               `yaml:"send_buffer_size"`
}

// HTTPHeader returns Headers as an http.Header, or nil if empty.
func (s ServerConfig) HTTPHeader() http.Header {
	if len(s.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(s.Headers))
	for k, v := range s.Headers {
		h.Set(k, v)
	}
	return h
}

// ConnectionConfig holds lifecycle and recovery settings.
type ConnectionConfig struct {
	AutoConnect          *bool         `yaml:"auto_connect"`           // Default: true
	AutoReconnect        *bool         `yaml:"auto_reconnect"`         // Default: true
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`        // Fixed delay or exponential base
	ReconnectStrategy    string        `yaml:"reconnect_strategy"`     // "fixed" or "exponential"
	ReconnectJitter      bool          `yaml:"reconnect_jitter"`       // Spread delays over 0.5x-1.5x
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`    // Exponential cap
	MaxReconnectAttempts *int          `yaml:"max_reconnect_attempts"` // Negative = unlimited, 0 = never retry
	KeepaliveInterval    time.Duration `yaml:"keepalive_interval"`     // Negative disables
	MaxMissedPongs       int           `yaml:"max_missed_pongs"`       // 0 disables half-open detection
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	AuthTimeout          time.Duration `yaml:"auth_timeout"`
	InitialChannels      []string      `yaml:"initial_channels"`
	EventBufferSize      int           `yaml:"event_buffer_size"` // Per-watcher buffer in the commands
}

// QueueConfig holds outbound queue settings.
type QueueConfig struct {
	MaxSize  int    `yaml:"max_size"`
	Overflow string `yaml:"overflow"` // "drop_oldest" or "reject"
}

// AuthConfig selects the credential source. Token is a static credential;
// TokenURL enables fetching from a token endpoint instead.
type AuthConfig struct {
	Token           string        `yaml:"token"`
	TokenURL        string        `yaml:"token_url"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // For tokens without expiry
	RefreshBefore   time.Duration `yaml:"refresh_before"`   // Lead time before JWT exp
	FrameType       string        `yaml:"frame_type"`       // "authenticate" or "register"
	Required        bool          `yaml:"required"`         // Hold ready until a credential is accepted
}

// ArchiveConfig holds the event recorder settings.
type ArchiveConfig struct {
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	HealthPort    int           `yaml:"health_port"`
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

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
