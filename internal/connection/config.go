package connection

import (
	"time"

	"github.com/rickgao/realtime-client/internal/auth"
	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/outbound"
	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/retry"
	"github.com/rickgao/realtime-client/internal/transport"
)

// ManagerConfig holds configuration for the Connection Manager.
type ManagerConfig struct {
	Transport transport.Config

	AutoConnect   bool         // Connect on Start
	AutoReconnect bool         // Follow the reconnection policy after unplanned closes
	Reconnect     retry.Config // Delay, attempt budget and strategy

	KeepaliveInterval time.Duration // Ping period while open (0 disables)
	MaxMissedPongs    int           // Unanswered pings before forcing a close (0 disables)
	ConnectTimeout    time.Duration // Bound on dial + handshake
	AuthTimeout       time.Duration // Bound on waiting for auth_success/auth_error

	InitialChannels []string // Seeded into the subscription set

	QueueSize int               // Outbound queue bound
	Overflow  outbound.Overflow // drop_oldest or reject

	// Credential is a static bearer token. Ignored when Credentials is set.
	Credential string
	// Credentials supplies the token and signals replacements.
	Credentials auth.Provider
	// RequireAuth holds ready until a credential is accepted even when no
	// credential is configured yet.
	RequireAuth bool
	// AuthFrameType is "authenticate" or the legacy "register".
	AuthFrameType string

	RawFrameHook RawFrameHook

	InboxSize int // Event loop queue depth
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Transport:         transport.DefaultConfig(),
		AutoConnect:       true,
		AutoReconnect:     true,
		Reconnect:         retry.DefaultConfig(),
		KeepaliveInterval: 30 * time.Second,
		MaxMissedPongs:    0,
		ConnectTimeout:    10 * time.Second,
		AuthTimeout:       10 * time.Second,
		QueueSize:         1000,
		Overflow:          outbound.DropOldest,
		AuthFrameType:     protocol.KindAuthenticate,
		InboxSize:         1024,
	}
}

// ManagerConfigFrom maps a loaded client configuration onto ManagerConfig.
// The credential provider is wired by the caller.
func ManagerConfigFrom(cfg config.ClientConfig) ManagerConfig {
	out := DefaultManagerConfig()

	out.Transport.URL = cfg.Server.URL
	out.Transport.Header = cfg.Server.HTTPHeader()
	if cfg.Server.WriteTimeout > 0 {
		out.Transport.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.ReadLimit > 0 {
		out.Transport.ReadLimit = cfg.Server.ReadLimit
	}
	if cfg.Server.SendBufferSize > 0 {
		out.Transport.SendBufferSize = cfg.Server.SendBufferSize
	}

	if cfg.Connection.AutoConnect != nil {
		out.AutoConnect = *cfg.Connection.AutoConnect
	}
	if cfg.Connection.AutoReconnect != nil {
		out.AutoReconnect = *cfg.Connection.AutoReconnect
	}
	if cfg.Connection.MaxReconnectAttempts != nil {
		out.Reconnect.MaxAttempts = *cfg.Connection.MaxReconnectAttempts
	}
	if cfg.Connection.ReconnectDelay > 0 {
		out.Reconnect.Delay = cfg.Connection.ReconnectDelay
	}
	if cfg.Connection.MaxReconnectDelay > 0 {
		out.Reconnect.MaxDelay = cfg.Connection.MaxReconnectDelay
	}
	if cfg.Connection.ReconnectStrategy != "" {
		out.Reconnect.Kind = retry.Kind(cfg.Connection.ReconnectStrategy)
	}
	out.Reconnect.Jitter = cfg.Connection.ReconnectJitter

	// Negative disables keepalive; zero keeps the default.
	if cfg.Connection.KeepaliveInterval != 0 {
		out.KeepaliveInterval = max(cfg.Connection.KeepaliveInterval, 0)
	}
	out.MaxMissedPongs = cfg.Connection.MaxMissedPongs
	if cfg.Connection.ConnectTimeout > 0 {
		out.ConnectTimeout = cfg.Connection.ConnectTimeout
		out.Transport.HandshakeTimeout = cfg.Connection.ConnectTimeout
	}
	if cfg.Connection.AuthTimeout > 0 {
		out.AuthTimeout = cfg.Connection.AuthTimeout
	}
	out.InitialChannels = append([]string(nil), cfg.Connection.InitialChannels...)

	if cfg.Queue.MaxSize > 0 {
		out.QueueSize = cfg.Queue.MaxSize
	}
	if cfg.Queue.Overflow != "" {
		out.Overflow = outbound.Overflow(cfg.Queue.Overflow)
	}

	out.Credential = cfg.Auth.Token
	out.RequireAuth = cfg.Auth.Required
	if cfg.Auth.FrameType != "" {
		out.AuthFrameType = cfg.Auth.FrameType
	}

	return out
}
