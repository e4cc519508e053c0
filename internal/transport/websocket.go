package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer opens gorilla/websocket connections.
type WSDialer struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewDialer creates a WebSocket dialer.
func NewDialer(cfg Config, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBufferSize < 1 {
		cfg.SendBufferSize = DefaultConfig().SendBufferSize
	}

	return &WSDialer{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial establishes the WebSocket connection and starts its I/O goroutines.
func (d *WSDialer) Dial(ctx context.Context, id uint64, sink Sink) (Conn, error) {
	header := d.cfg.Header.Clone()

	ws, _, err := d.dialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.URL, err)
	}
	if d.cfg.ReadLimit > 0 {
		ws.SetReadLimit(d.cfg.ReadLimit)
	}

	c := &wsConn{
		id:     id,
		ws:     ws,
		cfg:    d.cfg,
		logger: d.logger.With("conn_id", id),
		sink:   sink,
		send:   make(chan []byte, d.cfg.SendBufferSize),
		done:   make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	c.logger.Debug("websocket connected", "url", d.cfg.URL)

	return c, nil
}

// wsConn implements Conn over a gorilla connection.
type wsConn struct {
	id     uint64
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger
	sink   Sink

	send chan []byte
	done chan struct{}

	mu        sync.Mutex
	closing   bool
	closeCode int

	closeOnce  sync.Once
	finishOnce sync.Once
}

// ID returns the connection identifier.
func (c *wsConn) ID() uint64 {
	return c.id
}

// Send queues data for the write goroutine.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame and closes the socket. Safe to call repeatedly.
func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.closeCode = code
		c.mu.Unlock()

		close(c.done)

		// WriteControl may run concurrently with the write goroutine.
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}

// readLoop forwards frames to the sink until the socket fails or is closed.
func (c *wsConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.finish(err)
			return
		}

		c.sink(Event{
			ConnID:     c.id,
			Type:       EventMessage,
			Data:       data,
			ReceivedAt: receivedAt,
		})
	}
}

// writeLoop serializes frame writes.
func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if c.cfg.WriteTimeout > 0 {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", "error", err)
				// Unblocks readLoop, which reports the close.
				_ = c.ws.Close()
				return
			}
		}
	}
}

// finish emits the single EventClosed for this connection.
func (c *wsConn) finish(err error) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		closing, code := c.closing, c.closeCode
		c.mu.Unlock()

		var closeErr *websocket.CloseError
		switch {
		case errors.As(err, &closeErr):
			code = closeErr.Code
			err = nil
			if code != CloseNormal {
				err = closeErr
			}
		case closing:
			err = nil
		default:
			code = CloseAbnormal
		}

		c.closeOnce.Do(func() {
			c.mu.Lock()
			c.closing = true
			c.mu.Unlock()
			close(c.done)
			_ = c.ws.Close()
		})

		c.logger.Debug("websocket closed", "code", code, "error", err)

		c.sink(Event{
			ConnID:     c.id,
			Type:       EventClosed,
			Code:       code,
			Err:        err,
			ReceivedAt: time.Now(),
		})
	})
}
