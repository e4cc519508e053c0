package connection

import (
	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/transport"
)

func (m *manager) startKeepalive() {
	if m.cfg.KeepaliveInterval > 0 {
		m.startTimer(timerKeepalive, m.cfg.KeepaliveInterval)
	}
}

// onKeepalive sends a ping, or gives up on a half-open socket once
// MaxMissedPongs probes went unanswered.
func (m *manager) onKeepalive() {
	if !m.loop.state.IsOpen() || m.loop.conn == nil {
		return
	}

	if m.cfg.MaxMissedPongs > 0 && m.loop.missedPongs >= m.cfg.MaxMissedPongs {
		m.logger.Warn("keepalive pongs missed, closing", "missed", m.loop.missedPongs)
		conn := m.loop.conn
		go conn.Close(transport.CloseGoingAway, "keepalive timeout")
		// Handle the loss now; the socket's own close event will be stale.
		m.onClosed(transport.CloseAbnormal, ErrPongTimeout)
		return
	}

	m.loop.pingSeq++
	if m.sendReserved(protocol.PingFrame{Type: protocol.KindPing, Seq: m.loop.pingSeq}, protocol.KindPing) {
		m.loop.missedPongs++
	}

	// Frames the transport refused earlier get another chance.
	m.drain()
	m.startKeepalive()
}

func (m *manager) onPong() {
	m.loop.missedPongs = 0
}
