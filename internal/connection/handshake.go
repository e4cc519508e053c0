package connection

import (
	"github.com/google/uuid"

	"github.com/rickgao/realtime-client/internal/protocol"
)

// authenticate presents the current credential on the live connection.
// Each frame carries a fresh correlation id; a response echoing a different
// id belongs to an earlier attempt and is ignored.
func (m *manager) authenticate() {
	m.loop.authID = uuid.NewString()

	frame := protocol.AuthenticateFrame{
		Type:          m.cfg.AuthFrameType,
		Token:         m.loop.credential,
		CorrelationID: m.loop.authID,
	}
	if !m.sendReserved(frame, m.cfg.AuthFrameType) {
		m.logger.Warn("authenticate frame not accepted by transport")
	}

	m.setState(StateAuthenticating)
	if m.cfg.AuthTimeout > 0 {
		m.startTimer(timerAuth, m.cfg.AuthTimeout)
	}
}

// isCurrentAuth reports whether a response belongs to the in-flight attempt.
func (m *manager) isCurrentAuth(env *protocol.Envelope) bool {
	if m.loop.state != StateAuthenticating {
		return false
	}
	id := env.String("correlation_id")
	return id == "" || id == m.loop.authID
}

func (m *manager) onAuthSuccess(env *protocol.Envelope) {
	if !m.isCurrentAuth(env) {
		m.logger.Debug("ignoring auth_success", "state", m.loop.state)
		return
	}

	m.stopTimer(timerAuth)
	m.loop.credentialValid = true
	m.loop.resetOnInbound = false

	m.logger.Info("authenticated")
	m.setState(StateAuthenticated)
	m.emit(Event{Type: EventAuthenticated})
	m.becomeReady()
}

func (m *manager) onAuthError(env *protocol.Envelope) {
	if !m.isCurrentAuth(env) {
		m.logger.Debug("ignoring auth_error", "state", m.loop.state)
		return
	}

	m.stopTimer(timerAuth)
	m.loop.credentialValid = false

	reason := env.ErrorText()
	m.logger.Warn("authentication rejected", "reason", reason)
	m.setState(StateOpen)
	m.emit(Event{Type: EventAuthFailed, Err: NewAuthRejected(reason)})
}

func (m *manager) onAuthTimeout() {
	if m.loop.state != StateAuthenticating {
		return
	}
	m.loop.credentialValid = false
	m.loop.authID = ""

	m.logger.Warn("authentication timed out", "timeout", m.cfg.AuthTimeout)
	m.setState(StateOpen)
	m.emit(Event{Type: EventAuthTimeout, Err: NewAuthTimeout(m.cfg.AuthTimeout)})
}

// clearAuthentication drops an authenticated or in-flight session after the
// credential is removed. Without a provider or RequireAuth the connection is
// auth-free from here on and flushes immediately; otherwise it holds in Open.
func (m *manager) clearAuthentication() {
	m.stopTimer(timerAuth)
	m.loop.authID = ""

	if m.loop.state != StateOpen {
		m.logger.Info("credential cleared, leaving authenticated state")
		m.setState(StateOpen)
	}
	if !m.authEnabled() {
		m.loop.resetOnInbound = true
		m.becomeReady()
	}
}
