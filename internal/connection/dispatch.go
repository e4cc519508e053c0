package connection

import (
	"time"

	"github.com/rickgao/realtime-client/internal/protocol"
)

// dispatch decodes one inbound frame and routes it.
func (m *manager) dispatch(data []byte, receivedAt time.Time) {
	env, err := protocol.Decode(data, receivedAt)
	if err != nil {
		m.loop.counters.decodeErrors++
		m.logger.Warn("dropping malformed frame", "error", err, "len", len(data))
		m.emit(Event{Type: EventDecodeError, Err: &DecodeError{Data: data, Err: err}})
		return
	}
	m.loop.counters.framesReceived++

	if m.loop.resetOnInbound {
		// Without authentication the first frame is the proof the server
		// accepted this connection.
		m.loop.resetOnInbound = false
		m.loop.policy.Reset()
	}

	if !protocol.IsReserved(env.Kind) {
		m.loop.counters.messages++
		m.emit(Event{
			Type:    EventMessage,
			Channel: env.Channel,
			Message: &Message{
				Kind:         env.Kind,
				Channel:      env.Channel,
				Payload:      env.Payload,
				ReceivedAt:   env.ReceivedAt,
				ConnectionID: m.loop.connectionID,
			},
		})
		return
	}

	if m.cfg.RawFrameHook != nil {
		m.cfg.RawFrameHook(Inbound, env.Kind, data)
	}

	switch env.Kind {
	case protocol.KindAuthSuccess:
		m.onAuthSuccess(env)
	case protocol.KindAuthError:
		m.onAuthError(env)
	case protocol.KindPong:
		m.onPong()
	case protocol.KindSystem:
		m.onSystem(env)
	case protocol.KindSubscribed:
		if env.Channel != "" {
			m.loop.subs.MarkAcknowledged(env.Channel)
		}
		m.emit(Event{Type: EventSubscribed, Channel: env.Channel})
	case protocol.KindUnsubscribed:
		m.emit(Event{Type: EventUnsubscribed, Channel: env.Channel})
	}
}

func (m *manager) onSystem(env *protocol.Envelope) {
	if id := env.ConnectionID(); id != "" {
		m.loop.connectionID = id
		m.logger.Debug("server assigned connection id", "connection_id", id)
	}
	m.emit(Event{Type: EventSystem, ConnectionID: m.loop.connectionID})
}
