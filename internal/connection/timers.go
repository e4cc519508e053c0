package connection

import "time"

// timerKind names a timer slot.
type timerKind int

const (
	timerConnect timerKind = iota
	timerReconnect
	timerKeepalive
	timerAuth
	numTimerKinds
)

func (k timerKind) String() string {
	switch k {
	case timerConnect:
		return "connect"
	case timerReconnect:
		return "reconnect"
	case timerKeepalive:
		return "keepalive"
	case timerAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// timerSet holds at most one live timer per kind. A firing posts back to the
// event loop tagged with the generation it was armed under; stopping or
// re-arming bumps the generation, so a firing already in flight is ignored.
type timerSet struct {
	handles [numTimerKinds]*time.Timer
	gens    [numTimerKinds]uint64
}

// startTimer arms kind, replacing any live timer of that kind.
func (m *manager) startTimer(kind timerKind, d time.Duration) {
	m.stopTimer(kind)
	gen := m.loop.timers.gens[kind]

	m.loop.timers.handles[kind] = time.AfterFunc(d, func() {
		m.post(func() { m.timerFired(kind, gen) })
	})
}

// stopTimer cancels kind. Safe when nothing is armed.
func (m *manager) stopTimer(kind timerKind) {
	if t := m.loop.timers.handles[kind]; t != nil {
		t.Stop()
		m.loop.timers.handles[kind] = nil
	}
	m.loop.timers.gens[kind]++
}

func (m *manager) stopAllTimers() {
	for k := timerKind(0); k < numTimerKinds; k++ {
		m.stopTimer(k)
	}
}

// timerActive reports whether kind is armed.
func (m *manager) timerActive(kind timerKind) bool {
	return m.loop.timers.handles[kind] != nil
}

func (m *manager) timerFired(kind timerKind, gen uint64) {
	if gen != m.loop.timers.gens[kind] {
		return // cancelled or re-armed after this firing was queued
	}
	m.loop.timers.handles[kind] = nil

	switch kind {
	case timerConnect:
		m.onConnectTimeout()
	case timerReconnect:
		m.onReconnectDue()
	case timerKeepalive:
		m.onKeepalive()
	case timerAuth:
		m.onAuthTimeout()
	}
}
