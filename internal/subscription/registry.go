// Package subscription tracks the caller-declared channel set.
//
// Every member is either pending (must be announced on the next ready
// connection) or announced (a subscribe frame went out on the current
// connection). The set itself survives reconnects; only the status is reset.
package subscription

import "sort"

// Status of a channel on the current connection.
type Status int

const (
	Pending Status = iota
	Announced
	Acknowledged // Server echoed "subscribed"
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Announced:
		return "announced"
	case Acknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Registry is the subscription set. Not safe for concurrent use.
type Registry struct {
	channels map[string]Status
	order    []string // insertion order, for deterministic replay
}

// NewRegistry creates a registry seeded with the given channels.
func NewRegistry(initial ...string) *Registry {
	r := &Registry{channels: make(map[string]Status)}
	for _, ch := range initial {
		r.Add(ch)
	}
	return r
}

// Add inserts a pending channel. Returns false if it was already present.
func (r *Registry) Add(channel string) bool {
	if _, ok := r.channels[channel]; ok {
		return false
	}
	r.channels[channel] = Pending
	r.order = append(r.order, channel)
	return true
}

// Remove deletes a channel. announced reports whether the server knows about
// it, in which case an unsubscribe frame is owed.
func (r *Registry) Remove(channel string) (removed, announced bool) {
	status, ok := r.channels[channel]
	if !ok {
		return false, false
	}
	delete(r.channels, channel)
	for i, ch := range r.order {
		if ch == channel {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, status != Pending
}

// Has reports membership.
func (r *Registry) Has(channel string) bool {
	_, ok := r.channels[channel]
	return ok
}

// Status returns a channel's status.
func (r *Registry) Status(channel string) (Status, bool) {
	s, ok := r.channels[channel]
	return s, ok
}

// MarkAnnounced records that a subscribe frame was handed to the transport.
func (r *Registry) MarkAnnounced(channel string) {
	if s, ok := r.channels[channel]; ok && s == Pending {
		r.channels[channel] = Announced
	}
}

// MarkAcknowledged records a server "subscribed" echo. Only announced
// channels are promoted; an echo for a pending channel is ignored and the
// channel stays owed.
func (r *Registry) MarkAcknowledged(channel string) bool {
	if s, ok := r.channels[channel]; !ok || s != Announced {
		return false
	}
	r.channels[channel] = Acknowledged
	return true
}

// MarkAllPending resets every channel, called when the connection is lost.
func (r *Registry) MarkAllPending() {
	for ch := range r.channels {
		r.channels[ch] = Pending
	}
}

// Pending returns pending channels in insertion order.
func (r *Registry) Pending() []string {
	var out []string
	for _, ch := range r.order {
		if r.channels[ch] == Pending {
			out = append(out, ch)
		}
	}
	return out
}

// Channels returns all members sorted.
func (r *Registry) Channels() []string {
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	return len(r.channels)
}
