// Package auth supplies bearer credentials to the connection manager.
//
// The manager consumes only two things from a Provider: the current token and
// a signal that it changed. How the token is obtained is up to the
// implementation. StaticProvider holds a caller-set value; HTTPProvider fetches
// from a token endpoint and refreshes before expiry.
package auth

import (
	"errors"
	"sync"
)

// Errors
var (
	ErrNoToken = errors.New("token response has no token")
)

// Provider is a source of bearer credentials.
type Provider interface {
	// Token returns the latest credential, or "" if none is available.
	Token() string

	// Changes signals after Token's value changes. Signals coalesce: a
	// receiver that falls behind sees one notification for several changes.
	Changes() <-chan struct{}
}

// notifier is a coalescing change signal.
type notifier struct {
	ch chan struct{}
}

func newNotifier() notifier {
	return notifier{ch: make(chan struct{}, 1)}
}

func (n notifier) notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// StaticProvider holds a credential set by the caller.
type StaticProvider struct {
	mu    sync.RWMutex
	token string
	n     notifier
}

// NewStaticProvider creates a provider holding token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token, n: newNotifier()}
}

// Token returns the current credential.
func (p *StaticProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Changes returns the change signal.
func (p *StaticProvider) Changes() <-chan struct{} {
	return p.n.ch
}

// Set replaces the credential. Setting the same value again still notifies,
// which lets a caller re-present a credential after a rejection.
func (p *StaticProvider) Set(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	p.n.notify()
}
