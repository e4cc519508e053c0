package retry

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// maxDuration is the largest representable delay; uncapped backoff saturates here.
const maxDuration = time.Duration(math.MaxInt64)

// ErrExhausted is returned by Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Kind selects the built-in backoff strategy.
type Kind string

const (
	KindFixed       Kind = "fixed"
	KindExponential Kind = "exponential"
)

// Strategy computes the delay before the given attempt (1-based). prev is the
// delay used for the previous attempt, zero on the first.
type Strategy func(attempt int, prev time.Duration) time.Duration

// Config holds reconnection policy settings.
type Config struct {
	// MaxAttempts bounds retries per incident. Negative means unlimited,
	// zero disables retries entirely.
	MaxAttempts int

	Delay    time.Duration // Fixed delay, or base delay for exponential
	MaxDelay time.Duration // Cap for exponential growth (0 = uncapped)
	Kind     Kind          // Default: fixed
	Jitter   bool          // Randomize each delay to 0.5x-1.5x

	// Strategy overrides Kind when set.
	Strategy Strategy
}

// DefaultConfig returns the library defaults: ten attempts one second apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		Delay:       time.Second,
		MaxDelay:    30 * time.Second,
		Kind:        KindFixed,
	}
}

// Fixed returns a strategy that always waits d.
func Fixed(d time.Duration) Strategy {
	return func(int, time.Duration) time.Duration { return d }
}

// Exponential returns a strategy that doubles from base up to maxDelay. A zero
// maxDelay leaves it uncapped, saturating instead of overflowing.
func Exponential(base, maxDelay time.Duration) Strategy {
	return func(attempt int, prev time.Duration) time.Duration {
		d := base
		switch {
		case prev > maxDuration/2:
			d = maxDuration
		case prev > 0:
			d = prev * 2
		}
		if maxDelay > 0 && d > maxDelay {
			d = maxDelay
		}
		return d
	}
}

// Policy is the attempt counter plus backoff state for one incident.
type Policy struct {
	cfg      Config
	strategy Strategy
	attempts int
	prev     time.Duration

	// jitter maps a delay to its randomized value. Replaced in tests.
	jitter func(time.Duration) time.Duration
}

// NewPolicy creates a policy with the counter at zero.
func NewPolicy(cfg Config) *Policy {
	strategy := cfg.Strategy
	if strategy == nil {
		switch cfg.Kind {
		case KindExponential:
			strategy = Exponential(cfg.Delay, cfg.MaxDelay)
		default:
			strategy = Fixed(cfg.Delay)
		}
	}

	return &Policy{
		cfg:      cfg,
		strategy: strategy,
		jitter:   halfToOneAndHalf,
	}
}

// Next consumes one attempt. ok is false when the budget is spent, in which
// case the counter is left unchanged.
func (p *Policy) Next() (attempt int, delay time.Duration, ok bool) {
	if p.Exhausted() {
		return p.attempts, 0, false
	}

	p.attempts++
	base := p.strategy(p.attempts, p.prev)
	if base < 0 {
		base = 0
	}
	p.prev = base

	delay = base
	if p.cfg.Jitter && delay > 0 {
		delay = p.jitter(delay)
	}

	return p.attempts, delay, true
}

// Exhausted reports whether no attempts remain.
func (p *Policy) Exhausted() bool {
	if p.cfg.MaxAttempts < 0 {
		return false
	}
	return p.attempts >= p.cfg.MaxAttempts
}

// Reset clears the counter, ending the incident.
func (p *Policy) Reset() {
	p.attempts = 0
	p.prev = 0
}

// Attempts returns the number of attempts consumed in this incident.
func (p *Policy) Attempts() int {
	return p.attempts
}

// MaxAttempts returns the configured budget.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// halfToOneAndHalf spreads d over [0.5d, 1.5d).
func halfToOneAndHalf(d time.Duration) time.Duration {
	j := time.Duration(rand.Int64N(int64(d)))
	if j > maxDuration-d/2 {
		return maxDuration
	}
	return d/2 + j
}
