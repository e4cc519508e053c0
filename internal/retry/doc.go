// Package retry decides whether and when a failed connection is re-opened.
//
// A Policy tracks the attempt counter for one incident (the span between
// losing a connection and becoming ready again) and computes the delay before
// each attempt:
//
//	p := retry.NewPolicy(retry.Config{MaxAttempts: 3, Delay: 100 * time.Millisecond})
//	attempt, delay, ok := p.Next()
//	if !ok {
//	    // budget exhausted
//	}
//
// A Policy is not safe for concurrent use. The connection manager owns one and
// only touches it from its event loop.
//
// Do applies the same backoff rules to a plain function call, which is how
// token fetches are retried.
package retry
