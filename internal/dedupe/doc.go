// Package dedupe remembers the outcome of keyed operations for a time window
// so that a retried request returns the original result instead of repeating
// its side effects.
//
// The HTTP layer uses it for the Idempotency-Key header on connect: a browser
// that retries a connect after a network hiccup gets the session id from the
// first attempt rather than a second child process.
package dedupe
