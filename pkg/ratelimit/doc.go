// Package ratelimit paces traffic to the identity provider.
//
// Controller gates batch dispatch with a steady delay after every batch and
// a provider-imposed wait after a rate limit signal. RequestLimiter throttles
// individual HTTP requests with golang.org/x/time/rate.
//
// All waiting goes through a Clock. RealClock sleeps on a timer; FakeClock
// advances simulated time instantly so tests can assert on waits.
package ratelimit
