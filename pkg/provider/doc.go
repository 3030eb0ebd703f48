// Package provider is the client side of the identity provider.
//
// Client talks to the provider gateway: a JSON API wrapping every answer in
// an {"ok", "result", "error_code", "description", "parameters"} envelope.
// It covers the connection check, interactive sign-in and the structured
// per-gift lookup. PageFetcher downloads public gift pages with colly for
// the scrape fallback.
//
// HTTP statuses map onto pkg/errors types. A 429 becomes a rate limit error
// carrying the provider's Retry-After wait.
package provider
