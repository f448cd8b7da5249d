// Package client is the Go client for the Wisata API. Its job beyond plain
// HTTP is auth resilience: when a request bounces off the gateway with 401,
// concurrent callers are funneled into a single POST /auth/refresh, then
// replayed. One refresh per expiry, no matter how many requests hit it.
package client
