// Package ratelimit provides the request limiters consulted before key
// material is handed out.
//
// Limiter is a leaky token bucket per key (golang.org/x/time/rate), with the
// set of live buckets bounded by an LRU cache. Unlimited never denies.
package ratelimit
