// Package connection keeps a client's transport connection alive.
//
// Manager dials on demand and drops a connection once it fails, so the next
// request reconnects. Dials and request retries are paced by Backoff:
//
//  1. Initial delay: 50 milliseconds
//  2. Exponential increase: 100ms, 200ms, 400ms, ...
//  3. Maximum delay: 2 seconds
//  4. Reset to the initial delay after a success
//
// # Jitter
//
// To keep several clients from retrying in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
