// Package backoff computes jittered exponential delays and retries
// operations with them.
package backoff
