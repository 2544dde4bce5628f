// Package errgroup runs related goroutines under one cancellation context.
//
// The first error cancels the context shared by the group. Panics are
// recovered, logged and reported as errors instead of crashing the process.
package errgroup
