package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrBreakerNotFound is returned by Execute for a name never passed to GetOrCreate.
	ErrBreakerNotFound = errors.New("circuit breaker not found")
	// ErrOpen is returned while a breaker rejects calls.
	ErrOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests is returned when a half-open breaker has no probe slots left.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Manager owns named circuit breakers.
type Manager interface {
	// GetOrCreate returns the breaker for name, creating it with config once.
	GetOrCreate(name string, config Config) CircuitBreaker
	// Execute runs fn through the named breaker.
	Execute(name string, fn func() (any, error)) (any, error)
	// GetState returns the current state, StateUnknown for unknown names.
	GetState(name string) State
	// GetCounts returns the counts of the current generation.
	GetCounts(name string) Counts
	// IsHealthy reports whether the breaker is closed.
	IsHealthy(name string) bool
	// Reset replaces the breaker with a fresh closed one.
	Reset(name string)
	// RegisterStateChangeListener subscribes listener to state changes.
	RegisterStateChangeListener(listener StateChangeListener)
}

// CircuitBreaker is one named breaker.
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() State
	Counts() Counts
}

// Config holds circuit breaker configuration
type Config struct {
	MaxRequests         uint32        // Max requests in half-open state
	Interval            time.Duration // Closed-state window after which counts reset
	Timeout             time.Duration // Open-state duration before half-open
	ConsecutiveFailures uint32        // Consecutive failures to trigger open state
	FailureRatio        float64       // Failure ratio to trigger open (e.g., 0.5 for 50%)
	MinRequests         uint32        // Min requests before checking ratio

	// IsSuccessful classifies a returned error. Nil counts only nil as success.
	IsSuccessful func(err error) bool
}

// State represents circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts represents circuit breaker statistics
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeListener is notified when circuit breaker state changes
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}

// StateChangeFunc adapts a function to StateChangeListener.
type StateChangeFunc func(name string, from State, to State)

// OnStateChange calls f.
func (f StateChangeFunc) OnStateChange(name string, from State, to State) {
	f(name, from, to)
}

type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func (cb *circuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

func (cb *circuitBreaker) State() State {
	return convertState(cb.breaker.State())
}

func (cb *circuitBreaker) Counts() Counts {
	return convertCounts(cb.breaker.Counts())
}

func convertState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

func convertCounts(counts gobreaker.Counts) Counts {
	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
