//go:build unit

package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             50 * time.Millisecond,
		ConsecutiveFailures: 3,
		FailureRatio:        0.9,
		MinRequests:         100,
	}
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	manager := NewManager(log.NewNop())
	manager.GetOrCreate("notary", DefaultConfig())

	assert.Equal(t, StateClosed, manager.GetState("notary"))
	assert.True(t, manager.IsHealthy("notary"))
	assert.Equal(t, StateUnknown, manager.GetState("missing"))
}

func TestCircuitBreaker_ExecuteUnknown(t *testing.T) {
	manager := NewManager(nil)

	_, err := manager.Execute("missing", func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrBreakerNotFound)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	manager := NewManager(log.NewNop())
	manager.GetOrCreate("notary", fastConfig())

	changes := make(chan State, 8)
	manager.RegisterStateChangeListener(StateChangeFunc(func(_ string, _ State, to State) {
		changes <- to
	}))

	failure := errors.New("unreachable")
	for range 3 {
		_, err := manager.Execute("notary", func() (any, error) { return nil, failure })
		assert.ErrorIs(t, err, failure)
	}

	assert.Equal(t, StateOpen, manager.GetState("notary"))
	assert.False(t, manager.IsHealthy("notary"))

	called := false
	_, err := manager.Execute("notary", func() (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	select {
	case to := <-changes:
		assert.Equal(t, StateOpen, to)
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}

	time.Sleep(80 * time.Millisecond)

	result, err := manager.Execute("notary", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, manager.GetState("notary"))
}

func TestCircuitBreaker_IsSuccessfulClassifiesErrors(t *testing.T) {
	businessErr := errors.New("conflict")

	cfg := fastConfig()
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, businessErr)
	}

	manager := NewManager(log.NewNop())
	manager.GetOrCreate("notary", cfg)

	for range 5 {
		_, err := manager.Execute("notary", func() (any, error) { return nil, businessErr })
		assert.ErrorIs(t, err, businessErr)
	}

	assert.Equal(t, StateClosed, manager.GetState("notary"))
	assert.Equal(t, uint32(5), manager.GetCounts("notary").TotalSuccesses)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	manager := NewManager(log.NewNop())
	manager.GetOrCreate("notary", fastConfig())

	for range 3 {
		_, _ = manager.Execute("notary", func() (any, error) { return nil, errors.New("down") })
	}

	require.Equal(t, StateOpen, manager.GetState("notary"))

	manager.Reset("notary")

	assert.Equal(t, StateClosed, manager.GetState("notary"))
	assert.Equal(t, Counts{}, manager.GetCounts("notary"))
}
