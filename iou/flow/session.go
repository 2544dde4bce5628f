package flow

import (
	"context"
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
)

// SessionState is the state of one counterparty signing session.
type SessionState string

const (
	StateInitiated SessionState = "INITIATED"
	StateSent      SessionState = "SENT"
	StateVerifying SessionState = "VERIFYING"
	StateSigned    SessionState = "SIGNED"
	StateRejected  SessionState = "REJECTED"
	StateTimedOut  SessionState = "TIMED_OUT"
	StateFailed    SessionState = "FAILED"
	// StateCollected is reached by the attempt once every session signed.
	StateCollected SessionState = "COLLECTED"
)

var sessionTransitions = map[SessionState][]SessionState{
	StateInitiated: {StateSent, StateFailed, StateTimedOut},
	StateSent:      {StateSigned, StateRejected, StateTimedOut, StateFailed},
	StateVerifying: {StateSigned, StateRejected, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s SessionState) Terminal() bool {
	_, ok := sessionTransitions[s]
	return !ok
}

// sessionFSM tracks one session and reports every move to logs and metrics.
type sessionFSM struct {
	state   SessionState
	logger  log.Logger
	metrics *opentelemetry.FlowMetrics
}

func newSessionFSM(initial SessionState, logger log.Logger, metrics *opentelemetry.FlowMetrics) *sessionFSM {
	return &sessionFSM{state: initial, logger: logger, metrics: metrics}
}

func (f *sessionFSM) move(ctx context.Context, to SessionState) error {
	allowed := false

	for _, next := range sessionTransitions[f.state] {
		if next == to {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("%w: session cannot move from %s to %s", ErrProtocol, f.state, to)
	}

	f.logger.Log(ctx, log.LevelDebug, "session state changed", log.String("from", string(f.state)), log.String("to", string(to)))
	f.state = to

	if to.Terminal() {
		f.metrics.RecordSession(ctx, string(to))
	}

	return nil
}

func (f *sessionFSM) State() SessionState {
	return f.state
}
