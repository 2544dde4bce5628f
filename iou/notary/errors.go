package notary

import (
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/state"
)

var (
	// ErrConflict is returned when an input was already consumed by a
	// different transition.
	ErrConflict = errors.New("input state already consumed")
	// ErrWrongNotary is returned when a transition designates another notary.
	ErrWrongNotary = errors.New("transition designates another notary")
	// ErrInvalidRequest is returned when a transition is not fully and
	// validly signed.
	ErrInvalidRequest = errors.New("invalid notarization request")
	// ErrUnavailable is returned when the notary could not be reached or
	// failed internally.
	ErrUnavailable = errors.New("notary unavailable")
)

// ConflictError reports the first input found consumed by another transition.
type ConflictError struct {
	Ref        state.StateRef `json:"ref"`
	ConsumedBy string         `json:"consumedBy"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s consumed by %s", ErrConflict, e.Ref, e.ConsumedBy)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
