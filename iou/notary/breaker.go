package notary

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/circuitbreaker"
	"github.com/LerianStudio/lib-iou/iou/state"
)

// BreakerService guards a remote Service with a circuit breaker. Answers
// the notary gave on purpose (conflicts, refusals) count as healthy calls;
// only transport faults and internal failures trip the breaker.
type BreakerService struct {
	next    Service
	manager circuitbreaker.Manager
	name    string
}

var _ Service = (*BreakerService)(nil)

// NewBreakerService registers breaker name on manager with cfg and wraps
// next. A nil cfg.IsSuccessful is replaced by IsHealthyOutcome.
func NewBreakerService(next Service, manager circuitbreaker.Manager, name string, cfg circuitbreaker.Config) *BreakerService {
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = IsHealthyOutcome
	}

	manager.GetOrCreate(name, cfg)

	return &BreakerService{next: next, manager: manager, name: name}
}

// IsHealthyOutcome reports whether err is a deliberate notary answer.
func IsHealthyOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrWrongNotary) ||
		errors.Is(err, ErrInvalidRequest)
}

func (b *BreakerService) Notarize(ctx context.Context, stx state.SignedTransition) (state.NotarizedTransition, error) {
	result, err := b.manager.Execute(b.name, func() (any, error) {
		return b.next.Notarize(ctx, stx)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		return state.NotarizedTransition{}, err
	}

	notarized, ok := result.(state.NotarizedTransition)
	if !ok {
		return state.NotarizedTransition{}, fmt.Errorf("%w: unexpected result %T", ErrUnavailable, result)
	}

	return notarized, nil
}
