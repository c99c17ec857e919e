package orchestratornode

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, s *statex.Session) []contractx.ActionResult
}

func CompleteSession(
	ctx context.Context,
	in *GraphState,
	dispatcher Dispatcher,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.Outcome == "" {
		return in, nil
	}
	if err := Complete(ctx, in.Session, dispatcher, in.Now); err != nil {
		return nil, err
	}
	return in, nil
}

// Complete moves a qualified or abandoned session to completed and runs the
// dispatcher. Follow-ups are dispatched at most once per session.
func Complete(ctx context.Context, s *statex.Session, dispatcher Dispatcher, now time.Time) error {
	if s.Status != statex.StatusCompleted {
		if err := s.Transition(statex.StatusCompleted, now); err != nil {
			return err
		}
	}
	if s.Dispatched {
		return nil
	}
	s.Dispatched = true
	if dispatcher != nil {
		s.FollowUps = dispatcher.Dispatch(ctx, s.Snapshot())
	}
	return nil
}
