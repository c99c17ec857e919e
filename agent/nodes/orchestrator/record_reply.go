package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

func RecordReply(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Session.AppendTurn(statex.SpeakerAssistant, in.Reply, in.Now)
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}
