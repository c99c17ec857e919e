package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

func LoadSession(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	schemas map[string]contractx.ExtractionSchema,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	s, err := store.Load(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", in.SessionID, err)
	}
	if s.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", statex.ErrSessionCompleted, s.ID)
	}

	schema, ok := schemas[s.Schema]
	if !ok {
		return nil, fmt.Errorf("%w: unknown extraction schema %q", contractx.ErrValidation, s.Schema)
	}

	in.Session = s
	in.Schema = schema
	return in, nil
}
