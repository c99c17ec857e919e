package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

// ExtractFields runs extraction on the caller's message. Extractor errors are
// recorded on the state, not returned; the turn still completes.
func ExtractFields(
	ctx context.Context,
	in *GraphState,
	extractor contractx.Extractor,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if extractor == nil {
		in.ExtractionErr = fmt.Errorf("%w: no extractor configured", contractx.ErrExtractionUnavailable)
		return in, nil
	}

	result, err := extractor.Extract(ctx, in.Schema, in.Text)
	in.Extraction = result
	in.ExtractionErr = err
	if err == nil && result.Degraded && len(result.Fields) == 0 {
		in.ExtractionErr = fmt.Errorf("%w: schema %s", contractx.ErrExtractionDegraded, in.Schema.Name)
	}

	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("session_id", in.SessionID).
		Str("schema", in.Schema.Name).
		Int("fields", len(result.Fields)).
		Bool("degraded", result.Degraded).
		Msg("fields extracted")
	return in, nil
}
