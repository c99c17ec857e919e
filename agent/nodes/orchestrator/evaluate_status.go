package orchestratornode

import (
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

// EvaluateStatus applies the qualification and exit rules. When both fire in
// the same turn the session qualifies.
func EvaluateStatus(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.ExtractionFailed() {
		return in, nil
	}

	var next statex.Status
	switch {
	case len(in.Session.MissingRequired(in.Schema.RequiredFields())) == 0:
		next = statex.StatusQualified
	case extractionx.IsExit(in.Extraction):
		next = statex.StatusAbandoned
	default:
		return in, nil
	}

	if err := in.Session.Transition(next, in.Now); err != nil {
		return nil, err
	}
	in.Outcome = next
	log.Info().Str("session_id", in.SessionID).Str("status", string(next)).Msg("session status changed")
	return in, nil
}
