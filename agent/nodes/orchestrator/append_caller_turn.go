package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

func AppendCallerTurn(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	in.Session.AppendTurn(statex.SpeakerCaller, in.Text, in.Now)
	return in, nil
}
