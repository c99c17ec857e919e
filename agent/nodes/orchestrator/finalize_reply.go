package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Session == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: empty reply", contractx.ErrValidation)
	}
	return GraphOutput{Reply: contractx.TurnReply{
		SessionID: in.Session.ID,
		Reply:     reply,
		Status:    string(in.Session.Status),
		Schema:    in.Session.Schema,
	}}, nil
}
