package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = statex.ErrInvalidSession
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	Reply contractx.TurnReply
}

// GraphState is threaded through every node of one turn.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.Session
	Schema  contractx.ExtractionSchema

	Extraction    contractx.ExtractionResult
	ExtractionErr error
	Merged        int

	// Outcome is set when this turn moved the session out of active.
	Outcome statex.Status
	Reply   string
}

// ExtractionFailed is true when the turn produced nothing usable.
func (g *GraphState) ExtractionFailed() bool {
	return g.ExtractionErr != nil || (g.Extraction.Degraded && len(g.Extraction.Fields) == 0)
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}
