package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	directoryx "github.com/tanpawarit/pharmacy-concierge/agent/directory"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

// responderHistoryTurns bounds how much prior conversation the responder sees.
const responderHistoryTurns = 6

// Company identifies the business the assistant speaks for.
type Company struct {
	Name  string
	Phone string
}

// Assessment bands by estimated monthly prescription volume.
const (
	BandHigh    = "high"
	BandMedium  = "medium"
	BandLow     = "low"
	BandUnknown = "unknown"
)

// RequiredTemplates lists every template the orchestrator can render.
func RequiredTemplates() []string {
	keys := []string{
		"responses/new_lead_greeting",
		"responses/directory_unavailable_greeting",
		"responses/follow_up_question",
		"responses/clarification",
		"responses/apology",
		"responses/lead_qualified",
		"responses/request_confirmed",
		"responses/farewell",
		"system/known_system",
		"system/unknown_system",
	}
	for _, t := range []contractx.Tier{contractx.TierNew, contractx.TierRegular, contractx.TierReturning} {
		keys = append(keys, "responses/"+string(t)+"_customer_greeting")
	}
	for _, b := range []string{BandHigh, BandMedium, BandLow, BandUnknown} {
		keys = append(keys, "responses/assessment_"+b)
	}
	return keys
}

// QuestionTemplates lists the ask_<field> templates the given schemas need.
func QuestionTemplates(schemas map[string]contractx.ExtractionSchema) []string {
	var keys []string
	for _, s := range schemas {
		for _, f := range s.RequiredFields() {
			keys = append(keys, "responses/ask_"+f)
		}
	}
	return keys
}

func ComposeReply(
	ctx context.Context,
	in *GraphState,
	renderer contractx.Renderer,
	responder contractx.Responder,
	company Company,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	reply, err := composeReply(ctx, in, renderer, responder, company)
	if err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("compose reply failed")
		reply, err = renderer.Render(promptx.NamespaceResponses, "apology", map[string]any{"company_phone": company.Phone})
		if err != nil {
			return nil, err
		}
	}
	in.Reply = reply
	return in, nil
}

func composeReply(
	ctx context.Context,
	in *GraphState,
	renderer contractx.Renderer,
	responder contractx.Responder,
	company Company,
) (string, error) {
	s := in.Session

	switch in.Outcome {
	case statex.StatusQualified:
		return qualifiedReply(ctx, in, renderer, responder, company)
	case statex.StatusAbandoned:
		return renderer.Render(promptx.NamespaceResponses, "farewell", map[string]any{
			"company_name": company.Name,
			"caller_name":  s.CallerName(),
		})
	}

	if in.ExtractionFailed() {
		if errors.Is(in.ExtractionErr, contractx.ErrExtractionUnavailable) {
			return renderer.Render(promptx.NamespaceResponses, "apology", map[string]any{"company_phone": company.Phone})
		}
		question, err := nextQuestion(renderer, s, in.Schema)
		if err != nil {
			return "", err
		}
		return renderer.Render(promptx.NamespaceResponses, "clarification", map[string]any{"question": question})
	}

	question, err := nextQuestion(renderer, s, in.Schema)
	if err != nil {
		return "", err
	}
	return renderer.Render(promptx.NamespaceResponses, "follow_up_question", map[string]any{"question": question})
}

// nextQuestion asks for the first required field that is still empty.
func nextQuestion(renderer contractx.Renderer, s *statex.Session, schema contractx.ExtractionSchema) (string, error) {
	required := schema.RequiredFields()
	missing := s.MissingRequired(required)
	if len(missing) == 0 {
		missing = required
	}
	if len(missing) == 0 {
		return "", fmt.Errorf("%w: schema %s has no required fields", contractx.ErrValidation, schema.Name)
	}
	return renderer.Render(promptx.NamespaceResponses, "ask_"+missing[0], nil)
}

func qualifiedReply(
	ctx context.Context,
	in *GraphState,
	renderer contractx.Renderer,
	responder contractx.Responder,
	company Company,
) (string, error) {
	s := in.Session
	vars := ReplyVars(s, company)
	assessment, err := Assessment(renderer, s, company)
	if err != nil {
		return "", err
	}
	vars["assessment"] = assessment

	if responder != nil {
		reply, err := respond(ctx, in, renderer, responder, vars)
		if err == nil && reply != "" {
			return reply, nil
		}
		log.Warn().Err(err).Str("session_id", s.ID).Msg("responder failed, using template reply")
	}

	if s.IsKnown() {
		return renderer.Render(promptx.NamespaceResponses, "request_confirmed", vars)
	}
	return renderer.Render(promptx.NamespaceResponses, "lead_qualified", vars)
}

func respond(
	ctx context.Context,
	in *GraphState,
	renderer contractx.Renderer,
	responder contractx.Responder,
	vars map[string]any,
) (string, error) {
	s := in.Session
	system, err := renderer.Render(promptx.NamespaceSystem, string(s.Branch)+"_system", vars)
	if err != nil {
		return "", err
	}

	// the last history entry is the caller turn being answered
	prior := s.History
	if n := len(prior); n > 0 && prior[n-1].Speaker == statex.SpeakerCaller {
		prior = prior[:n-1]
	}
	if len(prior) > responderHistoryTurns {
		prior = prior[len(prior)-responderHistoryTurns:]
	}
	history := make([]contractx.ChatTurn, 0, len(prior))
	for _, t := range prior {
		role := "user"
		if t.Speaker == statex.SpeakerAssistant {
			role = "assistant"
		}
		history = append(history, contractx.ChatTurn{Role: role, Content: t.Text})
	}

	reply, err := responder.Respond(ctx, contractx.ResponderRequest{
		SystemPrompt: system,
		History:      history,
		UserMessage:  in.Text,
	})
	return strings.TrimSpace(reply), err
}

// ReplyVars is the variable set shared by greetings, confirmations and
// responder system prompts.
func ReplyVars(s *statex.Session, company Company) map[string]any {
	vars := map[string]any{
		"company_name":    company.Name,
		"company_phone":   company.Phone,
		"caller_name":     s.CallerName(),
		"contact_person":  orDefault(s.Field("contact_person"), "there"),
		"request":         orDefault(s.Field("request"), "your request"),
		"pharmacy_name":   orDefault(s.Field("pharmacy_name"), "your pharmacy"),
		"location":        leadLocation(s),
		"total_rx_volume": "0",
		"top_drugs":       "none on file",
	}
	if c := s.Customer; c != nil {
		vars["pharmacy_name"] = c.PharmacyName
		vars["location"] = orDefault(c.Meta(directoryx.MetaLocation), "your area")
		vars["total_rx_volume"] = orDefault(c.Meta(directoryx.MetaTotalRxVolume), "0")
		vars["top_drugs"] = orDefault(c.Meta(directoryx.MetaTopDrugs), "none on file")
	}
	return vars
}

func leadLocation(s *statex.Session) string {
	city, state := s.Field("city"), s.Field("state")
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	case state != "":
		return state
	default:
		return "your area"
	}
}

// Assessment renders the lead assessment line for the caller's volume band.
func Assessment(renderer contractx.Renderer, s *statex.Session, company Company) (string, error) {
	volume := s.Field("estimated_rx_volume")
	return renderer.Render(promptx.NamespaceResponses, "assessment_"+AssessmentBand(volume), map[string]any{
		"estimated_rx_volume": volume,
		"company_name":        company.Name,
	})
}

// AssessmentBand classifies the first number found in volume: 100 and above
// is high, 50 and above medium, anything else low. No number is unknown.
func AssessmentBand(volume string) string {
	n, ok := firstNumber(volume)
	switch {
	case !ok:
		return BandUnknown
	case n >= 100:
		return BandHigh
	case n >= 50:
		return BandMedium
	default:
		return BandLow
	}
}

func firstNumber(s string) (int, bool) {
	var digits strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == ',' && digits.Len() > 0:
		case digits.Len() > 0:
			n, err := strconv.Atoi(digits.String())
			return n, err == nil
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits.String())
	return n, err == nil
}

// Greeting renders the opening message for a new session.
func Greeting(renderer contractx.Renderer, s *statex.Session, company Company) (string, error) {
	vars := ReplyVars(s, company)
	switch {
	case s.IsKnown():
		tier := s.Customer.Tier
		if !tier.Valid() {
			tier = contractx.TierReturning
		}
		return renderer.Render(promptx.NamespaceResponses, string(tier)+"_customer_greeting", vars)
	case s.DirectoryDegraded:
		return renderer.Render(promptx.NamespaceResponses, "directory_unavailable_greeting", vars)
	default:
		return renderer.Render(promptx.NamespaceResponses, "new_lead_greeting", vars)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
