package state

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

// Session is the in-memory source of truth for one caller interaction.
// - History is append-only.
// - ExtractedFields is last-write-wins per key.
// - Status only moves forward: active -> qualified|abandoned -> completed.
type Session struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`

	Customer          *contractx.CustomerRecord `json:"customer,omitempty"`
	Branch            Branch                    `json:"branch"`
	Schema            string                    `json:"schema"`
	DirectoryDegraded bool                      `json:"directory_degraded,omitempty"`

	History         []Turn            `json:"history,omitempty"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
	Status          Status            `json:"status"`
	// Outcome keeps qualified or abandoned after Status moves to completed.
	Outcome Status `json:"outcome,omitempty"`

	FollowUps  []contractx.ActionResult `json:"follow_ups,omitempty"`
	Dispatched bool                     `json:"dispatched,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

type Status string

const (
	StatusActive    Status = "active"
	StatusQualified Status = "qualified"
	StatusAbandoned Status = "abandoned"
	StatusCompleted Status = "completed"
)

type Branch string

const (
	BranchKnown   Branch = "known"
	BranchUnknown Branch = "unknown"
)

type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

var (
	ErrInvalidSession     = errors.New("session id is empty")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCustomerReassigned = errors.New("customer record already set")
	ErrSessionCompleted   = errors.New("session is completed")
)

// allowedTransitions lists the only forward edges of the status machine.
var allowedTransitions = map[Status][]Status{
	StatusActive:    {StatusQualified, StatusAbandoned},
	StatusQualified: {StatusCompleted},
	StatusAbandoned: {StatusCompleted},
}

func NewSession(id, phone string, now time.Time) *Session {
	return &Session{
		ID:              id,
		Phone:           phone,
		Branch:          BranchUnknown,
		ExtractedFields: make(map[string]string, 8),
		Status:          StatusActive,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// SetCustomer binds the directory record. It can only happen once.
func (s *Session) SetCustomer(rec contractx.CustomerRecord) error {
	if s.Customer != nil {
		return ErrCustomerReassigned
	}
	cloned := rec.Clone()
	s.Customer = &cloned
	s.Branch = BranchKnown
	return nil
}

func (s *Session) IsKnown() bool {
	return s != nil && s.Customer != nil
}

func (s *Session) AppendTurn(speaker Speaker, text string, now time.Time) {
	s.History = append(s.History, Turn{Speaker: speaker, Text: text, At: now.UTC()})
	s.Touch(now)
}

// MergeFields applies extracted values, later values overwriting earlier ones.
// Empty values are skipped so a field never regresses to blank.
func (s *Session) MergeFields(fields map[string]contractx.FieldValue) int {
	if s.ExtractedFields == nil {
		s.ExtractedFields = make(map[string]string, len(fields))
	}
	merged := 0
	for k, v := range fields {
		val := strings.TrimSpace(v.Value)
		if val == "" {
			continue
		}
		s.ExtractedFields[k] = val
		merged++
	}
	return merged
}

func (s *Session) Field(name string) string {
	if s == nil || s.ExtractedFields == nil {
		return ""
	}
	return s.ExtractedFields[name]
}

// MissingRequired returns required fields that are still empty, in schema order.
func (s *Session) MissingRequired(required []string) []string {
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(s.Field(name)) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func (s *Session) Transition(to Status, now time.Time) error {
	for _, next := range allowedTransitions[s.Status] {
		if next == to {
			s.Status = to
			if to == StatusQualified || to == StatusAbandoned {
				s.Outcome = to
			}
			if to == StatusCompleted {
				s.CompletedAt = now.UTC()
			}
			s.Touch(now)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
}

func (s *Session) IsCompleted() bool {
	return s != nil && s.Status == StatusCompleted
}

// CallerTurns counts caller messages in the history.
func (s *Session) CallerTurns() int {
	n := 0
	for _, t := range s.History {
		if t.Speaker == SpeakerCaller {
			n++
		}
	}
	return n
}

// CallerName is how the assistant addresses the caller.
func (s *Session) CallerName() string {
	if s.Customer != nil && strings.TrimSpace(s.Customer.PharmacyName) != "" {
		return s.Customer.PharmacyName
	}
	if name := s.Field("contact_person"); name != "" {
		return name
	}
	return "there"
}

// Snapshot returns a deep copy safe to hand to collaborators.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Customer != nil {
		c := s.Customer.Clone()
		out.Customer = &c
	}
	out.History = append([]Turn(nil), s.History...)
	out.ExtractedFields = maps.Clone(s.ExtractedFields)
	out.FollowUps = append([]contractx.ActionResult(nil), s.FollowUps...)
	return &out
}

func (s *Session) Summary() contractx.SessionSummary {
	return contractx.SessionSummary{
		SessionID:       s.ID,
		Status:          string(s.Status),
		Outcome:         string(s.Outcome),
		CallerName:      s.CallerName(),
		ExtractedFields: maps.Clone(s.ExtractedFields),
		FollowUps:       append([]contractx.ActionResult(nil), s.FollowUps...),
		Turns:           s.CallerTurns(),
		CompletedAt:     s.CompletedAt,
	}
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidSession
	}
	switch s.Status {
	case StatusActive, StatusQualified, StatusAbandoned, StatusCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s.Status)
	}
	if s.Branch == BranchKnown && s.Customer == nil {
		return fmt.Errorf("known branch without customer record")
	}
	if s.Dispatched && s.Status != StatusCompleted {
		return fmt.Errorf("follow-ups dispatched before completion")
	}
	return nil
}
