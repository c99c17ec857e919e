package contract

import "time"

type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeExtractor    AgentType = "extractor"
	AgentTypeResponder    AgentType = "responder"
)

type Tier string

const (
	TierNew       Tier = "new"
	TierRegular   Tier = "regular"
	TierReturning Tier = "returning"
)

func (t Tier) Valid() bool {
	switch t {
	case TierNew, TierRegular, TierReturning:
		return true
	default:
		return false
	}
}

// CustomerRecord is a directory entry. The phone number keeps the format the
// directory returned it in.
type CustomerRecord struct {
	PhoneNumber  string            `json:"phone_number"`
	PharmacyName string            `json:"pharmacy_name"`
	Tier         Tier              `json:"tier"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value or "" when absent.
func (c *CustomerRecord) Meta(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

func (c CustomerRecord) Clone() CustomerRecord {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldEnum    FieldType = "enum"
	FieldBoolean FieldType = "boolean"
)

type FieldDescriptor struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Values      []string  `json:"values,omitempty" yaml:"values,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

type ExtractionSchema struct {
	Name   string            `json:"name" yaml:"name"`
	Prompt string            `json:"prompt" yaml:"prompt"`
	Fields []FieldDescriptor `json:"fields" yaml:"fields"`
}

func (s ExtractionSchema) Field(name string) (FieldDescriptor, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

func (s ExtractionSchema) RequiredFields() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

type FieldValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult holds the fields a single extraction produced. Fields the
// conversation did not mention are absent from the map.
type ExtractionResult struct {
	Schema   string                `json:"schema"`
	Fields   map[string]FieldValue `json:"fields,omitempty"`
	Missing  []string              `json:"missing,omitempty"`
	Degraded bool                  `json:"degraded,omitempty"`
	Raw      string                `json:"raw,omitempty"`
}

func (r ExtractionResult) Value(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name].Value
}

type ActionKind string

const (
	ActionEmail     ActionKind = "email"
	ActionCallback  ActionKind = "callback"
	ActionCRMUpdate ActionKind = "crmUpdate"
)

type FollowUpAction struct {
	Kind    ActionKind        `json:"kind"`
	Payload map[string]string `json:"payload,omitempty"`
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

type ActionResult struct {
	Action    FollowUpAction `json:"action"`
	Outcome   Outcome        `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
	Reference string         `json:"reference,omitempty"`
}

// TurnReply is what the driver shows after StartSession or SubmitTurn.
type TurnReply struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Status    string `json:"status"`
	Schema    string `json:"schema"`
}

type SessionSummary struct {
	SessionID       string            `json:"session_id"`
	Status          string            `json:"status"`
	Outcome         string            `json:"outcome,omitempty"`
	CallerName      string            `json:"caller_name"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
	FollowUps       []ActionResult    `json:"follow_ups,omitempty"`
	Turns           int               `json:"turns"`
	CompletedAt     time.Time         `json:"completed_at"`
}
