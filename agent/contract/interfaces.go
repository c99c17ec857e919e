package contract

import "context"

type Directory interface {
	Lookup(ctx context.Context, phone string) (*CustomerRecord, error)
}

type Extractor interface {
	Extract(ctx context.Context, schema ExtractionSchema, conversationText string) (ExtractionResult, error)
}

// Renderer is the read side of the template store.
type Renderer interface {
	Render(ns string, name string, vars map[string]any) (string, error)
}

type Responder interface {
	Respond(ctx context.Context, req ResponderRequest) (string, error)
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponderRequest struct {
	SystemPrompt string     `json:"system_prompt"`
	History      []ChatTurn `json:"history,omitempty"`
	UserMessage  string     `json:"user_message"`
}

type EmailSender interface {
	SendEmail(ctx context.Context, address string, templateName string, vars map[string]string) (string, error)
}

type CallbackScheduler interface {
	ScheduleCallback(ctx context.Context, phone string, window string) (string, error)
}

type CRMUpdater interface {
	UpdateCRM(ctx context.Context, customerID string, fields map[string]string) (string, error)
}
