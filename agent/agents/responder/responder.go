package responder

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	llmx "github.com/tanpawarit/pharmacy-concierge/agent/llm"
)

// Responder phrases conversational replies with a chat model.
type Responder struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Responder = (*Responder)(nil)

func New(ctx context.Context, chatModel einomodel.BaseChatModel) (*Responder, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	runner, err := compileReplyGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &Responder{runner: runner}, nil
}

// NewFromConfig builds the responder on the OpenRouter model configured for
// the responder role.
func NewFromConfig(ctx context.Context, cfg llmx.Config) (*Responder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := cfg.OpenRouterFor(contractx.AgentTypeResponder)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create responder model: %v", contractx.ErrModelInvoke, err)
	}
	return New(ctx, chatModel)
}

func (r *Responder) Respond(ctx context.Context, req contractx.ResponderRequest) (string, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return "", fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	history := make([]*schema.Message, 0, len(req.History))
	for _, t := range req.History {
		switch t.Role {
		case string(schema.Assistant):
			history = append(history, schema.AssistantMessage(t.Content, nil))
		default:
			history = append(history, schema.UserMessage(t.Content))
		}
	}

	msg, err := r.runner.Invoke(ctx, map[string]any{
		"system":  req.SystemPrompt,
		"history": history,
		"input":   req.UserMessage,
	})
	if err != nil {
		return "", fmt.Errorf("%w: responder invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: responder returned empty content", contractx.ErrModelInvoke)
	}
	return strings.TrimSpace(msg.Content), nil
}
