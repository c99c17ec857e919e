package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"google.golang.org/genai"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	openrouterx "github.com/tanpawarit/pharmacy-concierge/pkg/openrouter"
)

var ErrEmptyCompletion = errors.New("model returned no content")

// OpenAIBackend runs extraction prompts through an OpenAI-compatible chat
// completions endpoint (OpenRouter by default).
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

var _ extractionx.Backend = (*OpenAIBackend)(nil)

func NewOpenAIBackend(cfg openrouterx.Config) (*OpenAIBackend, error) {
	client := openrouterx.NewClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	b := &OpenAIBackend{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: float64(cfg.Temperature),
	}
	if cfg.MaxCompletionToken != nil && *cfg.MaxCompletionToken > 0 {
		b.maxTokens = int64(*cfg.MaxCompletionToken)
	}
	return b, nil
}

func (b *OpenAIBackend) Generate(ctx context.Context, req extractionx.Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(b.temperature),
	}
	if b.maxTokens > 0 {
		params.MaxTokens = openai.Int(b.maxTokens)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", contractx.ErrModelInvoke, b.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: %v", contractx.ErrModelInvoke, b.model, ErrEmptyCompletion)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GeminiBackend runs extraction prompts through the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	cfg    GeminiConfig
}

var _ extractionx.Backend = (*GeminiBackend)(nil)

func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, cfg: cfg}, nil
}

func (b *GeminiBackend) Generate(ctx context.Context, req extractionx.Request) (string, error) {
	conf := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(b.cfg.Temperature),
		ResponseMIMEType: "application/json",
	}
	if b.cfg.MaxTokens > 0 {
		conf.MaxOutputTokens = b.cfg.MaxTokens
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.cfg.Model, genai.Text(req.Prompt), conf)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", contractx.ErrModelInvoke, b.cfg.Model, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %s: %v", contractx.ErrModelInvoke, b.cfg.Model, ErrEmptyCompletion)
	}
	return text, nil
}
