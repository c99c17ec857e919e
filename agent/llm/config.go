package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	openrouterx "github.com/tanpawarit/pharmacy-concierge/pkg/openrouter"
)

type Provider string

// DefaultMaxCompletionToken leaves room for a full qualified-lead reply.
const DefaultMaxCompletionToken = 2000

const (
	ProviderAuto       Provider = "auto"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
	ProviderNone       Provider = "none"
)

// Config is read with the OPENROUTER prefix. Per-role overrides fall back to
// Model / Temperature when empty or negative.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"openai/gpt-4o-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ExtractionModel       string  `envconfig:"EXTRACTION_MODEL" split_words:"true"`
	ResponderModel        string  `envconfig:"RESPONDER_MODEL" split_words:"true"`
	ExtractionTemperature float32 `envconfig:"EXTRACTION_TEMPERATURE" split_words:"true" default:"0.1"`
	ResponderTemperature  float32 `envconfig:"RESPONDER_TEMPERATURE" split_words:"true" default:"0.7"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	var override string
	var overrideTemp float32 = -1
	switch agentType {
	case contractx.AgentTypeExtractor:
		override, overrideTemp = c.ExtractionModel, c.ExtractionTemperature
	case contractx.AgentTypeResponder:
		override, overrideTemp = c.ResponderModel, c.ResponderTemperature
	}
	if v := strings.TrimSpace(override); v != "" {
		modelName = v
	}
	if overrideTemp >= 0 {
		temp = overrideTemp
	}

	maxCompletionToken := c.MaxCompletionToken
	if maxCompletionToken <= 0 {
		maxCompletionToken = DefaultMaxCompletionToken
	}
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// GeminiConfig is read with the GEMINI prefix.
type GeminiConfig struct {
	APIKey      string  `envconfig:"API_KEY" split_words:"true"`
	Model       string  `envconfig:"MODEL" split_words:"true" default:"gemini-2.0-flash"`
	Temperature float32 `envconfig:"TEMPERATURE" split_words:"true" default:"0.1"`
	MaxTokens   int32   `envconfig:"MAX_TOKENS" split_words:"true" default:"2000"`
}

func (c GeminiConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: gemini api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: gemini model is required", contractx.ErrValidation)
	}
	return nil
}

// Resolve picks the concrete provider for auto: OpenRouter when its key is
// set, then Gemini, otherwise none.
func Resolve(p Provider, or Config, gem GeminiConfig) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(string(p)))) {
	case "", ProviderAuto:
		if strings.TrimSpace(or.APIKey) != "" {
			return ProviderOpenRouter, nil
		}
		if strings.TrimSpace(gem.APIKey) != "" {
			return ProviderGemini, nil
		}
		return ProviderNone, nil
	case ProviderOpenRouter:
		return ProviderOpenRouter, or.Validate()
	case ProviderGemini:
		return ProviderGemini, gem.Validate()
	case ProviderNone:
		return ProviderNone, nil
	default:
		return "", fmt.Errorf("%w: unknown llm provider %q", contractx.ErrValidation, p)
	}
}
