package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
)

// Request is what a backend sees for one extraction.
type Request struct {
	Schema string
	Prompt string
	Input  string
}

// Backend produces raw text for an extraction prompt.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

func (f BackendFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Engine turns free text into schema fields using a Backend.
type Engine struct {
	backend     Backend
	renderer    contractx.Renderer
	companyName string
}

var _ contractx.Extractor = (*Engine)(nil)

func NewEngine(backend Backend, renderer contractx.Renderer, companyName string) *Engine {
	return &Engine{backend: backend, renderer: renderer, companyName: companyName}
}

// Extract never returns a nil-fields result. A backend failure yields a
// degraded result together with an error wrapping ErrExtractionUnavailable.
func (e *Engine) Extract(ctx context.Context, schema contractx.ExtractionSchema, conversationText string) (contractx.ExtractionResult, error) {
	degraded := contractx.ExtractionResult{
		Schema:   schema.Name,
		Fields:   map[string]contractx.FieldValue{},
		Missing:  schema.RequiredFields(),
		Degraded: true,
	}

	if e == nil || e.backend == nil {
		return degraded, fmt.Errorf("%w: no backend configured", contractx.ErrExtractionUnavailable)
	}

	prompt, err := e.renderer.Render(promptx.NamespaceExtraction, schema.Prompt, map[string]any{
		"fields":       describeFields(schema),
		"user_message": conversationText,
		"company_name": e.companyName,
	})
	if err != nil {
		return degraded, fmt.Errorf("render extraction prompt %s: %w", schema.Prompt, err)
	}

	raw, err := e.backend.Generate(ctx, Request{Schema: schema.Name, Prompt: prompt, Input: conversationText})
	if err != nil {
		log.Warn().Err(err).Str("schema", schema.Name).Msg("extraction backend failed")
		return degraded, errors.Join(contractx.ErrExtractionUnavailable, err)
	}

	result := Parse(schema, raw)
	if result.Degraded {
		log.Debug().Str("schema", schema.Name).Str("raw", raw).Msg("extraction output not parseable")
	}
	return result, nil
}

// PassthroughBackend hands the caller's text straight to the parser, so
// "key: value" input works without a model.
type PassthroughBackend struct{}

func (PassthroughBackend) Generate(_ context.Context, req Request) (string, error) {
	return req.Input, nil
}

// ScriptedBackend replays canned outputs in order, then reports itself
// exhausted. Used for demos and tests.
type ScriptedBackend struct {
	mu      sync.Mutex
	outputs []string
	next    int
}

var ErrScriptExhausted = errors.New("scripted backend has no more outputs")

func NewScriptedBackend(outputs ...string) *ScriptedBackend {
	return &ScriptedBackend{outputs: append([]string(nil), outputs...)}
}

func (s *ScriptedBackend) Generate(_ context.Context, _ Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.outputs) {
		return "", ErrScriptExhausted
	}
	out := s.outputs[s.next]
	s.next++
	return out, nil
}

// Calls reports how many outputs were consumed.
func (s *ScriptedBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// IsExit reports whether the result carries the reserved exit intent.
func IsExit(r contractx.ExtractionResult) bool {
	return strings.EqualFold(strings.TrimSpace(r.Value(FieldIntent)), ExitIntent)
}
