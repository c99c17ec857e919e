package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/pharmacy-concierge/agent/agents/orchestrator"
	responderx "github.com/tanpawarit/pharmacy-concierge/agent/agents/responder"
	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	directoryx "github.com/tanpawarit/pharmacy-concierge/agent/directory"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	followupx "github.com/tanpawarit/pharmacy-concierge/agent/followup"
	llmx "github.com/tanpawarit/pharmacy-concierge/agent/llm"
	nodex "github.com/tanpawarit/pharmacy-concierge/agent/nodes/orchestrator"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
	configx "github.com/tanpawarit/pharmacy-concierge/pkg/config"
	crmx "github.com/tanpawarit/pharmacy-concierge/pkg/crm"
	mailerx "github.com/tanpawarit/pharmacy-concierge/pkg/mailer"
	pharmacyx "github.com/tanpawarit/pharmacy-concierge/pkg/pharmacy"
	qstashx "github.com/tanpawarit/pharmacy-concierge/pkg/qstash"
	rediscachex "github.com/tanpawarit/pharmacy-concierge/pkg/rediscache"
	schedulerx "github.com/tanpawarit/pharmacy-concierge/pkg/scheduler"
	upstashx "github.com/tanpawarit/pharmacy-concierge/pkg/upstash"
)

const (
	schedulerLog    = "log"
	schedulerQStash = "qstash"
)

// app holds the collaborators shared by every session of one process.
type app struct {
	cfg       AppConfig
	prompts   *promptx.Store
	schemas   map[string]contractx.ExtractionSchema
	backend   extractionx.Backend
	responder contractx.Responder

	mailer     *mailerx.LogMailer
	dispatcher *followupx.Dispatcher

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := configx.New[AppConfig]("")
	if err != nil {
		return nil, fmt.Errorf("app config: %w", err)
	}

	a := &app{cfg: *cfg}
	for _, load := range []func(context.Context) error{a.loadPrompts, a.loadModels, a.loadFollowUps} {
		if err := load(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) loadPrompts(ctx context.Context) error {
	prompts, err := promptx.Load(promptx.WithOverrideDir(a.cfg.PromptsDir))
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	schemas, err := extractionx.LoadSchemas()
	if err != nil {
		return fmt.Errorf("load extraction schemas: %w", err)
	}

	required := append(nodex.RequiredTemplates(), nodex.QuestionTemplates(schemas)...)
	required = append(required, mailerx.RequiredTemplates(followupx.TemplateWelcomeEmail, followupx.TemplateLeadNotification)...)
	if err := prompts.Require(required...); err != nil {
		return fmt.Errorf("templates incomplete: %w", err)
	}

	if a.cfg.PromptsWatch {
		if err := prompts.Watch(ctx); err != nil {
			return fmt.Errorf("watch templates: %w", err)
		}
	}

	a.prompts = prompts
	a.schemas = schemas
	return nil
}

func (a *app) loadModels(ctx context.Context) error {
	orCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return fmt.Errorf("openrouter config: %w", err)
	}
	gemCfg, err := configx.New[llmx.GeminiConfig]("GEMINI")
	if err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}

	provider, err := llmx.Resolve(llmx.Provider(a.cfg.LLMProvider), *orCfg, *gemCfg)
	if err != nil {
		return err
	}

	switch provider {
	case llmx.ProviderOpenRouter:
		backend, err := llmx.NewOpenAIBackend(orCfg.OpenRouterFor(contractx.AgentTypeExtractor))
		if err != nil {
			return fmt.Errorf("extraction backend: %w", err)
		}
		a.backend = backend

		responder, err := responderx.NewFromConfig(ctx, *orCfg)
		if err != nil {
			log.Warn().Err(err).Msg("responder unavailable, replies use templates only")
		} else {
			a.responder = responder
		}
	case llmx.ProviderGemini:
		backend, err := llmx.NewGeminiBackend(ctx, *gemCfg)
		if err != nil {
			return fmt.Errorf("extraction backend: %w", err)
		}
		a.backend = backend
	default:
		a.backend = extractionx.PassthroughBackend{}
	}

	log.Info().Str("provider", string(provider)).Bool("responder", a.responder != nil).Msg("language models ready")
	return nil
}

func (a *app) loadFollowUps(ctx context.Context) error {
	a.mailer = mailerx.NewLogMailer(a.prompts, a.cfg.CompanyEmail)

	callbacks, err := a.callbackScheduler()
	if err != nil {
		return err
	}

	crmCfg, err := configx.New[crmx.Config]("CRM")
	if err != nil {
		return fmt.Errorf("crm config: %w", err)
	}
	crm, err := crmx.Open(ctx, *crmCfg)
	if err != nil {
		return fmt.Errorf("open crm: %w", err)
	}
	a.closers = append(a.closers, crm.Close)

	a.dispatcher = followupx.NewDispatcher(followupx.Config{
		CompanyName:           a.cfg.CompanyName,
		LeadsEmail:            a.cfg.CompanyLeadsEmail,
		DefaultCallbackWindow: a.cfg.CallbackWindow,
	}, a.mailer, callbacks, crm)
	return nil
}

func (a *app) callbackScheduler() (contractx.CallbackScheduler, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.CallbackScheduler)) {
	case "", schedulerLog:
		return schedulerx.NewLogScheduler(), nil
	case schedulerQStash:
		cfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return nil, fmt.Errorf("qstash config: %w", err)
		}
		return qstashx.NewClient(*cfg)
	default:
		return nil, fmt.Errorf("%w: unknown callback scheduler %q", contractx.ErrValidation, a.cfg.CallbackScheduler)
	}
}

// directory builds the customer directory from PHARMACY_* settings.
func (a *app) directory(ctx context.Context) (contractx.Directory, error) {
	apiCfg, err := configx.New[pharmacyx.Config]("PHARMACY")
	if err != nil {
		return nil, fmt.Errorf("pharmacy api config: %w", err)
	}
	api, err := pharmacyx.NewClient(*apiCfg)
	if err != nil {
		return nil, err
	}
	return a.directoryFor(ctx, api)
}

func (a *app) directoryFor(ctx context.Context, fetcher directoryx.Fetcher) (contractx.Directory, error) {
	cfg, err := configx.New[directoryx.Config]("PHARMACY")
	if err != nil {
		return nil, fmt.Errorf("directory config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []directoryx.Option{directoryx.WithMatchDigits(cfg.MatchDigits)}
	cache, err := a.directoryCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		opts = append(opts, directoryx.WithCache(cache, cfg.CacheTTL))
	}
	return directoryx.NewClient(fetcher, opts...), nil
}

func (a *app) directoryCache(ctx context.Context, kind directoryx.CacheKind) (directoryx.Cache, error) {
	switch kind {
	case directoryx.CacheNone:
		return nil, nil
	case directoryx.CacheUpstash:
		cfg, err := configx.New[upstashx.Config]("UPSTASH_REDIS")
		if err != nil {
			return nil, fmt.Errorf("upstash config: %w", err)
		}
		return upstashx.New(*cfg)
	case directoryx.CacheRedis:
		cfg, err := configx.New[rediscachex.Config]("REDIS")
		if err != nil {
			return nil, fmt.Errorf("redis config: %w", err)
		}
		cache, err := rediscachex.New(ctx, *cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		return cache, nil
	default:
		return directoryx.NewMemoryCache(), nil
	}
}

func (a *app) orchestrator(directory contractx.Directory, backend extractionx.Backend) (*orchestratorx.Orchestrator, error) {
	engine := extractionx.NewEngine(backend, a.prompts, a.cfg.CompanyName)

	var opts []orchestratorx.Option
	if a.responder != nil {
		opts = append(opts, orchestratorx.WithResponder(a.responder))
	}
	return orchestratorx.New(directory, engine, a.prompts, a.dispatcher, orchestratorx.Config{
		CompanyName:  a.cfg.CompanyName,
		CompanyPhone: a.cfg.CompanyPhone,
		Schemas:      a.schemas,
	}, opts...)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
