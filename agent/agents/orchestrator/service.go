package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	nodex "github.com/tanpawarit/pharmacy-concierge/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

var (
	ErrInvalidMessage    = nodex.ErrInvalidMessage
	ErrInvalidSession    = nodex.ErrInvalidSession
	ErrInvalidPhone      = errors.New("phone number is empty")
	ErrSessionNotFound   = statex.ErrStateNotFound
	ErrSessionCompleted  = statex.ErrSessionCompleted
	ErrSessionInProgress = errors.New("another session is still in progress")
)

type Config struct {
	CompanyName  string
	CompanyPhone string
	// Schemas defaults to the embedded extraction schemas.
	Schemas map[string]contractx.ExtractionSchema
}

type Option func(*Orchestrator)

// WithResponder lets a chat model phrase the reply once a session qualifies.
func WithResponder(r contractx.Responder) Option {
	return func(o *Orchestrator) {
		o.responder = r
	}
}

func WithStore(store statex.Store) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.store = store
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// Orchestrator drives one caller session at a time through greeting,
// qualification and completion.
type Orchestrator struct {
	store      statex.Store
	directory  contractx.Directory
	extractor  contractx.Extractor
	renderer   contractx.Renderer
	responder  contractx.Responder
	dispatcher nodex.Dispatcher

	schemas map[string]contractx.ExtractionSchema
	company nodex.Company

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	mu       sync.Mutex
	activeID string

	now   func() time.Time
	newID func() string
}

func New(
	directory contractx.Directory,
	extractor contractx.Extractor,
	renderer contractx.Renderer,
	dispatcher nodex.Dispatcher,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if directory == nil {
		return nil, errors.New("customer directory is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if renderer == nil {
		return nil, errors.New("template renderer is required")
	}

	schemas := cfg.Schemas
	if len(schemas) == 0 {
		loaded, err := extractionx.LoadSchemas()
		if err != nil {
			return nil, err
		}
		schemas = loaded
	}
	for _, name := range []string{extractionx.SchemaLeadQualification, extractionx.SchemaCustomerIntent} {
		if _, ok := schemas[name]; !ok {
			return nil, fmt.Errorf("%w: extraction schema %q is missing", contractx.ErrValidation, name)
		}
	}

	o := &Orchestrator{
		store:      statex.NewMemoryStore(),
		directory:  directory,
		extractor:  extractor,
		renderer:   renderer,
		dispatcher: dispatcher,
		schemas:    schemas,
		company: nodex.Company{
			Name:  strings.TrimSpace(cfg.CompanyName),
			Phone: strings.TrimSpace(cfg.CompanyPhone),
		},
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileSubmitTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// StartSession looks the caller up once and returns the greeting. A
// directory failure is not fatal: the caller is treated as a new lead.
func (o *Orchestrator) StartSession(ctx context.Context, phone string) (contractx.TurnReply, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return contractx.TurnReply{}, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrInvalidPhone)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.activeID != "" {
		if cur, err := o.store.Load(ctx, o.activeID); err == nil && !cur.IsCompleted() {
			return contractx.TurnReply{}, fmt.Errorf("%w: %s", ErrSessionInProgress, cur.ID)
		}
		o.activeID = ""
	}

	now := o.now().UTC()
	s := statex.NewSession(o.newID(), phone, now)
	s.Schema = extractionx.SchemaLeadQualification

	rec, err := o.directory.Lookup(ctx, phone)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("session_id", s.ID).Msg("directory lookup failed, continuing as new lead")
		s.DirectoryDegraded = true
	case rec != nil:
		if err := s.SetCustomer(*rec); err != nil {
			return contractx.TurnReply{}, err
		}
		s.Schema = extractionx.SchemaCustomerIntent
	}

	greeting, err := nodex.Greeting(o.renderer, s, o.company)
	if err != nil {
		return contractx.TurnReply{}, fmt.Errorf("render greeting: %w", err)
	}
	s.AppendTurn(statex.SpeakerAssistant, greeting, now)

	if err := o.store.Save(ctx, s); err != nil {
		return contractx.TurnReply{}, err
	}
	o.activeID = s.ID

	log.Info().
		Str("session_id", s.ID).
		Str("branch", string(s.Branch)).
		Str("schema", s.Schema).
		Bool("directory_degraded", s.DirectoryDegraded).
		Msg("session started")

	return contractx.TurnReply{
		SessionID: s.ID,
		Reply:     greeting,
		Status:    string(s.Status),
		Schema:    s.Schema,
	}, nil
}

// SubmitTurn processes one caller message and returns the assistant reply.
// Extraction and follow-up failures are absorbed into the reply.
func (o *Orchestrator) SubmitTurn(ctx context.Context, sessionID string, text string) (contractx.TurnReply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return contractx.TurnReply{}, err
	}

	if out.Reply.Status == string(statex.StatusCompleted) && out.Reply.SessionID == o.activeID {
		o.activeID = ""
	}
	return out.Reply, nil
}

// EndSession closes a session. An active session is abandoned and its
// follow-ups dispatched; ending a completed session only returns its summary.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (contractx.SessionSummary, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return contractx.SessionSummary{}, ErrInvalidSession
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return contractx.SessionSummary{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if o.activeID == s.ID {
		o.activeID = ""
	}
	if s.IsCompleted() {
		return s.Summary(), nil
	}

	now := o.now().UTC()
	if s.Status == statex.StatusActive {
		if err := s.Transition(statex.StatusAbandoned, now); err != nil {
			return contractx.SessionSummary{}, err
		}
	}
	if err := nodex.Complete(ctx, s, o.dispatcher, now); err != nil {
		return contractx.SessionSummary{}, err
	}
	if err := o.store.Save(ctx, s); err != nil {
		return contractx.SessionSummary{}, err
	}

	log.Info().
		Str("session_id", s.ID).
		Str("outcome", string(s.Outcome)).
		Int("follow_ups", len(s.FollowUps)).
		Msg("session ended")
	return s.Summary(), nil
}

// Session returns a read-only copy of a session.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*statex.Session, error) {
	s, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}
