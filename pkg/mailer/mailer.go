package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
)

var ErrNoRecipient = errors.New("email recipient is empty")

// Message is one rendered email kept in the outbox.
type Message struct {
	Reference string
	From      string
	To        string
	Template  string
	Subject   string
	Body      string
	SentAt    time.Time
}

// LogMailer renders emails from the system namespace and logs them instead of
// delivering them. Subject and body come from <template>_subject and
// <template>_content.
type LogMailer struct {
	renderer contractx.Renderer
	from     string

	mu     sync.Mutex
	outbox []Message
}

var _ contractx.EmailSender = (*LogMailer)(nil)

// RequiredTemplates lists the template keys the mailer renders for each
// named email.
func RequiredTemplates(names ...string) []string {
	keys := make([]string, 0, 2*len(names))
	for _, n := range names {
		keys = append(keys,
			promptx.NamespaceSystem+"/"+n+"_subject",
			promptx.NamespaceSystem+"/"+n+"_content",
		)
	}
	return keys
}

func NewLogMailer(renderer contractx.Renderer, from string) *LogMailer {
	return &LogMailer{renderer: renderer, from: strings.TrimSpace(from)}
}

func (m *LogMailer) SendEmail(ctx context.Context, address string, templateName string, vars map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	to := strings.TrimSpace(address)
	if to == "" {
		return "", fmt.Errorf("%w: %w", contractx.ErrActionFailed, ErrNoRecipient)
	}
	if m.renderer == nil {
		return "", fmt.Errorf("%w: mailer has no template renderer", contractx.ErrActionFailed)
	}

	data := make(map[string]any, len(vars))
	for k, v := range vars {
		data[k] = v
	}
	subject, err := m.renderer.Render(promptx.NamespaceSystem, templateName+"_subject", data)
	if err != nil {
		return "", fmt.Errorf("render %s subject: %w", templateName, err)
	}
	body, err := m.renderer.Render(promptx.NamespaceSystem, templateName+"_content", data)
	if err != nil {
		return "", fmt.Errorf("render %s content: %w", templateName, err)
	}

	msg := Message{
		Reference: "EM-" + ulid.Make().String(),
		From:      m.from,
		To:        to,
		Template:  templateName,
		Subject:   subject,
		Body:      body,
		SentAt:    time.Now().UTC(),
	}

	m.mu.Lock()
	m.outbox = append(m.outbox, msg)
	m.mu.Unlock()

	log.Info().
		Str("reference", msg.Reference).
		Str("to", msg.To).
		Str("template", templateName).
		Str("subject", msg.Subject).
		Msg("email queued")
	log.Debug().Str("reference", msg.Reference).Msg(msg.Body)

	return msg.Reference, nil
}

// Outbox returns a copy of every message sent so far.
func (m *LogMailer) Outbox() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.outbox...)
}
