package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
)

func welcomeVars() map[string]string {
	return map[string]string{
		"company_name":    "Pharmesol",
		"pharmacy_name":   "HealthFirst Pharmacy",
		"location":        "New York, NY",
		"total_rx_volume": "138",
		"volume_message":  "As a high-volume pharmacy, you're exactly who we love working with!",
	}
}

func TestSendEmailRendersAndQueues(t *testing.T) {
	t.Parallel()

	m := NewLogMailer(promptx.MustLoad(), "hello@pharmesol.com")
	ref, err := m.SendEmail(context.Background(), "contact@healthfirst.com", "welcome_email", welcomeVars())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "EM-"), ref)

	outbox := m.Outbox()
	require.Len(t, outbox, 1)
	msg := outbox[0]
	assert.Equal(t, ref, msg.Reference)
	assert.Equal(t, "contact@healthfirst.com", msg.To)
	assert.Equal(t, "hello@pharmesol.com", msg.From)
	assert.Equal(t, "Welcome back to Pharmesol, HealthFirst Pharmacy!", msg.Subject)
	assert.Contains(t, msg.Body, "New York, NY")
	assert.Contains(t, msg.Body, "high-volume")
}

func TestSendEmailUniqueReferences(t *testing.T) {
	t.Parallel()

	m := NewLogMailer(promptx.MustLoad(), "")
	a, err := m.SendEmail(context.Background(), "a@x.com", "welcome_email", welcomeVars())
	require.NoError(t, err)
	b, err := m.SendEmail(context.Background(), "b@x.com", "welcome_email", welcomeVars())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, m.Outbox(), 2)
}

func TestSendEmailMissingVariable(t *testing.T) {
	t.Parallel()

	m := NewLogMailer(promptx.MustLoad(), "")
	vars := welcomeVars()
	delete(vars, "location")

	_, err := m.SendEmail(context.Background(), "a@x.com", "welcome_email", vars)
	require.Error(t, err)
	assert.ErrorIs(t, err, promptx.ErrMissingVariable)
	assert.Empty(t, m.Outbox())
}

func TestSendEmailUnknownTemplate(t *testing.T) {
	t.Parallel()

	m := NewLogMailer(promptx.MustLoad(), "")
	_, err := m.SendEmail(context.Background(), "a@x.com", "no_such_email", nil)
	assert.ErrorIs(t, err, promptx.ErrTemplateNotFound)
}

func TestSendEmailWithoutRecipient(t *testing.T) {
	t.Parallel()

	m := NewLogMailer(promptx.MustLoad(), "")
	_, err := m.SendEmail(context.Background(), "  ", "welcome_email", welcomeVars())
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.ErrorIs(t, err, contractx.ErrActionFailed)
}

func TestRequiredTemplatesAreEmbedded(t *testing.T) {
	t.Parallel()

	keys := RequiredTemplates("welcome_email", "lead_notification")
	assert.Equal(t, []string{
		"system/welcome_email_subject", "system/welcome_email_content",
		"system/lead_notification_subject", "system/lead_notification_content",
	}, keys)
	require.NoError(t, promptx.MustLoad().Require(keys...))
}
