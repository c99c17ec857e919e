package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	followupx "github.com/tanpawarit/pharmacy-concierge/agent/followup"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

// outbox records what the real follow-up dispatcher hands to its collaborators.
type outbox struct {
	mu        sync.Mutex
	emails    []string
	callbacks []string
	crm       []map[string]string
}

func (o *outbox) SendEmail(_ context.Context, address, templateName string, _ map[string]string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails = append(o.emails, templateName+" -> "+address)
	return "MSG-1", nil
}

func (o *outbox) ScheduleCallback(_ context.Context, phone, window string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = append(o.callbacks, phone+" @ "+window)
	return "CB-1", nil
}

func (o *outbox) UpdateCRM(_ context.Context, _ string, fields map[string]string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.crm = append(o.crm, fields)
	return "CRM-1", nil
}

type countingFollowUps struct {
	next  *followupx.Dispatcher
	calls int
}

func (c *countingFollowUps) Dispatch(ctx context.Context, s *statex.Session) []contractx.ActionResult {
	c.calls++
	return c.next.Dispatch(ctx, s)
}

func newFollowUpHarness(t *testing.T) (*Orchestrator, *countingFollowUps, *outbox) {
	t.Helper()

	box := &outbox{}
	followUps := &countingFollowUps{next: followupx.NewDispatcher(followupx.Config{
		CompanyName:           "Pharmesol",
		DefaultCallbackWindow: "next business day",
	}, box, box, box)}

	renderer := promptx.MustLoad()
	engine := extractionx.NewEngine(extractionx.PassthroughBackend{}, renderer, "Pharmesol")
	orch, err := New(sampleDirectory(), engine, renderer, followUps, Config{
		CompanyName:  "Pharmesol",
		CompanyPhone: "+1-555-PHARMA-1",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return orch, followUps, box
}

func followUpKinds(results []contractx.ActionResult) string {
	var out []string
	for _, r := range results {
		out = append(out, string(r.Action.Kind))
	}
	return strings.Join(out, ",")
}

func TestNewLeadQualifiesInOneTurn(t *testing.T) {
	t.Parallel()

	orch, followUps, box := newFollowUpHarness(t)
	ctx := context.Background()

	start, err := orch.StartSession(ctx, unknownPhone)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	reply := mustTurn(t, orch, start.SessionID, "pharmacy_name: Sunrise Pharmacy\ncontact_person: Dana\ncity: Austin\nstate: TX")
	if reply.Status != "completed" {
		t.Fatalf("status = %q, want completed", reply.Status)
	}

	s, err := orch.Session(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s.Outcome != statex.StatusQualified {
		t.Fatalf("outcome = %q, want qualified", s.Outcome)
	}
	if followUps.calls != 1 {
		t.Fatalf("dispatch calls = %d, want 1", followUps.calls)
	}
	if got := followUpKinds(s.FollowUps); got != "email,crmUpdate" {
		t.Fatalf("follow ups = %q, want email,crmUpdate", got)
	}
	for _, r := range s.FollowUps {
		if r.Outcome != contractx.OutcomeSuccess {
			t.Fatalf("%s outcome = %q", r.Action.Kind, r.Outcome)
		}
	}
	if len(box.emails) != 1 || len(box.crm) != 1 || len(box.callbacks) != 0 {
		t.Fatalf("outbox emails=%v crm=%v callbacks=%v", box.emails, box.crm, box.callbacks)
	}
	if !strings.HasSuffix(box.emails[0], "-> leads@pharmesol.com") {
		t.Fatalf("email = %q", box.emails[0])
	}
	if box.crm[0]["pharmacy_name"] != "Sunrise Pharmacy" {
		t.Fatalf("crm fields = %#v", box.crm[0])
	}

	if _, err := orch.EndSession(ctx, start.SessionID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if followUps.calls != 1 {
		t.Fatalf("dispatch calls after EndSession = %d, want 1", followUps.calls)
	}
}

func TestAnonymousExitTakesNoAction(t *testing.T) {
	t.Parallel()

	orch, followUps, box := newFollowUpHarness(t)
	ctx := context.Background()

	start, err := orch.StartSession(ctx, unknownPhone)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	reply := mustTurn(t, orch, start.SessionID, "intent: end")
	if reply.Status != "completed" {
		t.Fatalf("status = %q, want completed", reply.Status)
	}

	s, err := orch.Session(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s.Outcome != statex.StatusAbandoned {
		t.Fatalf("outcome = %q, want abandoned", s.Outcome)
	}
	if followUps.calls != 1 {
		t.Fatalf("dispatch calls = %d, want 1", followUps.calls)
	}
	if len(s.FollowUps) != 0 {
		t.Fatalf("follow ups = %#v, want none", s.FollowUps)
	}
	if len(box.emails)+len(box.crm)+len(box.callbacks) != 0 {
		t.Fatalf("outbox emails=%v crm=%v callbacks=%v", box.emails, box.crm, box.callbacks)
	}
}

func TestProseWithColonAsksForClarification(t *testing.T) {
	t.Parallel()

	orch, followUps, _ := newFollowUpHarness(t)
	start, _ := orch.StartSession(context.Background(), unknownPhone)

	reply := mustTurn(t, orch, start.SessionID, "Here is what I found: nothing useful")
	if reply.Status != "active" {
		t.Fatalf("status = %q", reply.Status)
	}
	if !strings.HasPrefix(reply.Reply, "I'm sorry, I didn't quite catch that.") {
		t.Fatalf("reply = %q", reply.Reply)
	}
	if followUps.calls != 0 {
		t.Fatalf("dispatch calls = %d, want 0", followUps.calls)
	}
}
