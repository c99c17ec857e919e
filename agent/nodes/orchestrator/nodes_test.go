package orchestratornode

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	promptx "github.com/tanpawarit/pharmacy-concierge/agent/prompt"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

var testCompany = Company{Name: "Pharmesol", Phone: "+1-555-PHARMA-1"}

type countingDispatcher struct {
	calls int
}

func (d *countingDispatcher) Dispatch(context.Context, *statex.Session) []contractx.ActionResult {
	d.calls++
	return []contractx.ActionResult{{
		Action:  contractx.FollowUpAction{Kind: contractx.ActionCallback},
		Outcome: contractx.OutcomeSuccess,
	}}
}

func TestAssessmentBand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		volume string
		want   string
	}{
		{"", BandUnknown},
		{"a lot", BandUnknown},
		{"about 1,200 a month", BandHigh},
		{"100", BandHigh},
		{"75 or so", BandMedium},
		{"50", BandMedium},
		{"49", BandLow},
		{"between 20 and 300", BandLow},
	}
	for _, tt := range tests {
		if got := AssessmentBand(tt.volume); got != tt.want {
			t.Errorf("AssessmentBand(%q) = %q, want %q", tt.volume, got, tt.want)
		}
	}
}

func TestGreetingPerBranch(t *testing.T) {
	t.Parallel()

	renderer := promptx.MustLoad()
	now := time.Now()

	known := statex.NewSession("s-1", "+1-555-123-4567", now)
	if err := known.SetCustomer(contractx.CustomerRecord{PharmacyName: "HealthFirst Pharmacy", Tier: contractx.TierReturning}); err != nil {
		t.Fatalf("SetCustomer() error = %v", err)
	}
	got, err := Greeting(renderer, known, testCompany)
	if err != nil {
		t.Fatalf("Greeting(known) error = %v", err)
	}
	if !strings.Contains(got, "HealthFirst Pharmacy") {
		t.Fatalf("Greeting(known) = %q", got)
	}

	lead := statex.NewSession("s-2", "+1-555-999-0000", now)
	newLead, err := Greeting(renderer, lead, testCompany)
	if err != nil {
		t.Fatalf("Greeting(lead) error = %v", err)
	}

	degraded := statex.NewSession("s-3", "+1-555-999-0000", now)
	degraded.DirectoryDegraded = true
	fallback, err := Greeting(renderer, degraded, testCompany)
	if err != nil {
		t.Fatalf("Greeting(degraded) error = %v", err)
	}
	if newLead == fallback {
		t.Fatal("degraded greeting should differ from the new-lead greeting")
	}
}

func TestEvaluateStatusPrefersQualification(t *testing.T) {
	t.Parallel()

	schema := extractionx.MustLoadSchemas()[extractionx.SchemaCustomerIntent]
	s := statex.NewSession("s-1", "+1-555-123-4567", time.Now())
	s.ExtractedFields["request"] = "refill"

	in := &GraphState{
		SessionID: s.ID,
		Session:   s,
		Schema:    schema,
		Now:       time.Now(),
		Extraction: contractx.ExtractionResult{Fields: map[string]contractx.FieldValue{
			"request": {Value: "refill"},
			"intent":  {Value: extractionx.ExitIntent},
		}},
	}
	out, err := EvaluateStatus(in)
	if err != nil {
		t.Fatalf("EvaluateStatus() error = %v", err)
	}
	if out.Outcome != statex.StatusQualified || s.Status != statex.StatusQualified {
		t.Fatalf("outcome = %q, status = %q", out.Outcome, s.Status)
	}
}

func TestEvaluateStatusSkipsFailedExtraction(t *testing.T) {
	t.Parallel()

	schema := extractionx.MustLoadSchemas()[extractionx.SchemaLeadQualification]
	s := statex.NewSession("s-1", "+1-555-999-0000", time.Now())
	in := &GraphState{
		Session:       s,
		Schema:        schema,
		Now:           time.Now(),
		ExtractionErr: errors.New("backend down"),
		Extraction:    contractx.ExtractionResult{Fields: map[string]contractx.FieldValue{"intent": {Value: extractionx.ExitIntent}}},
	}
	out, err := EvaluateStatus(in)
	if err != nil {
		t.Fatalf("EvaluateStatus() error = %v", err)
	}
	if out.Outcome != "" || s.Status != statex.StatusActive {
		t.Fatalf("outcome = %q, status = %q", out.Outcome, s.Status)
	}
}

func TestCompleteDispatchesOnce(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := statex.NewSession("s-1", "+1-555-999-0000", now)
	if err := s.Transition(statex.StatusAbandoned, now); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	d := &countingDispatcher{}
	for i := 0; i < 2; i++ {
		if err := Complete(context.Background(), s, d, now); err != nil {
			t.Fatalf("Complete() #%d error = %v", i+1, err)
		}
	}
	if d.calls != 1 {
		t.Fatalf("dispatch calls = %d, want 1", d.calls)
	}
	if !s.IsCompleted() || len(s.FollowUps) != 1 || s.Outcome != statex.StatusAbandoned {
		t.Fatalf("session = %+v", s)
	}
}

func TestCompleteRejectsActiveSession(t *testing.T) {
	t.Parallel()

	s := statex.NewSession("s-1", "+1-555-999-0000", time.Now())
	err := Complete(context.Background(), s, &countingDispatcher{}, time.Now())
	if !errors.Is(err, statex.ErrInvalidTransition) {
		t.Fatalf("Complete() error = %v, want ErrInvalidTransition", err)
	}
}

type stubExtractor struct {
	result contractx.ExtractionResult
}

func (s stubExtractor) Extract(context.Context, contractx.ExtractionSchema, string) (contractx.ExtractionResult, error) {
	return s.result, nil
}

func TestExtractFieldsFlagsUnparseableOutput(t *testing.T) {
	t.Parallel()

	in := &GraphState{
		Session: statex.NewSession("s-1", "+1-555-999-0000", time.Now()),
		Schema:  extractionx.MustLoadSchemas()[extractionx.SchemaLeadQualification],
		Text:    "hmm",
	}
	out, err := ExtractFields(context.Background(), in, stubExtractor{result: contractx.ExtractionResult{Degraded: true}})
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if !errors.Is(out.ExtractionErr, contractx.ErrExtractionDegraded) || !out.ExtractionFailed() {
		t.Fatalf("ExtractionErr = %v", out.ExtractionErr)
	}
}
