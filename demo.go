package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
	pharmacyx "github.com/tanpawarit/pharmacy-concierge/pkg/pharmacy"
)

const scenarioAll = "all"

// scenario is a scripted call. Each caller line is paired with the
// extraction output a model would produce for it.
type scenario struct {
	name  string
	about string
	phone string
	turns []scriptedTurn
}

type scriptedTurn struct {
	say       string
	extracted string
}

var scenarios = []scenario{
	{
		name:  "returning",
		about: "a returning customer asks about a refill",
		phone: "+1-555-123-4567",
		turns: []scriptedTurn{
			{
				say:       "Hi, I'm checking on the status of our Lisinopril refill order, it's fairly urgent.",
				extracted: `{"request": "status of Lisinopril refill order", "urgency": "high"}`,
			},
		},
	},
	{
		name:  "new-lead",
		about: "an unknown pharmacy qualifies over two turns",
		phone: "+1-555-999-0000",
		turns: []scriptedTurn{
			{
				say:       "Hello, this is Dana calling from Sunrise Pharmacy.",
				extracted: `{"pharmacy_name": "Sunrise Pharmacy", "contact_person": "Dana"}`,
			},
			{
				say:       "We're in Austin, Texas and fill about 120 prescriptions a month. Email works best.",
				extracted: `{"city": "Austin", "state": "TX", "estimated_rx_volume": "120", "preferred_contact": "email"}`,
			},
		},
	},
	{
		name:  "abandon",
		about: "a new caller leaves before qualifying",
		phone: "+1-555-444-2020",
		turns: []scriptedTurn{
			{
				say:       "This is Sam from Oak Street Drugs, actually I have to run, bye for now.",
				extracted: `{"pharmacy_name": "Oak Street Drugs", "contact_person": "Sam", "preferred_time": "tomorrow morning", "intent": "end"}`,
			},
		},
	},
}

var errUnknownScenario = errors.New("unknown scenario")

func findScenarios(name string) ([]scenario, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == scenarioAll {
		return scenarios, nil
	}
	for _, s := range scenarios {
		if s.name == name {
			return []scenario{s}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errUnknownScenario, name)
}

// demoDirectory is the customer directory every scenario runs against.
type demoDirectory []pharmacyx.Record

func (d demoDirectory) FetchAll(context.Context) ([]pharmacyx.Record, error) {
	return d, nil
}

var sampleDirectory = demoDirectory{
	{
		ID: 1, Name: "HealthFirst Pharmacy", Phone: "+1-555-123-4567", Email: "contact@healthfirst.com",
		City: "New York", State: "NY",
		Prescriptions: []pharmacyx.Prescription{
			{Drug: "Lisinopril", Count: 42},
			{Drug: "Atorvastatin", Count: 61},
			{Drug: "Metformin", Count: 35},
		},
	},
	{
		ID: 2, Name: "MediCare Plus", Phone: "+1-555-666-7777", Email: "orders@medicareplus.com",
		City: "Chicago", State: "IL", Tier: "regular",
		Prescriptions: []pharmacyx.Prescription{{Drug: "Amoxicillin", Count: 18}},
	},
}

func demoCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(out)
	name := fs.String("scenario", scenarioAll, "returning, new-lead, abandon or all")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	selected, err := findScenarios(*name)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	directory, err := a.directoryFor(ctx, sampleDirectory)
	if err != nil {
		return err
	}

	v := newView(out)
	v.echo = true
	for _, sc := range selected {
		if err := runScenario(ctx, a, directory, sc, v); err != nil {
			return fmt.Errorf("scenario %s: %w", sc.name, err)
		}
	}
	return nil
}

func runScenario(ctx context.Context, a *app, directory contractx.Directory, sc scenario, v *view) error {
	said := make([]string, 0, len(sc.turns))
	outputs := make([]string, 0, len(sc.turns))
	for _, t := range sc.turns {
		said = append(said, t.say)
		outputs = append(outputs, t.extracted)
	}

	orch, err := a.orchestrator(directory, extractionx.NewScriptedBackend(outputs...))
	if err != nil {
		return err
	}

	v.title(fmt.Sprintf("Scenario %s: %s (%s)", sc.name, sc.about, sc.phone))
	sent := len(a.mailer.Outbox())
	if err := converse(ctx, orch, sc.phone, strings.NewReader(strings.Join(said, "\n")), v); err != nil {
		return err
	}
	v.outbox(a.mailer.Outbox()[sent:])
	return nil
}
