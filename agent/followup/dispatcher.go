package followup

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

var errNotConfigured = errors.New("collaborator not configured")

// Dispatcher runs the actions Select picks for a completed session. It does
// not retry; a failed action is reported and the others still run.
type Dispatcher struct {
	cfg      Config
	email    contractx.EmailSender
	callback contractx.CallbackScheduler
	crm      contractx.CRMUpdater
}

func NewDispatcher(cfg Config, email contractx.EmailSender, callback contractx.CallbackScheduler, crm contractx.CRMUpdater) *Dispatcher {
	return &Dispatcher{cfg: cfg, email: email, callback: callback, crm: crm}
}

// Dispatch executes every selected action concurrently and returns their
// results in selection order.
func (d *Dispatcher) Dispatch(ctx context.Context, s *statex.Session) []contractx.ActionResult {
	actions := Select(d.cfg, s)
	if len(actions) == 0 {
		return nil
	}

	results := make([]contractx.ActionResult, len(actions))
	var wg conc.WaitGroup
	for i, a := range actions {
		wg.Go(func() {
			results[i] = d.run(ctx, a)
		})
	}
	wg.Wait()

	for _, r := range results {
		ev := log.Info()
		if r.Outcome == contractx.OutcomeFailed {
			ev = log.Warn()
		}
		ev.Str("session_id", s.ID).
			Str("action", string(r.Action.Kind)).
			Str("outcome", string(r.Outcome)).
			Str("reference", r.Reference).
			Str("reason", r.Reason).
			Msg("follow-up action finished")
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, a contractx.FollowUpAction) (res contractx.ActionResult) {
	res.Action = a
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = contractx.OutcomeFailed
			res.Reason = fmt.Sprintf("%v: panic: %v", contractx.ErrActionFailed, p)
			res.Reference = ""
		}
	}()

	ref, err := d.execute(ctx, a)
	if err != nil {
		res.Outcome = contractx.OutcomeFailed
		res.Reason = err.Error()
		return res
	}
	res.Outcome = contractx.OutcomeSuccess
	res.Reference = ref
	return res
}

func (d *Dispatcher) execute(ctx context.Context, a contractx.FollowUpAction) (string, error) {
	switch a.Kind {
	case contractx.ActionEmail:
		if d.email == nil {
			return "", fmt.Errorf("%w: email: %v", contractx.ErrActionFailed, errNotConfigured)
		}
		vars := maps.Clone(a.Payload)
		delete(vars, PayloadAddress)
		delete(vars, PayloadTemplate)
		return d.email.SendEmail(ctx, a.Payload[PayloadAddress], a.Payload[PayloadTemplate], vars)
	case contractx.ActionCallback:
		if d.callback == nil {
			return "", fmt.Errorf("%w: callback: %v", contractx.ErrActionFailed, errNotConfigured)
		}
		return d.callback.ScheduleCallback(ctx, a.Payload[PayloadPhone], a.Payload[PayloadWindow])
	case contractx.ActionCRMUpdate:
		if d.crm == nil {
			return "", fmt.Errorf("%w: crm: %v", contractx.ErrActionFailed, errNotConfigured)
		}
		fields := maps.Clone(a.Payload)
		delete(fields, PayloadCustomerID)
		return d.crm.UpdateCRM(ctx, a.Payload[PayloadCustomerID], fields)
	default:
		return "", fmt.Errorf("%w: unknown action %q", contractx.ErrActionFailed, a.Kind)
	}
}
