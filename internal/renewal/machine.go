package renewal

import (
	"context"
	"errors"
	"time"

	"autorenew/internal/auth"
	"autorenew/internal/logging"
	"autorenew/internal/mailbox"
	"autorenew/internal/models"
	"autorenew/internal/report"
)

// Machine drives one resource through the renewal flow:
// INIT → TRIGGERED → AWAITING_PIN → PIN_CAPTURED → TOKEN_OBTAINED →
// CONFIRMED, with FAILED reachable from any state. Resources are processed
// strictly one at a time; the shared mailbox cannot attribute PIN emails to
// a specific pending challenge.
type Machine struct {
	poller   *mailbox.Poller
	reporter *report.Reporter
	settle   time.Duration
	pinWait  time.Duration
	pause    time.Duration
	log      logging.Sugared

	sleep func(time.Duration)
}

// NewMachine creates a renewal state machine
func NewMachine(poller *mailbox.Poller, reporter *report.Reporter, cfg models.Config, log logging.Sugared) *Machine {
	return &Machine{
		poller:   poller,
		reporter: reporter,
		settle:   cfg.SettleDelay,
		pinWait:  cfg.PinWait,
		pause:    cfg.PostRenewPause,
		log:      log,
		sleep:    time.Sleep,
	}
}

// Renew walks one resource from INIT to CONFIRMED. A failure in any state
// yields a FAILED outcome with the reason for that step; it never aborts
// the run.
func (m *Machine) Renew(ctx context.Context, session *auth.Session, resourceID string) models.ResourceOutcome {
	state := models.StateInit
	fail := func(reason models.FailureReason, err error) models.ResourceOutcome {
		m.log.Warnw("renewal failed",
			"resource", resourceID,
			"state", state,
			"reason", reason,
			"error", err,
		)
		return models.ResourceOutcome{
			ResourceID: resourceID,
			Outcome:    models.OutcomeFailed,
			Reason:     reason,
			State:      models.StateFailed,
		}
	}

	if err := session.Provider.ChooseResource(ctx, session.ID, resourceID); err != nil {
		return fail(models.ReasonTransport, err)
	}
	if err := session.Provider.TriggerSecurityCheck(ctx, session.ID); err != nil {
		return fail(models.ReasonTransport, err)
	}
	state = models.StateTriggered

	// The provider needs time to dispatch the email before polling starts
	m.sleep(m.settle)
	state = models.StateAwaitingPin

	now := time.Now()
	challenge := models.PinChallenge{
		ResourceID:  resourceID,
		TriggeredAt: now,
		Deadline:    now.Add(m.pinWait),
	}
	pin, err := m.poller.AwaitPin(ctx, challenge.Deadline)
	if err != nil {
		if errors.Is(err, mailbox.ErrPinNotReceived) {
			return fail(models.ReasonPinNotReceived, err)
		}
		return fail(models.ReasonTransport, err)
	}
	state = models.StatePinCaptured
	m.reporter.Logf("[Mailbox] PIN: %s", pin.Value)

	token, err := session.Provider.ExchangePIN(ctx, session.ID, resourceID, pin.Value)
	if err != nil {
		return fail(models.ReasonTokenExchangeRejected, err)
	}
	state = models.StateTokenObtained

	if err := session.Provider.ConfirmRenewal(ctx, session.ID, token); err != nil {
		return fail(models.ReasonTransport, err)
	}
	m.sleep(m.pause)
	state = models.StateConfirmed

	// CONFIRMED is optimistic; the verification pass corroborates it
	return models.ResourceOutcome{
		ResourceID: resourceID,
		Outcome:    models.OutcomeRenewed,
		State:      state,
	}
}

// Verify re-queries the resource listing after an account's resources are
// processed and returns the ids still flagged renewable, distinguishing
// "request accepted" from "state changed".
func (m *Machine) Verify(ctx context.Context, session *auth.Session) ([]string, error) {
	resources, err := session.Provider.ListResources(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	var still []string
	for _, resource := range resources {
		if resource.Renewable {
			still = append(still, resource.ID)
		}
	}
	return still, nil
}
