package mailbox

import (
	"context"
	"errors"
	"regexp"
	"time"

	"autorenew/internal/logging"
	"autorenew/internal/models"
)

// ErrPinNotReceived is returned when no qualifying message shows up before
// the deadline
var ErrPinNotReceived = errors.New("pin not received before deadline")

// PINs are always exactly six digits
var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// Poller repeatedly scans the mailbox for a qualifying message, extracts
// the numeric code and marks the source message consumed
type Poller struct {
	dial          DialFunc
	senderFilter  string
	fallback      string
	subjectFilter string
	maxCandidates int
	interval      time.Duration
	log           logging.Sugared

	sleep func(time.Duration)
}

// NewPoller creates a new Poller. Each AwaitPin call dials a fresh store
// connection through dial.
func NewPoller(dial DialFunc, cfg models.Config, log logging.Sugared) *Poller {
	return &Poller{
		dial:          dial,
		senderFilter:  cfg.SenderFilter,
		fallback:      cfg.SenderFallback,
		subjectFilter: cfg.SubjectFilter,
		maxCandidates: cfg.MaxMailCandidates,
		interval:      cfg.PollInterval,
		log:           log,
		sleep:         time.Sleep,
	}
}

// AwaitPin polls the inbox until a qualifying message is found or the
// deadline elapses. The first matching message wins, newest first, and is
// flagged seen before the PIN is returned so at most one PIN is consumed
// per call.
func (p *Poller) AwaitPin(ctx context.Context, deadline time.Time) (*models.CapturedPin, error) {
	store, err := p.dial()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrPinNotReceived
		}

		pin, found := p.scan(store)
		if found {
			return pin, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrPinNotReceived
		}
		if remaining < p.interval {
			p.sleep(remaining)
		} else {
			p.sleep(p.interval)
		}
	}
}

// scan runs one pass over the newest candidates. A stale PIN from an older
// message must never win over a fresh one, so the ascending listing is
// walked in reverse.
func (p *Poller) scan(store Store) (*models.CapturedPin, bool) {
	ids, err := store.RecentUnseen(p.maxCandidates)
	if err != nil {
		// Keep polling until the deadline; a transient listing failure is
		// indistinguishable from an empty inbox at this level
		p.log.Warnw("mailbox listing failed", "error", err)
		return nil, false
	}

	for i := len(ids) - 1; i >= 0; i-- {
		msg, err := store.Fetch(ids[i])
		if err != nil {
			p.log.Warnw("failed to fetch candidate message", "id", ids[i], "error", err)
			continue
		}
		if !senderMatches(msg.Sender, p.senderFilter, p.fallback) {
			continue
		}
		if p.subjectFilter != "" && msg.Subject != p.subjectFilter {
			continue
		}
		code := codePattern.FindString(msg.Body)
		if code == "" {
			continue
		}
		if err := store.MarkSeen(msg.ID); err != nil {
			p.log.Warnw("failed to mark message seen", "id", msg.ID, "error", err)
		}
		return &models.CapturedPin{Value: code, MessageID: msg.ID}, true
	}
	return nil, false
}
