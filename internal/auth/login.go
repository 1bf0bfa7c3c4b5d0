package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autorenew/internal/captcha"
	"autorenew/internal/logging"
	"autorenew/internal/models"
	"autorenew/internal/provider"
	"autorenew/internal/report"
)

// ErrAuthFailed is returned once the retry budget is exhausted
var ErrAuthFailed = errors.New("authentication failed")

// Session is the authenticated handle for one account. It owns the cookie
// state through its provider client, is never shared across accounts and is
// discarded when the account is done.
type Session struct {
	ID       string
	Provider *provider.Client
}

// ClientFactory builds a fresh provider client with an empty cookie jar.
// Every login attempt starts from a clean transport state.
type ClientFactory func() (*provider.Client, error)

// Authenticator establishes provider sessions under a bounded retry budget
type Authenticator struct {
	newClient  ClientFactory
	solver     *captcha.Client
	reporter   *report.Reporter
	budget     int
	backoff    time.Duration
	checkUsage bool
	log        logging.Sugared

	sleep func(time.Duration)
}

// New creates an Authenticator
func New(newClient ClientFactory, solver *captcha.Client, reporter *report.Reporter, cfg models.Config, log logging.Sugared) *Authenticator {
	return &Authenticator{
		newClient:  newClient,
		solver:     solver,
		reporter:   reporter,
		budget:     cfg.LoginMaxRetry,
		backoff:    cfg.LoginBackoff,
		checkUsage: cfg.CheckCaptchaUsage,
		log:        log,
		sleep:      time.Sleep,
	}
}

// Login runs the attempt loop. Every failure mode inside an attempt, a
// transport error, a missing session identifier or an unresolvable captcha
// included, consumes one attempt and restarts from the login page. A
// success on attempt N has slept exactly N-1 backoff delays.
func (a *Authenticator) Login(ctx context.Context, account models.Account) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= a.budget; attempt++ {
		if attempt > 1 {
			a.reporter.Logf("[AutoRenew] login attempt %d for %s", attempt, account.Identifier)
			a.sleep(a.backoff)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, err := a.attempt(ctx, account)
		if err == nil {
			return session, nil
		}
		lastErr = err
		a.log.Warnw("login attempt failed",
			"account", account.Identifier,
			"attempt", attempt,
			"error", err,
		)
	}
	return nil, fmt.Errorf("%w for %s after %d attempts: %v", ErrAuthFailed, account.Identifier, a.budget, lastErr)
}

func (a *Authenticator) attempt(ctx context.Context, account models.Account) (*Session, error) {
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}

	sessID, err := client.FetchLoginPage(ctx)
	if err != nil {
		return nil, err
	}

	body, err := client.SubmitLogin(ctx, sessID, account)
	if err != nil {
		return nil, err
	}
	if provider.IsAuthenticated(body) {
		return &Session{ID: sessID, Provider: client}, nil
	}
	if !provider.IsCaptchaChallenge(body) {
		return nil, fmt.Errorf("login rejected for %s", account.Identifier)
	}

	body, err = a.resolveCaptcha(ctx, client, sessID)
	if err != nil {
		return nil, err
	}
	if !provider.IsAuthenticated(body) {
		a.reporter.Logf("[Captcha Solver] verification failed")
		return nil, fmt.Errorf("login rejected after captcha for %s", account.Identifier)
	}
	a.reporter.Logf("[Captcha Solver] verification passed")
	return &Session{ID: sessID, Provider: client}, nil
}

func (a *Authenticator) resolveCaptcha(ctx context.Context, client *provider.Client, sessID string) (string, error) {
	a.reporter.Logf("[Captcha Solver] recognizing the captcha...")

	image, err := client.CaptchaImage(ctx)
	if err != nil {
		return "", err
	}
	answer, err := a.solver.Solve(ctx, image)
	if err != nil {
		return "", err
	}
	a.reporter.Logf("[Captcha Solver] captcha answer is: %s", answer)

	if a.checkUsage {
		if usage, err := a.solver.Usage(ctx); err != nil {
			a.log.Warnw("failed to fetch solver usage", "error", err)
		} else if len(usage) > 0 {
			a.reporter.Logf("[Captcha Solver] API usage on %s: %d", usage[0].Date, usage[0].Count)
		}
	}

	return client.SubmitCaptchaAnswer(ctx, sessID, answer)
}
