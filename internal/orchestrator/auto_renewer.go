package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"autorenew/internal/auth"
	"autorenew/internal/captcha"
	"autorenew/internal/config"
	"autorenew/internal/database"
	"autorenew/internal/logging"
	"autorenew/internal/mailbox"
	"autorenew/internal/models"
	"autorenew/internal/provider"
	"autorenew/internal/renewal"
	"autorenew/internal/report"
)

// AutoRenewer orchestrates one renewal pass over all configured accounts.
// Accounts, and resources within an account, are processed strictly one at
// a time: all accounts may share a single PIN mailbox, and interleaving two
// trigger/poll cycles would risk attributing one account's PIN email to
// another's pending challenge.
type AutoRenewer struct {
	cfg      models.Config
	log      logging.Sugared
	reporter *report.Reporter
	notifier *report.Notifier

	authenticator *auth.Authenticator
	machine       *renewal.Machine

	db      *database.DB
	history *database.RunRepository
	runID   string

	shutdownRequested int32
	sleep             func(time.Duration)
}

// New creates an AutoRenewer from the configuration. Validation happens
// here, before any network client is used: a configuration error is the
// only fatal condition and produces zero provider or mailbox calls.
func New(cfg models.Config) (*AutoRenewer, error) {
	dial := func() (mailbox.Store, error) {
		return mailbox.Dial(cfg.IMAPAddr, cfg.MailAddress, cfg.MailPassword)
	}
	return NewWithStore(cfg, dial)
}

// NewWithStore is New with an explicit mailbox dialer
func NewWithStore(cfg models.Config, dial mailbox.DialFunc) (*AutoRenewer, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	log := logging.New(cfg.Env)
	reporter := report.NewReporter(log)
	notifier := report.NewNotifier(cfg.TelegramAPIHost, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.RequestTimeout, log)

	solver := captcha.New(cfg.CaptchaBaseURL, cfg.CaptchaUserID, cfg.CaptchaAPIKey, cfg.RequestTimeout, log)
	newClient := func() (*provider.Client, error) {
		return provider.New(cfg.ProviderBaseURL, cfg.UserAgent, cfg.RequestTimeout, log)
	}
	authenticator := auth.New(newClient, solver, reporter, cfg, log)
	poller := mailbox.NewPoller(dial, cfg, log)
	machine := renewal.NewMachine(poller, reporter, cfg, log)

	ar := &AutoRenewer{
		cfg:           cfg,
		log:           log,
		reporter:      reporter,
		notifier:      notifier,
		authenticator: authenticator,
		machine:       machine,
		runID:         uuid.NewString(),
		sleep:         time.Sleep,
	}

	if cfg.HistoryDBPath != "" {
		db, err := database.New(cfg.HistoryDBPath)
		if err != nil {
			return nil, err
		}
		ar.db = db
		ar.history = database.NewRunRepository(db)
	}
	return ar, nil
}

// RunID returns the identifier stamped on this run's history rows
func (ar *AutoRenewer) RunID() string {
	return ar.runID
}

// Reporter exposes the run log, primarily for the end-of-run summary
func (ar *AutoRenewer) Reporter() *report.Reporter {
	return ar.reporter
}

// ShutdownFlag returns the flag consulted between accounts and resources
func (ar *AutoRenewer) ShutdownFlag() *int32 {
	return &ar.shutdownRequested
}

// Run processes every account in order and flushes the report once at the
// end. No per-account or per-resource failure aborts the run.
func (ar *AutoRenewer) Run(ctx context.Context) error {
	defer ar.log.Sync()
	if ar.db != nil {
		defer ar.db.Close()
		if err := ar.history.CreateRun(ar.runID, time.Now(), len(ar.cfg.Accounts)); err != nil {
			ar.log.Warnw("failed to create history row", "error", err)
		}
	}

	ar.reporter.Logf("[AutoRenew] run %s started, %d account(s)", ar.runID, len(ar.cfg.Accounts))
	for i, account := range ar.cfg.Accounts {
		if atomic.LoadInt32(&ar.shutdownRequested) == 1 {
			ar.reporter.Logf("[AutoRenew] shutdown requested, skipping remaining accounts")
			break
		}
		ar.processAccount(ctx, i, account)
		if i < len(ar.cfg.Accounts)-1 {
			ar.sleep(ar.cfg.AccountCooldown)
		}
	}

	if ar.db != nil {
		if err := ar.history.FinishRun(ar.runID, time.Now(), ar.reporter.Text()); err != nil {
			ar.log.Warnw("failed to finish history row", "error", err)
		}
	}

	if ar.notifier.Configured() {
		if err := ar.notifier.Send(ctx, ar.reporter.Text()); err != nil {
			// Logged to the process output only; never retried, never fatal
			ar.log.Warnw("notification delivery failed", "error", err)
		}
	}
	return nil
}

// processAccount drives one account from login through verification. Every
// failure is recorded and the run continues with the next unit of work.
func (ar *AutoRenewer) processAccount(ctx context.Context, index int, account models.Account) {
	ar.reporter.Logf("[AutoRenew] renewing account %d", index+1)

	session, err := ar.authenticator.Login(ctx, account)
	if err != nil {
		if !errors.Is(err, auth.ErrAuthFailed) {
			ar.log.Warnw("login aborted", "account", account.Identifier, "error", err)
		}
		ar.reporter.Logf("[AutoRenew] login failed for account %d, check the credentials", index+1)
		return
	}

	resources, err := session.Provider.ListResources(ctx, session.ID)
	if err != nil {
		ar.log.Warnw("resource listing failed", "account", account.Identifier, "error", err)
		ar.reporter.Logf("[AutoRenew] renewal error for account %d: could not list contracts", index+1)
		return
	}
	ar.reporter.Logf("[AutoRenew] detected %d contracts for account %d, attempting renewal", len(resources), index+1)

	for _, resource := range resources {
		if atomic.LoadInt32(&ar.shutdownRequested) == 1 {
			ar.reporter.Logf("[AutoRenew] shutdown requested, skipping remaining contracts")
			break
		}
		ar.processResource(ctx, session, account, resource)
	}

	// The provider needs a moment before the listing reflects confirmed
	// renewals
	ar.sleep(ar.cfg.VerifyDelay)
	ar.verifyAccount(ctx, session, account)
}

func (ar *AutoRenewer) processResource(ctx context.Context, session *auth.Session, account models.Account, resource models.RenewableResource) {
	if !resource.Renewable {
		ar.reporter.Logf("[AutoRenew] ServerID: %s no action needed", resource.ID)
		ar.recordOutcome(account, models.ResourceOutcome{
			ResourceID: resource.ID,
			Outcome:    models.OutcomeNoAction,
			State:      models.StateInit,
		})
		return
	}

	ar.reporter.Logf("[AutoRenew] renewal attempted for ServerID: %s", resource.ID)
	outcome := ar.machine.Renew(ctx, session, resource.ID)
	if outcome.Outcome == models.OutcomeRenewed {
		ar.reporter.Logf("[AutoRenew] ServerID: %s renewed successfully!", resource.ID)
	} else {
		ar.reporter.Logf("[AutoRenew] ServerID: %s renewal error! (%s)", resource.ID, outcome.Reason)
	}
	ar.recordOutcome(account, outcome)
}

// verifyAccount re-queries the listing and reports every resource whose
// renewal did not take effect. CONFIRMED is optimistic; this pass is the
// safety net.
func (ar *AutoRenewer) verifyAccount(ctx context.Context, session *auth.Session, account models.Account) {
	still, err := ar.machine.Verify(ctx, session)
	if err != nil {
		ar.log.Warnw("verification pass failed", "account", account.Identifier, "error", err)
		ar.reporter.Logf("[AutoRenew] renewal error: verification pass could not list contracts")
		return
	}
	if len(still) == 0 {
		ar.reporter.Logf("[AutoRenew] all work done! enjoy~")
		return
	}
	for _, id := range still {
		ar.reporter.Logf("[AutoRenew] ServerID: %s renewal error: renewal did not take effect!", id)
	}
}

func (ar *AutoRenewer) recordOutcome(account models.Account, outcome models.ResourceOutcome) {
	if ar.history == nil {
		return
	}
	if err := ar.history.RecordOutcome(ar.runID, account.Identifier, outcome); err != nil {
		ar.log.Warnw("failed to record outcome", "resource", outcome.ResourceID, "error", err)
	}
}
