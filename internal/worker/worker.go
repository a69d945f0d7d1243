package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mixelka/provisor/internal/config"
	"github.com/mixelka/provisor/internal/mailbox"
	"github.com/mixelka/provisor/pkg/models"
)

// StopReason marks an operator-initiated cancellation so it is never read
// as an automation fault
const StopReason = "stopped by operator"

// Session is one live browser-automation session for one account
type Session interface {
	SubmitEmail(ctx context.Context) error
	SubmitCode(ctx context.Context, code string) error
	Complete(ctx context.Context) (models.SessionFields, error)
	Close()
}

// Driver opens automation sessions; implemented by internal/browser
type Driver interface {
	StartSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// SessionOptions parameterize a driver session
type SessionOptions struct {
	Email       string             `json:"email"`
	Mode        models.Mode        `json:"mode"`
	UserAgent   string             `json:"user_agent"`
	Headless    bool               `json:"headless"`
	Fingerprint config.Fingerprint `json:"fingerprint"`
}

// Event is one message from a task to its consumer. Non-terminal events
// carry a status snapshot; the terminal event additionally sets Done. The
// channel closes after the terminal event, so completion is observed at
// most once.
type Event struct {
	Account *models.Account
	Done    bool
	Success bool
}

// Config assembles one task
type Config struct {
	ID       int
	Account  *models.Account
	Mode     models.Mode
	Mailbox  *mailbox.Client
	Driver   Driver
	Settings *config.Settings
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger
}

// Worker advances one account through the provisioning state machine. It is
// the sole writer of the account while it holds its slot; everyone else
// sees snapshots through the event channel.
type Worker struct {
	id       int
	account  *models.Account
	mode     models.Mode
	mailbox  *mailbox.Client
	driver   Driver
	settings *config.Settings
	attempts int
	interval time.Duration

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool
	logger *slog.Logger
}

// New creates a task; Start launches it
func New(cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		id:       cfg.ID,
		account:  cfg.Account.Clone(),
		mode:     cfg.Mode,
		mailbox:  cfg.Mailbox,
		driver:   cfg.Driver,
		settings: cfg.Settings,
		attempts: cfg.Attempts,
		interval: cfg.Interval,
		events:   make(chan Event, 16),
		ctx:      ctx,
		cancel:   cancel,
		logger:   cfg.Logger.With("component", "worker", "slot", cfg.ID, "email", cfg.Account.Email),
	}
}

// Email returns the account this task owns
func (w *Worker) Email() string {
	return w.account.Email
}

// Events is the per-task message channel, closed after the terminal event
func (w *Worker) Events() <-chan Event {
	return w.events
}

// IsAlive reports whether the task goroutine is still running
func (w *Worker) IsAlive() bool {
	return w.alive.Load()
}

// Stop requests cooperative cancellation. The task observes it at the next
// checkpoint; a request already in flight may take up to one HTTP timeout.
func (w *Worker) Stop() {
	w.cancel()
}

// Start launches the task goroutine
func (w *Worker) Start() {
	w.alive.Store(true)
	go w.run()
}

func (w *Worker) run() {
	defer close(w.events)
	defer w.alive.Store(false)
	defer w.cancel()

	err := w.provision()
	if err == nil {
		w.logger.Info("task finished", "mode", w.mode)
		w.events <- Event{Account: w.account.Clone(), Done: true, Success: true}
		return
	}

	reason := err.Error()
	if errors.Is(err, context.Canceled) {
		reason = StopReason
	}
	w.setFailed(reason)
	w.logger.Warn("task failed", "mode", w.mode, "reason", reason)
	w.events <- Event{Account: w.account.Clone(), Done: true, Success: false}
}

func (w *Worker) provision() error {
	if err := w.advance(models.StatusCreatingMailbox); err != nil {
		return err
	}
	if w.account.JWT == "" {
		// Refresh of a synthesized account: reuse the given address
		// instead of generating one
		jwt, _, err := w.mailbox.CreateAddress(w.ctx, w.account.LocalPart())
		if err != nil {
			return fmt.Errorf("mailbox creation failed: %w", err)
		}
		w.account.JWT = jwt
	}

	if err := w.advance(models.StatusSubmittingEmail); err != nil {
		return err
	}
	sess, err := w.driver.StartSession(w.ctx, SessionOptions{
		Email:       w.account.Email,
		Mode:        w.mode,
		UserAgent:   w.settings.UserAgent(),
		Headless:    w.settings.Headless(),
		Fingerprint: w.settings.Fingerprint(),
	})
	if err != nil {
		return fmt.Errorf("driver session failed: %w", err)
	}
	defer sess.Close()
	if err := sess.SubmitEmail(w.ctx); err != nil {
		return fmt.Errorf("email submission failed: %w", err)
	}

	if err := w.advance(models.StatusAwaitingCode); err != nil {
		return err
	}
	code, err := w.mailbox.AwaitCode(w.ctx, w.account.Email, w.attempts, w.interval)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if err := w.advance(models.StatusVerifying); err != nil {
		return err
	}
	if err := sess.SubmitCode(w.ctx, code); err != nil {
		return fmt.Errorf("code submission failed: %w", err)
	}

	if err := w.advance(models.StatusCompleting); err != nil {
		return err
	}
	fields, err := sess.Complete(w.ctx)
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	if !fields.Complete() {
		// Never publish a partial credential
		return errors.New("driver returned incomplete session credentials")
	}
	w.account.Session = fields
	return w.advance(models.StatusSuccess)
}

// advance is the checkpoint before every step: it observes cancellation,
// validates the transition and publishes a snapshot
func (w *Worker) advance(target models.AccountStatus) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if !w.account.Status.CanAdvanceTo(target) {
		return fmt.Errorf("illegal transition %s -> %s", w.account.Status, target)
	}
	w.account.Status = target
	w.account.UpdatedAt = time.Now()
	w.events <- Event{Account: w.account.Clone()}
	return nil
}

func (w *Worker) setFailed(reason string) {
	if reason == "" {
		reason = "unknown error"
	}
	w.account.Status = models.StatusFailed
	w.account.ErrorMessage = reason
	w.account.UpdatedAt = time.Now()
}
