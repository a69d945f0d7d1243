// Package orchestrator owns the account registry, the pending task queue
// and the dispatch loop that feeds queued work into freed slots.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/provisor/internal/config"
	"github.com/mixelka/provisor/internal/mailbox"
	"github.com/mixelka/provisor/internal/pool"
	"github.com/mixelka/provisor/internal/worker"
	"github.com/mixelka/provisor/pkg/models"
)

const (
	queueCapacity = 1024
	idleWait      = time.Second
	retryBackoff  = time.Second
)

type queuedTask struct {
	mode  models.Mode
	email string
}

// Orchestrator coordinates accounts, slots and queued work. The account
// map and the pool's slot map each have their own lock; neither lock is
// ever held while the other is taken or while I/O runs.
type Orchestrator struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	pool     *pool.Pool
	queue    chan queuedTask
	cfg      *config.Config
	settings *config.Settings
	driver   worker.Driver
	logger   *slog.Logger
}

// New creates an orchestrator; Run starts its dispatch loop
func New(cfg *config.Config, settings *config.Settings, driver worker.Driver, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		accounts: make(map[string]*models.Account),
		pool:     pool.New(settings, logger),
		queue:    make(chan queuedTask, queueCapacity),
		cfg:      cfg,
		settings: settings,
		driver:   driver,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Run drains the pending queue for the lifetime of ctx. Queued work that
// finds no free slot goes back to the tail so newer arrivals get a chance
// to be reordered ahead of it.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("dispatch loop stopped")
			return
		case task := <-o.queue:
			if o.dispatch(task) {
				continue
			}
			o.enqueue(task)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
		case <-time.After(idleWait):
			// Idle; loop back to observe shutdown
		}
	}
}

// dispatch starts one queued task, true on success or when the entry is
// no longer actionable
func (o *Orchestrator) dispatch(task queuedTask) bool {
	account := o.getAccount(task.email)
	if account == nil {
		// Deleted while queued; drop it
		o.logger.Debug("dropping queued task for unknown account", "email", task.email)
		return true
	}
	if _, _, running := o.pool.FindByEmail(task.email); running {
		// A live task already owns this account; a duplicate queue entry
		// must not start it on a second slot
		return true
	}
	if account.Status.Phase() == models.PhaseInProgress && account.Status != models.StatusPending && account.Status != models.StatusUpdating {
		// Already picked up by another flow
		return true
	}

	index, ok := o.pool.Acquire()
	if !ok {
		return false
	}

	if task.mode == models.ModeRefresh && account.Status.Terminal() {
		account.Status = models.StatusUpdating
		account.ErrorMessage = ""
		account.UpdatedAt = time.Now()
		o.storeAccount(account)
	}
	o.startTask(index, account, task.mode)
	return true
}

func (o *Orchestrator) enqueue(task queuedTask) bool {
	select {
	case o.queue <- task:
		return true
	default:
		o.logger.Warn("pending queue full, dropping task", "email", task.email, "mode", task.mode)
		return false
	}
}

// startTask binds a worker to an acquired slot and consumes its events
func (o *Orchestrator) startTask(index int, account *models.Account, mode models.Mode) {
	attempts := o.cfg.CodeAttemptsRegister
	if mode == models.ModeRefresh {
		attempts = o.cfg.CodeAttemptsRefresh
	}

	w := worker.New(worker.Config{
		ID:       index,
		Account:  account,
		Mode:     mode,
		Mailbox:  mailbox.NewClient(account.Provider, o.cfg.HTTPTimeout, o.logger),
		Driver:   o.driver,
		Settings: o.settings,
		Attempts: attempts,
		Interval: o.cfg.CodePollInterval,
		Logger:   o.logger,
	})

	o.pool.Bind(index, w)
	w.Start()
	go o.consume(index, w)

	o.logger.Info("task started", "slot", index, "email", account.Email, "mode", mode)
}

// consume applies a task's status snapshots to the registry and frees the
// slot once the event channel closes, so completion is always observed
// before the slot is reusable through this path. Snapshots from a task that
// no longer holds its slot are dropped: a stopped task unwinding a slow
// HTTP call must not overwrite state written by its successor.
func (o *Orchestrator) consume(index int, w *worker.Worker) {
	for ev := range w.Events() {
		if ev.Account != nil {
			if o.pool.Holds(index, w) {
				o.storeAccount(ev.Account)
			} else {
				o.logger.Debug("dropping event from displaced task", "slot", index, "email", w.Email())
			}
		}
		if ev.Done {
			o.logger.Info("task completed", "slot", index, "email", w.Email(), "success", ev.Success)
		}
	}
	o.pool.Release(index, w)
}

// getAccount returns a clone, nil when absent
func (o *Orchestrator) getAccount(email string) *models.Account {
	o.mu.Lock()
	defer o.mu.Unlock()
	if account, ok := o.accounts[email]; ok {
		return account.Clone()
	}
	return nil
}

func (o *Orchestrator) storeAccount(account *models.Account) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accounts[account.Email] = account.Clone()
}

// markFailed records an external failure, e.g. an operator stop
func (o *Orchestrator) markFailed(email, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if account, ok := o.accounts[email]; ok && !account.Status.Terminal() {
		account.Status = models.StatusFailed
		account.ErrorMessage = reason
		account.UpdatedAt = time.Now()
	}
}
