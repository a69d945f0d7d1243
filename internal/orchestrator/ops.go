package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mixelka/provisor/internal/mailbox"
	"github.com/mixelka/provisor/internal/worker"
	"github.com/mixelka/provisor/pkg/models"
)

// Stats summarizes the registry for listings
type Stats struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Creating int `json:"creating"`
	Failed   int `json:"failed"`
}

// Create provisions a brand new account: picks a provider, creates the
// mailbox synchronously so the caller learns the address, then hands the
// account to a slot. Capacity is checked first; a mailbox is never created
// for a request that cannot run.
func (o *Orchestrator) Create(ctx context.Context, username string) (string, error) {
	provider, ok := o.settings.RandomProvider()
	if !ok {
		return "", ErrNoProviders
	}

	index, acquired := o.pool.Acquire()
	if !acquired {
		return "", ErrCapacityExhausted
	}

	client := mailbox.NewClient(provider, o.cfg.HTTPTimeout, o.logger)
	jwt, address, err := client.CreateAddress(ctx, username)
	if err != nil {
		o.pool.Release(index, nil)
		return "", fmt.Errorf("mailbox creation failed: %w", err)
	}

	account := &models.Account{
		Email:     address,
		JWT:       jwt,
		Status:    models.StatusPending,
		Provider:  provider,
		CreatedAt: time.Now(),
	}
	o.storeAccount(account)
	o.startTask(index, account, models.ModeRegister)
	return address, nil
}

// List returns a page of accounts matching the phase filter ("success",
// "failed", "creating", "updating" or empty) and the email substring
// search, plus registry stats. Listing never fails; an empty registry
// yields empty results.
func (o *Orchestrator) List(filter, search string, page, perPage int) ([]*models.Account, int, Stats) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	search = strings.ToLower(search)

	o.mu.Lock()
	all := make([]*models.Account, 0, len(o.accounts))
	for _, account := range o.accounts {
		all = append(all, account.Clone())
	}
	o.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Email < all[j].Email
	})

	var stats Stats
	var matched []*models.Account
	for _, account := range all {
		stats.Total++
		switch account.Status.Phase() {
		case models.PhaseSuccess:
			stats.Success++
		case models.PhaseFailed:
			stats.Failed++
		default:
			stats.Creating++
		}

		if !matchesFilter(account.Status, filter) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(account.Email), search) {
			continue
		}
		matched = append(matched, account)
	}

	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := min(start+perPage, total)
	return matched[start:end], total, stats
}

func matchesFilter(status models.AccountStatus, filter string) bool {
	switch filter {
	case "":
		return true
	case "success":
		return status.Phase() == models.PhaseSuccess
	case "failed":
		return status.Phase() == models.PhaseFailed
	case "updating":
		return status == models.StatusUpdating
	case "creating":
		return status.Phase() == models.PhaseInProgress && status != models.StatusUpdating
	default:
		return false
	}
}

// Get returns one account
func (o *Orchestrator) Get(email string) (*models.Account, error) {
	if account := o.getAccount(email); account != nil {
		return account, nil
	}
	return nil, ErrNotFound
}

// Delete removes an account from the registry. A running task for it is
// not interrupted; use Stop for that.
func (o *Orchestrator) Delete(email string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.accounts[email]; !ok {
		return ErrNotFound
	}
	delete(o.accounts, email)
	return nil
}

// Refresh re-provisions one account's credentials, whatever its previous
// outcome; a failed account gets a clean re-run the same way a successful
// one does. An unknown email whose domain matches a configured provider
// gets an account synthesized for it; this is an interactive call, so
// capacity exhaustion is reported rather than queued.
func (o *Orchestrator) Refresh(email string) error {
	if _, _, running := o.pool.FindByEmail(email); running {
		return fmt.Errorf("a task is already running for %q: %w", email, ErrInvalidState)
	}

	account := o.getAccount(email)
	if account == nil {
		domain := models.EmailDomain(email)
		if domain == "" {
			return fmt.Errorf("malformed address %q: %w", email, ErrNotFound)
		}
		provider, ok := o.settings.ProviderForDomain(domain)
		if !ok {
			return fmt.Errorf("no provider configured for domain %q: %w", domain, ErrNotFound)
		}
		account = &models.Account{
			Email:     email,
			Status:    models.StatusPending,
			Provider:  provider,
			CreatedAt: time.Now(),
		}
		o.storeAccount(account)
	}

	index, acquired := o.pool.Acquire()
	if !acquired {
		return ErrCapacityExhausted
	}

	if account.Status.Terminal() {
		account.Status = models.StatusUpdating
		account.ErrorMessage = ""
		account.UpdatedAt = time.Now()
	}
	o.storeAccount(account)
	o.startTask(index, account, models.ModeRefresh)
	return nil
}

// RefreshAll refreshes every successful account. This is a batch call:
// accounts that find no free slot are queued for the dispatch loop instead
// of failing. Returns how many started immediately and how many queued.
func (o *Orchestrator) RefreshAll() (started, queued int, err error) {
	o.mu.Lock()
	var targets []*models.Account
	for _, account := range o.accounts {
		if account.Status.Phase() == models.PhaseSuccess {
			targets = append(targets, account.Clone())
		}
	}
	o.mu.Unlock()

	if len(targets) == 0 {
		return 0, 0, fmt.Errorf("no successful accounts to refresh: %w", ErrInvalidState)
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Email < targets[j].Email })

	for _, account := range targets {
		index, acquired := o.pool.Acquire()
		if !acquired {
			if o.enqueue(queuedTask{mode: models.ModeRefresh, email: account.Email}) {
				queued++
			}
			continue
		}
		account.Status = models.StatusUpdating
		account.UpdatedAt = time.Now()
		o.storeAccount(account)
		o.startTask(index, account, models.ModeRefresh)
		started++
	}
	return started, queued, nil
}

// Retry re-runs a failed account. Only failed accounts are retryable;
// accepting the retry clears the previous error.
func (o *Orchestrator) Retry(email string) error {
	account := o.getAccount(email)
	if account == nil {
		return ErrNotFound
	}
	if account.Status != models.StatusFailed {
		return fmt.Errorf("only failed accounts can be retried (status %s): %w", account.Status, ErrInvalidState)
	}

	index, acquired := o.pool.Acquire()
	if !acquired {
		return ErrCapacityExhausted
	}

	account.Status = models.StatusPending
	account.ErrorMessage = ""
	account.UpdatedAt = time.Now()
	o.storeAccount(account)
	o.startTask(index, account, models.ModeRegister)
	return nil
}

// Stop cancels the running task for one account and fails the account
// with a reason that distinguishes the operator's hand from an automation
// fault. The slot is reusable immediately.
func (o *Orchestrator) Stop(email string) error {
	index, _, ok := o.pool.FindByEmail(email)
	if !ok {
		return fmt.Errorf("no running task for %q: %w", email, ErrNotFound)
	}
	o.pool.Stop(index)
	o.markFailed(email, worker.StopReason)
	return nil
}

// StopAll cancels every running task and drains the pending queue without
// starting anything from it
func (o *Orchestrator) StopAll() int {
	emails := o.pool.StopAll()
	for _, email := range emails {
		o.markFailed(email, worker.StopReason)
	}

	for {
		select {
		case <-o.queue:
		default:
			return len(emails)
		}
	}
}

// ExportedAccount is one entry of the successful-accounts export
type ExportedAccount struct {
	Available  bool      `json:"available"`
	Email      string    `json:"email"`
	Csesidx    string    `json:"csesidx"`
	HostCOses  string    `json:"host_c_oses"`
	SecureCSes string    `json:"secure_c_ses"`
	TeamID     string    `json:"team_id"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Export returns every successful account with complete credentials
func (o *Orchestrator) Export() []ExportedAccount {
	o.mu.Lock()
	var ready []*models.Account
	for _, account := range o.accounts {
		if account.Status.Phase() == models.PhaseSuccess && account.Session.Complete() {
			ready = append(ready, account.Clone())
		}
	}
	o.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool { return ready[i].Email < ready[j].Email })

	userAgent := o.settings.UserAgent()
	out := make([]ExportedAccount, 0, len(ready))
	for _, account := range ready {
		updated := account.UpdatedAt
		if updated.IsZero() {
			updated = account.CreatedAt
		}
		out = append(out, ExportedAccount{
			Available:  true,
			Email:      account.Email,
			Csesidx:    account.Session.Csesidx,
			HostCOses:  account.Session.HostCOses,
			SecureCSes: account.Session.SecureCSes,
			TeamID:     account.Session.TeamID,
			UserAgent:  userAgent,
			CreatedAt:  account.CreatedAt,
			UpdatedAt:  updated,
		})
	}
	return out
}

// Status is the system status snapshot
type Status struct {
	Accounts struct {
		Total    int `json:"total"`
		Success  int `json:"success"`
		Creating int `json:"creating"`
		Updating int `json:"updating"`
		Failed   int `json:"failed"`
	} `json:"accounts"`
	Workers struct {
		Active int `json:"active"`
		Max    int `json:"max"`
	} `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// GetStatus reports registry, worker and queue occupancy. It always
// succeeds.
func (o *Orchestrator) GetStatus() Status {
	var s Status

	o.mu.Lock()
	for _, account := range o.accounts {
		s.Accounts.Total++
		switch {
		case account.Status == models.StatusUpdating:
			s.Accounts.Updating++
		case account.Status.Phase() == models.PhaseSuccess:
			s.Accounts.Success++
		case account.Status.Phase() == models.PhaseFailed:
			s.Accounts.Failed++
		default:
			s.Accounts.Creating++
		}
	}
	o.mu.Unlock()

	s.Workers.Active = o.pool.ActiveCount()
	s.Workers.Max = o.settings.MaxWorkers()
	s.QueueSize = len(o.queue)
	return s
}
