// Package pool bounds concurrent automation tasks by numeric slot index.
// Scanning for the first free or dead index, rather than counting with a
// semaphore, lets a slot whose task died without reporting completion be
// reused on the next acquire.
package pool

import (
	"log/slog"
	"sync"

	"github.com/mixelka/provisor/internal/config"
)

// Task is the occupant of one slot
type Task interface {
	Email() string
	IsAlive() bool
	Stop()
}

// reserved holds an index between Acquire and Bind so two concurrent
// acquires cannot hand out the same slot
type reserved struct{}

func (reserved) Email() string { return "" }
func (reserved) IsAlive() bool { return true }
func (reserved) Stop()         {}

// Pool is the slot allocator. The mutex only ever covers map access; task
// cancellation happens outside it.
type Pool struct {
	mu       sync.Mutex
	slots    map[int]Task
	settings *config.Settings
	logger   *slog.Logger
}

// New creates an empty pool bounded by the settings' max workers
func New(settings *config.Settings, logger *slog.Logger) *Pool {
	return &Pool{
		slots:    make(map[int]Task),
		settings: settings,
		logger:   logger.With("component", "pool"),
	}
}

// Acquire reserves the first index in [0, maxWorkers) that is unused or
// whose occupant is no longer alive. Returns (-1, false) when live
// occupancy has reached the bound. The caller must Bind or Release the
// reserved index.
func (p *Pool) Acquire() (int, bool) {
	// Read the bound before taking the slot lock; settings carry their own
	limit := p.settings.MaxWorkers()

	p.mu.Lock()
	defer p.mu.Unlock()

	alive := 0
	for _, t := range p.slots {
		if t.IsAlive() {
			alive++
		}
	}
	if alive >= limit {
		return -1, false
	}

	for i := 0; i < limit; i++ {
		if t, ok := p.slots[i]; !ok || !t.IsAlive() {
			p.slots[i] = reserved{}
			return i, true
		}
	}
	return -1, false
}

// Bind installs the task occupying a previously acquired index
func (p *Pool) Bind(index int, t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[index] = t
}

// Release frees an index, but only while t still occupies it. A slot that
// was stopped and rebound to a new task must not be freed by the old
// task's completion.
func (p *Pool) Release(index int, t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.slots[index]; ok && (t == nil || current == t) {
		delete(p.slots, index)
	}
}

// Holds reports whether t still occupies index. A task that was stopped
// or displaced gets false and must not act on the slot's account.
func (p *Pool) Holds(index int, t Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[index] == t
}

// FindByEmail returns the slot of the live task owning email
func (p *Pool) FindByEmail(email string) (int, Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.slots {
		if t.IsAlive() && t.Email() == email {
			return i, t, true
		}
	}
	return -1, nil, false
}

// Stop cancels the occupant of index and removes the entry immediately,
// without waiting for the task to acknowledge
func (p *Pool) Stop(index int) {
	p.mu.Lock()
	t, ok := p.slots[index]
	delete(p.slots, index)
	p.mu.Unlock()

	if ok {
		t.Stop()
	}
}

// StopAll cancels every occupant, clears the registry and returns the
// emails of the stopped tasks
func (p *Pool) StopAll() []string {
	p.mu.Lock()
	tasks := make([]Task, 0, len(p.slots))
	for _, t := range p.slots {
		tasks = append(tasks, t)
	}
	p.slots = make(map[int]Task)
	p.mu.Unlock()

	var emails []string
	for _, t := range tasks {
		t.Stop()
		if email := t.Email(); email != "" {
			emails = append(emails, email)
		}
	}
	if len(emails) > 0 {
		p.logger.Info("stopped all tasks", "count", len(emails))
	}
	return emails
}

// ActiveCount returns the number of live occupants
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	alive := 0
	for _, t := range p.slots {
		if t.IsAlive() {
			alive++
		}
	}
	return alive
}
