package pool

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/mixelka/provisor/internal/config"
)

type fakeTask struct {
	email   string
	alive   atomic.Bool
	stopped atomic.Bool
}

func newFakeTask(email string) *fakeTask {
	t := &fakeTask{email: email}
	t.alive.Store(true)
	return t
}

func (t *fakeTask) Email() string { return t.email }
func (t *fakeTask) IsAlive() bool { return t.alive.Load() }
func (t *fakeTask) Stop()         { t.stopped.Store(true) }

func newTestPool(t *testing.T, maxWorkers int) (*Pool, *config.Settings) {
	t.Helper()
	settings := config.NewSettings(&config.Config{MaxWorkers: maxWorkers})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(settings, logger), settings
}

func TestAcquireBoundedByMaxWorkers(t *testing.T) {
	p, _ := newTestPool(t, 2)

	i0, ok := p.Acquire()
	if !ok || i0 != 0 {
		t.Fatalf("expected slot 0, got %d %v", i0, ok)
	}
	p.Bind(i0, newFakeTask("a@example.com"))

	i1, ok := p.Acquire()
	if !ok || i1 != 1 {
		t.Fatalf("expected slot 1, got %d %v", i1, ok)
	}
	p.Bind(i1, newFakeTask("b@example.com"))

	if _, ok := p.Acquire(); ok {
		t.Fatal("expected acquisition to fail at capacity")
	}
	if got := p.ActiveCount(); got != 2 {
		t.Fatalf("expected 2 active, got %d", got)
	}
}

func TestAcquireReusesDeadSlot(t *testing.T) {
	p, _ := newTestPool(t, 1)

	index, ok := p.Acquire()
	if !ok {
		t.Fatal("expected a slot")
	}
	task := newFakeTask("a@example.com")
	p.Bind(index, task)

	if _, ok := p.Acquire(); ok {
		t.Fatal("expected no free slot while the task lives")
	}

	// A task that died without releasing must not leak the slot
	task.alive.Store(false)

	again, ok := p.Acquire()
	if !ok || again != index {
		t.Fatalf("expected dead slot %d to be reused, got %d %v", index, again, ok)
	}
}

func TestReservedSlotCountsTowardCapacity(t *testing.T) {
	p, _ := newTestPool(t, 1)

	if _, ok := p.Acquire(); !ok {
		t.Fatal("expected a slot")
	}
	// Reserved but not yet bound still occupies the pool
	if _, ok := p.Acquire(); ok {
		t.Fatal("expected the reserved slot to block a second acquire")
	}
}

func TestReleaseOnlyFreesOwnOccupant(t *testing.T) {
	p, _ := newTestPool(t, 1)

	index, _ := p.Acquire()
	old := newFakeTask("a@example.com")
	p.Bind(index, old)

	// Operator stop rebinds the slot to a newer task
	p.Stop(index)
	index2, ok := p.Acquire()
	if !ok || index2 != index {
		t.Fatalf("expected the stopped slot to be reusable, got %d %v", index2, ok)
	}
	replacement := newFakeTask("b@example.com")
	p.Bind(index2, replacement)

	// The old task's completion must not free the replacement's slot
	p.Release(index, old)
	if _, _, found := p.FindByEmail("b@example.com"); !found {
		t.Fatal("replacement task lost its slot")
	}

	p.Release(index, replacement)
	if _, _, found := p.FindByEmail("b@example.com"); found {
		t.Fatal("expected the slot to be freed by its occupant")
	}
}

func TestHolds(t *testing.T) {
	p, _ := newTestPool(t, 1)

	index, _ := p.Acquire()
	task := newFakeTask("a@example.com")
	p.Bind(index, task)

	if !p.Holds(index, task) {
		t.Fatal("expected the bound task to hold its slot")
	}
	if p.Holds(index, newFakeTask("b@example.com")) {
		t.Fatal("a foreign task must not hold the slot")
	}

	p.Stop(index)
	if p.Holds(index, task) {
		t.Fatal("a stopped task must no longer hold its slot")
	}
}

func TestStopCancelsAndRemoves(t *testing.T) {
	p, _ := newTestPool(t, 1)

	index, _ := p.Acquire()
	task := newFakeTask("a@example.com")
	p.Bind(index, task)

	p.Stop(index)
	if !task.stopped.Load() {
		t.Fatal("expected the occupant to be cancelled")
	}
	// The slot is immediately reusable even though the task has not
	// acknowledged the stop
	if _, ok := p.Acquire(); !ok {
		t.Fatal("expected the slot to be free right after stop")
	}
}

func TestStopAll(t *testing.T) {
	p, _ := newTestPool(t, 3)

	tasks := []*fakeTask{
		newFakeTask("a@example.com"),
		newFakeTask("b@example.com"),
		newFakeTask("c@example.com"),
	}
	for _, task := range tasks {
		index, ok := p.Acquire()
		if !ok {
			t.Fatal("expected a slot")
		}
		p.Bind(index, task)
	}

	emails := p.StopAll()
	if len(emails) != 3 {
		t.Fatalf("expected 3 stopped tasks, got %d", len(emails))
	}
	for _, task := range tasks {
		if !task.stopped.Load() {
			t.Fatalf("task %s was not cancelled", task.email)
		}
	}
	if p.ActiveCount() != 0 {
		t.Fatal("expected an empty pool after StopAll")
	}
}

func TestLoweredBoundRestrictsFutureAcquires(t *testing.T) {
	p, settings := newTestPool(t, 2)

	for i := 0; i < 2; i++ {
		index, ok := p.Acquire()
		if !ok {
			t.Fatal("expected a slot")
		}
		p.Bind(index, newFakeTask("task@example.com"))
	}

	settings.SetMaxWorkers(1)

	// Both tasks keep running; only new acquisition is restricted
	if got := p.ActiveCount(); got != 2 {
		t.Fatalf("expected running tasks to survive the lowered bound, got %d", got)
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("expected no slot under the lowered bound")
	}
}

func TestMaxWorkersClamped(t *testing.T) {
	settings := config.NewSettings(&config.Config{MaxWorkers: 99})
	if got := settings.MaxWorkers(); got != 10 {
		t.Fatalf("expected clamp to 10, got %d", got)
	}
	settings.SetMaxWorkers(0)
	if got := settings.MaxWorkers(); got != 1 {
		t.Fatalf("expected clamp to 1, got %d", got)
	}
}
