package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/registry"
)

// fakeClock is a hand-cranked Clock/Ticker.
type fakeClock struct {
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ch: make(chan time.Time)}
}

func (c *fakeClock) NewTicker(time.Duration) Ticker { return c }
func (c *fakeClock) C() <-chan time.Time            { return c.ch }
func (c *fakeClock) Stop()                          {}

// advance fires one tick and returns true if the loop was listening.
func (c *fakeClock) advance() bool {
	select {
	case c.ch <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

// fakeFetcher serves scripted statuses and counts fetches per task id.
type fakeFetcher struct {
	mu      sync.Mutex
	replies map[string]func() (*models.Task, error)
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		replies: make(map[string]func() (*models.Task, error)),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) reply(id string, status models.TaskStatus, result *models.TaskResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[id] = func() (*models.Task, error) {
		return &models.Task{ID: id, Status: status, Result: result}, nil
	}
}

func (f *fakeFetcher) fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[id] = func() (*models.Task, error) { return nil, err }
}

func (f *fakeFetcher) GetTaskStatus(_ context.Context, id string) (*models.Task, error) {
	f.mu.Lock()
	f.calls[id]++
	fn, ok := f.replies[id]
	f.mu.Unlock()
	if !ok {
		return &models.Task{ID: id, Status: models.StatusPending}, nil
	}
	return fn()
}

func (f *fakeFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// fakeEmitter records terminal notifications.
type fakeEmitter struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (e *fakeEmitter) TaskSucceeded(task models.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.succeeded = append(e.succeeded, task.ID)
}

func (e *fakeEmitter) TaskFailed(task models.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, task.ID)
}

func (e *fakeEmitter) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.succeeded), len(e.failed)
}

func newScheduler(t *testing.T, reg *registry.Registry, fetcher StatusFetcher, emitter Emitter, clock Clock) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Registry: reg,
		Fetcher:  fetcher,
		Emitter:  emitter,
		Clock:    clock,
		Interval: time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTickSkipsTerminalTasks(t *testing.T) {
	reg := registry.New()
	reg.AddPending("done")
	reg.AddPending("p1")
	reg.AddPending("p2")
	reg.ApplyUpdates(map[string]registry.Update{"done": {Status: models.StatusSuccess}})

	fetcher := newFakeFetcher()
	s := newScheduler(t, reg, fetcher, nil, newFakeClock())

	s.tick(context.Background())

	if got := fetcher.totalCalls(); got != 2 {
		t.Errorf("total fetches = %d, want 2", got)
	}
	if fetcher.callCount("done") != 0 {
		t.Error("terminal task was re-polled")
	}
	if fetcher.callCount("p1") != 1 || fetcher.callCount("p2") != 1 {
		t.Errorf("pending fetches = %d/%d, want 1/1", fetcher.callCount("p1"), fetcher.callCount("p2"))
	}
}

func TestTickNoOutstandingTasksMakesNoRequests(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")
	reg.ApplyUpdates(map[string]registry.Update{"a": {Status: models.StatusFailed}})

	fetcher := newFakeFetcher()
	s := newScheduler(t, reg, fetcher, nil, newFakeClock())

	s.tick(context.Background())

	if fetcher.totalCalls() != 0 {
		t.Errorf("fetches = %d, want 0", fetcher.totalCalls())
	}
}

func TestTickMixedOutcomes(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")
	reg.AddPending("b")
	reg.AddPending("c")

	fetcher := newFakeFetcher()
	fetcher.reply("a", models.StatusSuccess, &models.TaskResult{OutputFileURL: "/dl/a"})
	fetcher.reply("b", models.StatusFailed, &models.TaskResult{ErrorMessage: "conversion error"})
	fetcher.fail("c", errors.New("connection refused"))

	emitter := &fakeEmitter{}
	s := newScheduler(t, reg, fetcher, emitter, newFakeClock())

	s.tick(context.Background())

	succeeded, failed := emitter.counts()
	if succeeded != 1 || failed != 2 {
		t.Errorf("notifications = %d succeeded / %d failed, want 1/2", succeeded, failed)
	}

	a, _ := reg.Get("a")
	if a.Status != models.StatusSuccess {
		t.Errorf("a = %v, want success", a.Status)
	}
	b, _ := reg.Get("b")
	if b.Status != models.StatusFailed {
		t.Errorf("b = %v, want failed", b.Status)
	}
	c, _ := reg.Get("c")
	if c.Status != models.StatusFailed {
		t.Errorf("c = %v, want failed", c.Status)
	}
	if c.Result == nil || !strings.Contains(c.Result.ErrorMessage, "status poll failed") {
		t.Errorf("c result = %+v, want synthetic poll diagnostic", c.Result)
	}
}

func TestTickErrorIsolation(t *testing.T) {
	reg := registry.New()
	reg.AddPending("broken")
	reg.AddPending("fine")

	fetcher := newFakeFetcher()
	fetcher.fail("broken", errors.New("i/o timeout"))
	fetcher.reply("fine", models.StatusInProgress, nil)

	s := newScheduler(t, reg, fetcher, &fakeEmitter{}, newFakeClock())
	s.tick(context.Background())

	fine, _ := reg.Get("fine")
	if fine.Status != models.StatusInProgress {
		t.Errorf("sibling task = %v, want in_progress despite the other task's fetch failure", fine.Status)
	}
}

func TestIdempotentTickEmitsNothing(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")
	reg.AddPending("b")

	fetcher := newFakeFetcher()
	fetcher.reply("a", models.StatusPending, nil)
	fetcher.reply("b", models.StatusPending, nil)

	emitter := &fakeEmitter{}
	s := newScheduler(t, reg, fetcher, emitter, newFakeClock())

	before := reg.Snapshot()
	s.tick(context.Background())
	after := reg.Snapshot()

	succeeded, failed := emitter.counts()
	if succeeded+failed != 0 {
		t.Errorf("notifications = %d, want 0", succeeded+failed)
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Status != after[i].Status {
			t.Errorf("snapshot changed at %d: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestNoNotificationForInProgressTransition(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")

	fetcher := newFakeFetcher()
	fetcher.reply("a", models.StatusInProgress, nil)

	emitter := &fakeEmitter{}
	s := newScheduler(t, reg, fetcher, emitter, newFakeClock())
	s.tick(context.Background())

	succeeded, failed := emitter.counts()
	if succeeded+failed != 0 {
		t.Error("pending -> in_progress must not notify")
	}
}

func TestTerminalNotificationFiresExactlyOnce(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")

	fetcher := newFakeFetcher()
	fetcher.reply("a", models.StatusSuccess, nil)

	emitter := &fakeEmitter{}
	s := newScheduler(t, reg, fetcher, emitter, newFakeClock())

	s.tick(context.Background())
	s.tick(context.Background())
	s.tick(context.Background())

	succeeded, _ := emitter.counts()
	if succeeded != 1 {
		t.Errorf("success notifications = %d, want exactly 1", succeeded)
	}
	// Terminal task is excluded from later polls entirely.
	if fetcher.callCount("a") != 1 {
		t.Errorf("fetches = %d, want 1", fetcher.callCount("a"))
	}
}

func TestSchedulerLoopAndClose(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")

	fetcher := newFakeFetcher()
	fetcher.reply("a", models.StatusPending, nil)

	clock := newFakeClock()
	s := newScheduler(t, reg, fetcher, nil, clock)

	s.Start(context.Background())
	// Start runs the first tick synchronously.
	if got := fetcher.callCount("a"); got != 1 {
		t.Fatalf("fetches after Start = %d, want 1", got)
	}

	if !clock.advance() {
		t.Fatal("scheduler loop is not listening for ticks")
	}
	waitFor(t, func() bool { return fetcher.callCount("a") == 2 }, "second tick never fetched")

	s.Close()

	// After disposal the loop is gone: the timer has no listener and no
	// further fetch can originate from this scheduler.
	if clock.advance() {
		t.Error("tick was consumed after Close")
	}
	if got := fetcher.callCount("a"); got != 2 {
		t.Errorf("fetches after Close = %d, want 2", got)
	}

	s.Close() // idempotent
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	reg := registry.New()
	reg.AddPending("slow")

	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := newFakeFetcher()
	fetcher.mu.Lock()
	fetcher.replies["slow"] = func() (*models.Task, error) {
		close(started)
		<-release
		return &models.Task{ID: "slow", Status: models.StatusPending}, nil
	}
	fetcher.mu.Unlock()

	s := newScheduler(t, reg, fetcher, nil, newFakeClock())

	done := make(chan struct{})
	go func() {
		s.runTick(context.Background())
		close(done)
	}()
	<-started

	// Timer fires while the first tick is still in its fetch phase: the
	// second tick must be skipped, not run concurrently.
	s.runTick(context.Background())
	if got := fetcher.callCount("slow"); got != 1 {
		t.Errorf("fetches = %d, overlapping tick was not skipped", got)
	}

	close(release)
	<-done
}

// statusFetcherFunc adapts a function to the StatusFetcher interface.
type statusFetcherFunc func(ctx context.Context, id string) (*models.Task, error)

func (f statusFetcherFunc) GetTaskStatus(ctx context.Context, id string) (*models.Task, error) {
	return f(ctx, id)
}

func TestCancellationDoesNotFailTasks(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")
	reg.AddPending("b")

	ctx, cancel := context.WithCancel(context.Background())

	// Both fetches block until the watch context is cancelled, then fail
	// with the context error, as a real HTTP client would.
	started := make(chan struct{}, 2)
	fetcher := statusFetcherFunc(func(fetchCtx context.Context, id string) (*models.Task, error) {
		started <- struct{}{}
		<-fetchCtx.Done()
		return nil, fetchCtx.Err()
	})

	emitter := &fakeEmitter{}
	s := newScheduler(t, reg, fetcher, emitter, newFakeClock())

	done := make(chan struct{})
	go func() {
		s.runTick(ctx)
		close(done)
	}()
	<-started
	<-started

	cancel()
	<-done

	// Cancellation is teardown, not per-task failure: nothing merges,
	// nothing notifies.
	for _, id := range []string{"a", "b"} {
		task, _ := reg.Get(id)
		if task.Status != models.StatusPending {
			t.Errorf("task %s status = %v, cancellation must not fail tasks", id, task.Status)
		}
	}
	succeeded, failed := emitter.counts()
	if succeeded+failed != 0 {
		t.Errorf("cancelled tick sent %d notifications, want 0", succeeded+failed)
	}
}

func TestCloseDiscardsInFlightResults(t *testing.T) {
	reg := registry.New()
	reg.AddPending("a")

	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := newFakeFetcher()
	fetcher.mu.Lock()
	fetcher.replies["a"] = func() (*models.Task, error) {
		close(started)
		<-release
		return &models.Task{ID: "a", Status: models.StatusSuccess}, nil
	}
	fetcher.mu.Unlock()

	emitter := &fakeEmitter{}
	s := newScheduler(t, reg, fetcher, emitter, newFakeClock())

	done := make(chan struct{})
	go func() {
		s.runTick(context.Background())
		close(done)
	}()
	<-started

	s.Close()
	close(release)
	<-done

	// The in-flight response arrived after disposal: merge is a no-op.
	task, _ := reg.Get("a")
	if task.Status != models.StatusPending {
		t.Errorf("status = %v, disposal must discard in-flight merges", task.Status)
	}
	succeeded, failed := emitter.counts()
	if succeeded+failed != 0 {
		t.Error("disposed scheduler must not notify")
	}
}
