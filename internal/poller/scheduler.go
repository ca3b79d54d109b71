// Package poller reconciles the local task registry against the conversion
// service's status endpoint on a fixed interval.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docforge/docforge/internal/constants"
	"github.com/docforge/docforge/internal/events"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/registry"
)

// StatusFetcher is the slice of the API client the scheduler needs.
type StatusFetcher interface {
	GetTaskStatus(ctx context.Context, taskID string) (*models.Task, error)
}

// Emitter receives exactly one call per task transition into a terminal
// status. Non-terminal transitions are not emitted.
type Emitter interface {
	TaskSucceeded(task models.Task)
	TaskFailed(task models.Task)
}

// Config assembles a Scheduler.
type Config struct {
	Registry *registry.Registry
	Fetcher  StatusFetcher
	Emitter  Emitter    // optional
	Bus      *events.Bus // optional
	Logger   *logging.Logger
	Interval time.Duration
	Clock    Clock
}

// Scheduler drives the poll loop. One tick fully finishes (fetch + merge)
// before the next may start; a timer firing while a tick is in flight is
// skipped rather than overlapped.
type Scheduler struct {
	registry *registry.Registry
	fetcher  StatusFetcher
	emitter  Emitter
	bus      *events.Bus
	logger   *logging.Logger
	interval time.Duration
	clock    Clock

	stopChan  chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	inFlight  atomic.Bool
	disposed  atomic.Bool
}

// New creates a scheduler. It does not start polling until Start is called.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("poller: registry is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("poller: status fetcher is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultPollInterval
	}
	if cfg.Interval < constants.MinPollInterval {
		cfg.Interval = constants.MinPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefaultCLILogger()
	}

	return &Scheduler{
		registry: cfg.Registry,
		fetcher:  cfg.Fetcher,
		emitter:  cfg.Emitter,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins the polling loop. The first tick runs immediately so freshly
// submitted tasks do not wait a full interval for their first status.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.runTick(ctx)

		s.wg.Add(1)
		go s.loop(ctx)
	})
}

// Close stops the scheduler. No tick fires after Close returns; a tick
// already in flight discards its results instead of merging them.
// Idempotent.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.disposed.Store(true)
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C():
			s.runTick(ctx)
		}
	}
}

// runTick executes one reconciliation cycle, skipping if the previous one
// has not finished its merge yet.
func (s *Scheduler) runTick(ctx context.Context) {
	if s.disposed.Load() {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("Previous poll tick still in flight, skipping")
		return
	}
	defer s.inFlight.Store(false)

	s.tick(ctx)
}

type fetchResult struct {
	id     string
	update registry.Update
}

func (s *Scheduler) tick(ctx context.Context) {
	ids := s.registry.NonTerminal()
	if len(ids) == 0 {
		return
	}

	s.logger.Debug().Int("outstanding", len(ids)).Msg("Polling task statuses")

	// Fetch phase: one concurrent request per outstanding task. All fetches
	// complete before any result is merged, and merging is keyed by task id
	// because responses arrive in no particular order.
	results := make([]fetchResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(slot int, taskID string) {
			defer wg.Done()
			results[slot] = fetchResult{id: taskID, update: s.fetchOne(ctx, taskID)}
		}(i, id)
	}
	wg.Wait()

	// Merge phase. A disposed scheduler has no registry left to mutate,
	// and a cancelled context means every fetch failed from teardown, not
	// from its task; in-flight results are simply discarded either way.
	if s.disposed.Load() || ctx.Err() != nil {
		return
	}

	updates := make(map[string]registry.Update, len(results))
	for _, r := range results {
		updates[r.id] = r.update
	}

	transitions := s.registry.ApplyUpdates(updates)
	for _, tr := range transitions {
		if s.bus != nil {
			s.bus.PublishTaskState(tr.Task, tr.From, tr.To)
		}
		if !tr.Terminal() {
			continue
		}
		s.notify(tr)
	}
}

// fetchOne retrieves one task's status. A transport or parse failure is
// isolated to that task: it becomes a failed update with a synthetic
// diagnostic result rather than aborting the tick or staying pending
// forever. Cancellation is not a task failure; the whole tick is dropped
// before the merge.
func (s *Scheduler) fetchOne(ctx context.Context, taskID string) registry.Update {
	task, err := s.fetcher.GetTaskStatus(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			return registry.Update{Status: models.StatusPending}
		}
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Status poll failed")
		if s.bus != nil {
			s.bus.Publish(&events.PollErrorEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventPollError, Time: time.Now()},
				TaskID:    taskID,
				Err:       err,
			})
		}
		return registry.Update{
			Status: models.StatusFailed,
			Result: &models.TaskResult{
				ErrorMessage: fmt.Sprintf("status poll failed: %v", err),
			},
		}
	}

	return registry.Update{Status: task.Status, Result: task.Result}
}

func (s *Scheduler) notify(tr registry.Transition) {
	switch tr.To {
	case models.StatusSuccess:
		s.logger.Info().Str("task_id", tr.Task.ID).Msg("Task succeeded")
		if s.emitter != nil {
			s.emitter.TaskSucceeded(tr.Task)
		}
	case models.StatusFailed:
		msg := ""
		if tr.Task.Result != nil {
			msg = tr.Task.Result.ErrorMessage
		}
		s.logger.Error().Str("task_id", tr.Task.ID).Str("error", msg).Msg("Task failed")
		if s.emitter != nil {
			s.emitter.TaskFailed(tr.Task)
		}
	}
}
