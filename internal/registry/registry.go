// Package registry provides the in-memory task store for the docforge
// client. It is the single owner of Task values: the upload path only adds
// pending ids and the poll loop is the only mutator of status and result.
package registry

import (
	"iter"
	"sync"

	"github.com/docforge/docforge/internal/models"
)

// Update is one merge instruction keyed by task id.
type Update struct {
	Status models.TaskStatus
	Result *models.TaskResult
}

// Transition records a realized status change from an ApplyUpdates merge.
type Transition struct {
	Task models.Task
	From models.TaskStatus
	To   models.TaskStatus
}

// Terminal reports whether the transition landed in a terminal status.
func (t Transition) Terminal() bool {
	return t.To.IsTerminal()
}

// Registry is an ordered collection of tasks, newest submission first.
// Tasks are never removed; absence from an update batch means "unchanged",
// never deletion.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*models.Task
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tasks: make(map[string]*models.Task),
	}
}

// AddPending records a freshly submitted task. Ids are unique; re-adding an
// existing id is a no-op so a duplicate server response cannot clobber an
// already-advanced task.
func (r *Registry) AddPending(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; exists {
		return
	}
	r.tasks[id] = &models.Task{ID: id, Status: models.StatusPending}
	r.order = append([]string{id}, r.order...)
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Get returns a copy of the task with the given id.
func (r *Registry) Get(id string) (models.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *task, true
}

// Snapshot returns a copy of all tasks, newest submission first.
func (r *Registry) Snapshot() []models.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tasks[id])
	}
	return out
}

// List returns a restartable sequence over a snapshot of the registry taken
// at call time, newest submission first. Ranging over it concurrently with
// later merges is safe; the sequence never observes them.
func (r *Registry) List() iter.Seq[models.Task] {
	snapshot := r.Snapshot()
	return func(yield func(models.Task) bool) {
		for _, task := range snapshot {
			if !yield(task) {
				return
			}
		}
	}
}

// NonTerminal returns the ids of tasks that still need polling, newest
// submission first.
func (r *Registry) NonTerminal() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		if !r.tasks[id].Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyUpdates merges one poll tick's results by task id. Unknown ids and
// updates that would violate status monotonicity are dropped; a task absent
// from the batch is left untouched. The realized transitions are returned
// in registry order so callers can notify exactly once per change.
func (r *Registry) ApplyUpdates(updates map[string]Update) []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	var transitions []Transition
	for _, id := range r.order {
		update, ok := updates[id]
		if !ok {
			continue
		}
		task := r.tasks[id]
		if !task.Status.CanTransitionTo(update.Status) {
			continue
		}

		from := task.Status
		task.Status = update.Status
		if update.Result != nil {
			task.Result = update.Result
		}
		transitions = append(transitions, Transition{Task: *task, From: from, To: task.Status})
	}
	return transitions
}
