package upload

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/docforge/docforge/internal/models"
)

// Job is one in-flight upload. It is ephemeral: once the submission
// succeeds, fails, or is cancelled, the job is spent — the task living on
// in the registry is the durable record.
type Job struct {
	// ID identifies the job client-side (progress bars, cancellation).
	// The server-assigned task id only exists after a successful response.
	ID string

	// Path is the local file being submitted.
	Path string

	// TaskType is the conversion kind derived from the file extension.
	TaskType models.TaskType

	// Size is the file size in bytes, used for progress fractions.
	Size int64

	cancel     context.CancelFunc
	cancelOnce sync.Once

	done chan struct{}

	mu     sync.Mutex
	taskID string
	err    error
}

func newJob(path string, taskType models.TaskType, size int64, cancel context.CancelFunc) *Job {
	return &Job{
		ID:       uuid.NewString(),
		Path:     path,
		TaskType: taskType,
		Size:     size,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Cancel aborts this job's transfer and releases its resources. Idempotent,
// and scoped strictly to this job: concurrent uploads are unaffected.
func (j *Job) Cancel() {
	j.cancelOnce.Do(j.cancel)
}

// Done is closed when the submission has finished, one way or another.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the submission finishes and returns the server-assigned
// task id, or the submission error.
func (j *Job) Wait() (string, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.taskID, j.err
}

func (j *Job) finish(taskID string, err error) {
	j.mu.Lock()
	j.taskID = taskID
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
