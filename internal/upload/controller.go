// Package upload submits documents to the conversion service: one multipart
// request per file, classification before any network call, per-job
// progress and cancellation.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docforge/docforge/internal/api"
	"github.com/docforge/docforge/internal/constants"
	"github.com/docforge/docforge/internal/events"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// Submitter is the slice of the API client the controller needs.
type Submitter interface {
	Upload(ctx context.Context, req api.UploadRequest) (*models.TaskCreated, error)
}

// Registrar receives the server-assigned id of each accepted submission.
// The controller only ever produces tasks; it never mutates them afterward.
type Registrar interface {
	AddPending(id string)
}

// Controller classifies files, submits them, and reports progress.
type Controller struct {
	client   Submitter
	registry Registrar
	bus      *events.Bus
	logger   *logging.Logger
}

// NewController creates an upload controller. bus may be nil.
func NewController(client Submitter, registry Registrar, bus *events.Bus, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return &Controller{
		client:   client,
		registry: registry,
		bus:      bus,
		logger:   logger,
	}
}

// SubmitRequest describes one file submission.
type SubmitRequest struct {
	// Path is the local file to submit.
	Path string

	// Subject is forwarded to AI conversions; empty means the server
	// default ("General").
	Subject string

	// AI carries optional provider fields for AI-capable task types.
	AI *api.AISettings

	// Progress, if set, receives a monotonically non-decreasing fraction
	// in [0, 1] while the transfer is active. It is decoupled from the
	// result: the job's outcome is reported via Wait/Done.
	Progress func(fraction float64)
}

// Submit classifies and submits one file. Classification and stat failures
// are returned synchronously before any network activity; the transfer
// itself runs in the background and reports through the returned Job.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	taskType, err := models.ClassifyTaskType(req.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", req.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory, not a file", req.Path)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := newJob(req.Path, taskType, info.Size(), cancel)

	c.logger.Debug().
		Str("job_id", job.ID).
		Str("file", req.Path).
		Str("task_type", string(taskType)).
		Int64("size", info.Size()).
		Msg("Submitting upload")

	c.publish(events.EventUploadStarted, job, 0, "", nil)

	go c.run(jobCtx, job, req)

	return job, nil
}

func (c *Controller) run(ctx context.Context, job *Job, req SubmitRequest) {
	defer job.Cancel() // release the context once the transfer is spent

	file, err := os.Open(job.Path)
	if err != nil {
		c.finish(job, "", fmt.Errorf("cannot open %s: %w", job.Path, err))
		return
	}
	defer file.Close()

	reader := &progressReader{
		reader: file,
		size:   job.Size,
		report: func(fraction float64) {
			if req.Progress != nil {
				req.Progress(fraction)
			}
			c.publish(events.EventUploadProgress, job, fraction, "", nil)
		},
	}

	created, err := c.client.Upload(ctx, api.UploadRequest{
		Filename: filepath.Base(job.Path),
		Content:  reader,
		TaskType: job.TaskType,
		Subject:  req.Subject,
		AI:       req.AI,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("file", job.Path).Msg("Upload failed")
		c.finish(job, "", err)
		return
	}

	// Land the bar on exactly 1.0; short files may round under it.
	reader.complete()

	c.registry.AddPending(created.ID)
	c.logger.Info().
		Str("task_id", created.ID).
		Str("file", job.Path).
		Msg("Upload accepted, tracking task")
	c.finish(job, created.ID, nil)
}

func (c *Controller) finish(job *Job, taskID string, err error) {
	job.finish(taskID, err)
	c.publish(events.EventUploadFinished, job, 1, taskID, err)
}

func (c *Controller) publish(eventType events.EventType, job *Job, fraction float64, taskID string, err error) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(&events.UploadEvent{
		BaseEvent: events.BaseEvent{EventType: eventType, Time: time.Now()},
		JobID:     job.ID,
		Filename:  job.Path,
		TaskType:  job.TaskType,
		Fraction:  fraction,
		TaskID:    taskID,
		Err:       err,
	})
}

// BatchResult pairs one requested path with its job or its pre-flight error.
type BatchResult struct {
	Path string
	Job  *Job
	Err  error
}

// SubmitBatch submits many files with bounded concurrency. Pre-flight
// rejections (unsupported type, unreadable file) and transfer failures are
// isolated per file; sibling uploads always proceed. Results are returned
// in input order once every submission has finished.
func (c *Controller) SubmitBatch(ctx context.Context, reqs []SubmitRequest, maxConcurrent int) []BatchResult {
	if maxConcurrent < constants.MinMaxConcurrent {
		maxConcurrent = constants.DefaultMaxConcurrentUploads
	}
	if maxConcurrent > constants.MaxMaxConcurrent {
		maxConcurrent = constants.MaxMaxConcurrent
	}

	results := make([]BatchResult, len(reqs))
	semaphore := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, req SubmitRequest) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result := BatchResult{Path: req.Path}
			job, err := c.Submit(ctx, req)
			if err != nil {
				result.Err = err
				results[idx] = result
				return
			}
			result.Job = job
			if _, err := job.Wait(); err != nil {
				result.Err = err
			}
			results[idx] = result
		}(i, req)
	}

	wg.Wait()
	return results
}

// progressReader reports a monotonically non-decreasing fraction of the
// file consumed by the multipart encoder.
type progressReader struct {
	reader io.Reader
	size   int64
	read   int64
	last   float64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	p.read += int64(n)
	if p.size > 0 {
		fraction := float64(p.read) / float64(p.size)
		if fraction > 1 {
			fraction = 1
		}
		if fraction > p.last {
			p.last = fraction
			p.report(fraction)
		}
	}
	return n, err
}

func (p *progressReader) complete() {
	if p.last < 1 {
		p.last = 1
		p.report(1)
	}
}
