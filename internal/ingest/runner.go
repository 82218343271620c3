package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-search/internal/database"
)

// ErrQueueUnavailable is returned when a deferred job cannot be enqueued.
var ErrQueueUnavailable = errors.New("ingestion queue unavailable")

// StatusProcessing is reported for uploads handed to the deferred queue.
const StatusProcessing = "processing"

// Submission is what an upload reports after handing an image to a runner.
type Submission struct {
	Status    string
	FaceCount *int // set only when ingestion completed inline
	JobID     string
	Failed    bool
}

// Runner decides when ingestion runs relative to the upload request.
type Runner interface {
	Submit(ctx context.Context, imageID int64, imageData []byte) (Submission, error)
	Mode() string
}

// InlineRunner ingests synchronously within the request.
type InlineRunner struct {
	pipeline *Pipeline
}

func NewInlineRunner(p *Pipeline) *InlineRunner {
	return &InlineRunner{pipeline: p}
}

func (r *InlineRunner) Mode() string { return "inline" }

// Submit runs the pipeline. Ingestion failures are reported in the submission, not as an error.
func (r *InlineRunner) Submit(ctx context.Context, imageID int64, imageData []byte) (Submission, error) {
	outcome := r.pipeline.Ingest(ctx, imageID, imageData)
	sub := Submission{Status: outcome.Message(), Failed: outcome.Status == StatusFailure}
	if !sub.Failed {
		n := outcome.FaceCount
		sub.FaceCount = &n
	}
	return sub, nil
}

// DeferredRunner enqueues a durable job for the worker pool.
type DeferredRunner struct {
	queue database.JobQueue
}

func NewDeferredRunner(q database.JobQueue) *DeferredRunner {
	return &DeferredRunner{queue: q}
}

func (r *DeferredRunner) Mode() string { return "deferred" }

func (r *DeferredRunner) Submit(ctx context.Context, imageID int64, imageData []byte) (Submission, error) {
	id, err := r.queue.Enqueue(ctx, imageID, imageData)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return Submission{Status: StatusProcessing, JobID: id}, nil
}
