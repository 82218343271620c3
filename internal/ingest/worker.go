package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
)

// WorkerPool drains the deferred ingestion queue.
type WorkerPool struct {
	queue        database.JobQueue
	pipeline     *Pipeline
	workers      int
	pollInterval time.Duration
	maxAttempts  int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a pool of n workers.
func NewWorkerPool(q database.JobQueue, p *Pipeline, workers int, pollInterval time.Duration, maxAttempts int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &WorkerPool{
		queue:        q,
		pipeline:     p,
		workers:      workers,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Start launches the workers. They run until Stop is called or ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	ctx, wp.cancel = context.WithCancel(ctx)
	wp.wg.Add(wp.workers)
	for i := range wp.workers {
		go wp.worker(ctx, i)
	}
	log.Printf("Started %d ingestion worker(s)", wp.workers)
}

// Stop cancels the workers and waits for in-progress jobs to finish.
func (wp *WorkerPool) Stop() {
	if wp.cancel != nil {
		wp.cancel()
	}
	wp.wg.Wait()
	log.Println("Ingestion workers stopped")
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for ctx.Err() == nil {
		job, err := wp.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Worker %d: claim failed: %v", id, err)
			}
			wp.queue.Wait(ctx, wp.pollInterval)
			continue
		}
		if job == nil {
			wp.queue.Wait(ctx, wp.pollInterval)
			continue
		}
		wp.process(ctx, id, job)
	}
}

// process runs one job. Jobs already leased are finished even during shutdown.
func (wp *WorkerPool) process(ctx context.Context, id int, job *database.Job) {
	jobCtx := context.WithoutCancel(ctx)

	outcome := wp.run(jobCtx, job)
	if outcome.Status != StatusFailure {
		if err := wp.queue.Complete(jobCtx, job.ID); err != nil {
			log.Printf("Worker %d: completing job %s: %v", id, job.ID, err)
		}
		return
	}

	retry := job.Attempts < wp.maxAttempts
	reason := outcome.Message()
	if err := wp.queue.Fail(jobCtx, job.ID, reason, retry); err != nil {
		log.Printf("Worker %d: failing job %s: %v", id, job.ID, err)
	}
	if retry {
		log.Printf("Worker %d: image %d attempt %d/%d failed, will retry: %s",
			id, job.ImageID, job.Attempts, wp.maxAttempts, reason)
	} else {
		log.Printf("Worker %d: image %d gave up after %d attempts: %s", id, job.ImageID, job.Attempts, reason)
	}
}

func (wp *WorkerPool) run(ctx context.Context, job *database.Job) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{ImageID: job.ImageID, Status: StatusFailure, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if len(job.Payload) == 0 {
		return Outcome{ImageID: job.ImageID, Status: StatusFailure, Err: errors.New("job has no image payload")}
	}
	return wp.pipeline.Ingest(ctx, job.ImageID, job.Payload)
}
