package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/lib/pq"
)

// jobChannel is the NOTIFY channel raised on every enqueue.
const jobChannel = "ingest_jobs"

// JobRepository is a durable ingestion queue backed by the ingest_jobs table.
type JobRepository struct {
	pool       *Pool
	visibility time.Duration
	backoff    time.Duration

	listenOnce sync.Once
	listener   *pq.Listener
}

// NewJobRepository creates a job queue. Running jobs older than visibility are reclaimed.
func NewJobRepository(pool *Pool, visibility time.Duration) *JobRepository {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &JobRepository{pool: pool, visibility: visibility, backoff: 10 * time.Second}
}

// Enqueue stores a pending job and wakes idle workers.
func (r *JobRepository) Enqueue(ctx context.Context, imageID int64, payload []byte) (string, error) {
	id := uuid.NewString()

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingest_jobs (id, image_id, payload, status)
		VALUES ($1, $2, $3, $4)
	`, id, imageID, payload, database.JobPending); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", jobChannel, id); err != nil {
		return "", fmt.Errorf("notify job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit job: %w", err)
	}
	return id, nil
}

// Claim leases the oldest available job. Returns nil, nil when the queue is empty.
func (r *JobRepository) Claim(ctx context.Context) (*database.Job, error) {
	var job database.Job
	err := r.pool.QueryRow(ctx, `
		UPDATE ingest_jobs SET
			status = $1,
			attempts = attempts + 1,
			locked_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM ingest_jobs
			WHERE (status = $2 AND available_at <= NOW())
			   OR (status = $1 AND locked_at < NOW() - make_interval(secs => $3::float8))
			ORDER BY available_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, image_id, payload, status, attempts, last_error, created_at
	`, database.JobRunning, database.JobPending, r.visibility.Seconds()).Scan(
		&job.ID, &job.ImageID, &job.Payload, &job.Status, &job.Attempts, &job.LastError, &job.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// Complete marks a job as done and releases its payload.
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ingest_jobs SET status = $1, payload = NULL, locked_at = NULL, updated_at = NOW()
		WHERE id = $2
	`, database.JobDone, id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records a failure. A retried job becomes available again after a linear backoff.
func (r *JobRepository) Fail(ctx context.Context, id string, reason string, retry bool) error {
	var err error
	if retry {
		_, err = r.pool.Exec(ctx, `
			UPDATE ingest_jobs SET
				status = $1,
				last_error = $2,
				locked_at = NULL,
				available_at = NOW() + make_interval(secs => $3::float8 * attempts),
				updated_at = NOW()
			WHERE id = $4
		`, database.JobPending, reason, r.backoff.Seconds(), id)
	} else {
		_, err = r.pool.Exec(ctx, `
			UPDATE ingest_jobs SET status = $1, last_error = $2, payload = NULL, locked_at = NULL, updated_at = NOW()
			WHERE id = $3
		`, database.JobFailed, reason, id)
	}
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

// Wait blocks until an enqueue notification arrives, the timeout passes, or ctx is done.
func (r *JobRepository) Wait(ctx context.Context, timeout time.Duration) {
	r.listenOnce.Do(r.startListener)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var notify <-chan *pq.Notification
	if r.listener != nil {
		notify = r.listener.Notify
	}

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-notify:
	}
}

// startListener subscribes to enqueue notifications. On failure workers fall back to polling.
func (r *JobRepository) startListener() {
	if r.pool.dsn == "" {
		return
	}
	l := pq.NewListener(r.pool.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("Job listener event %d: %v", ev, err)
		}
	})
	if err := l.Listen(jobChannel); err != nil {
		log.Printf("Warning: LISTEN %s failed, falling back to polling: %v", jobChannel, err)
		l.Close()
		return
	}
	r.listener = l
}

// Close stops the notification listener.
func (r *JobRepository) Close() error {
	if r.listener != nil {
		if err := r.listener.Close(); err != nil {
			return fmt.Errorf("closing job listener: %w", err)
		}
	}
	return nil
}
