package database

import (
	"context"
	"time"
)

// ImageReader provides read-only access to image records
type ImageReader interface {
	// Get retrieves an image by id, returns ErrNotFound if missing
	Get(ctx context.Context, id int64) (*Image, error)
	// GetByIDs fetches many images in one round trip. Missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]Image, error)
	// List returns a page of images ordered by id
	List(ctx context.Context, skip, limit int) ([]Image, error)
	// Count returns the total number of images
	Count(ctx context.Context) (int, error)
	// Stats returns aggregate counts
	Stats(ctx context.Context) (*Stats, error)
	// Recent returns the n most recently created images
	Recent(ctx context.Context, n int) ([]Image, error)
}

// ImageWriter creates image records
type ImageWriter interface {
	ImageReader

	// Create inserts the image with face_count 0 and sets its ID and CreatedAt
	Create(ctx context.Context, img *Image) error
	// Delete removes an image record. Missing ids are not an error.
	Delete(ctx context.Context, id int64) error
}

// FaceReader provides read-only access to face descriptors
type FaceReader interface {
	// GetAll returns every stored face in scan order (id ascending)
	GetAll(ctx context.Context) ([]StoredFace, error)
	// GetByImage returns the faces of one image ordered by face_index
	GetByImage(ctx context.Context, imageID int64) ([]StoredFace, error)
	// Count returns the total number of stored faces
	Count(ctx context.Context) (int, error)
	// Sample returns up to n faces for diagnostics
	Sample(ctx context.Context, n int) ([]StoredFace, error)
}

// FaceWriter provides write access to face descriptors
type FaceWriter interface {
	FaceReader

	// ReplaceFaces atomically replaces all faces of an image and sets its face_count.
	// On error nothing is changed. Returns ErrNotFound if the image does not exist.
	ReplaceFaces(ctx context.Context, imageID int64, faces []StoredFace) error
}

// JobQueue is a durable queue of deferred ingestion jobs
type JobQueue interface {
	// Enqueue stores a pending job and returns its id
	Enqueue(ctx context.Context, imageID int64, payload []byte) (string, error)
	// Claim leases the oldest available job, or returns nil when none is available
	Claim(ctx context.Context) (*Job, error)
	// Complete marks a job as done and drops its payload
	Complete(ctx context.Context, id string) error
	// Fail records a failure. With retry the job becomes available again after a backoff.
	Fail(ctx context.Context, id string, reason string, retry bool) error
	// Wait blocks until a job may be available, the timeout passes, or ctx ends
	Wait(ctx context.Context, timeout time.Duration)
}
