package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an image record does not exist.
var ErrNotFound = errors.New("not found")

// Image is an uploaded image and the count of faces extracted from it
type Image struct {
	ID            int64
	Filename      string
	Path          string // blob store path of the original
	ThumbnailPath string // blob store path of the thumbnail (may be empty)
	FaceCount     int
	CreatedAt     time.Time
}

// StoredFace is a face descriptor stored in the database
type StoredFace struct {
	ID         int64
	ImageID    int64
	FaceIndex  int
	Descriptor []float32
	Method     string // extraction method tag, e.g. "dlib_resnet_v1@1"
	Dim        int
	CreatedAt  time.Time
}

// Stats aggregates counts over the image and face tables
type Stats struct {
	TotalImages     int `json:"total_images"`
	TotalFaces      int `json:"total_faces"`
	ImagesWithFaces int `json:"images_with_faces"`
}

// Job status values for the deferred ingestion queue
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job is a deferred ingestion request
type Job struct {
	ID        string
	ImageID   int64
	Payload   []byte // the image bytes to extract from
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}
