package database

import (
	"errors"
	"sync"
)

// ErrNoBackend is returned when no storage backend has been registered
var ErrNoBackend = errors.New("no database backend registered")

var (
	backendMu      sync.RWMutex
	postgresImages func() ImageWriter
	postgresFaces  func() FaceWriter
	postgresJobs   func() JobQueue
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the cmd package to avoid import cycles.
func RegisterPostgresBackend(images func() ImageWriter, faces func() FaceWriter, jobs func() JobQueue) {
	backendMu.Lock()
	defer backendMu.Unlock()
	postgresImages = images
	postgresFaces = faces
	postgresJobs = jobs
}

// GetImageWriter returns the registered image repository
func GetImageWriter() (ImageWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if postgresImages == nil {
		return nil, ErrNoBackend
	}
	return postgresImages(), nil
}

// GetFaceWriter returns the registered face repository
func GetFaceWriter() (FaceWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if postgresFaces == nil {
		return nil, ErrNoBackend
	}
	return postgresFaces(), nil
}

// GetJobQueue returns the registered job queue
func GetJobQueue() (JobQueue, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if postgresJobs == nil {
		return nil, ErrNoBackend
	}
	return postgresJobs(), nil
}
