// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
)

// MockImageStore is an in-memory database.ImageWriter
type MockImageStore struct {
	mu     sync.RWMutex
	images map[int64]*database.Image
	nextID int64

	// Error injection
	CreateError   error
	GetError      error
	GetByIDsError error
	ListError     error
	CountError    error
	StatsError    error
	DeleteError   error
}

// NewMockImageStore creates an empty image store
func NewMockImageStore() *MockImageStore {
	return &MockImageStore{images: make(map[int64]*database.Image), nextID: 1}
}

// AddImage inserts an image with an explicit id
func (m *MockImageStore) AddImage(img database.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.ID] = &img
	if img.ID >= m.nextID {
		m.nextID = img.ID + 1
	}
}

// Delete removes an image, leaving its faces orphaned
func (m *MockImageStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, id)
	return nil
}

func (m *MockImageStore) Create(ctx context.Context, img *database.Image) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	img.ID = m.nextID
	img.FaceCount = 0
	img.CreatedAt = time.Now()
	m.nextID++
	stored := *img
	m.images[img.ID] = &stored
	return nil
}

func (m *MockImageStore) Get(ctx context.Context, id int64) (*database.Image, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *img
	return &out, nil
}

func (m *MockImageStore) GetByIDs(ctx context.Context, ids []int64) (map[int64]database.Image, error) {
	if m.GetByIDsError != nil {
		return nil, m.GetByIDsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]database.Image, len(ids))
	for _, id := range ids {
		if img, ok := m.images[id]; ok {
			out[id] = *img
		}
	}
	return out, nil
}

func (m *MockImageStore) sorted() []database.Image {
	out := make([]database.Image, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, *img)
	}
	slices.SortFunc(out, func(a, b database.Image) int { return int(a.ID - b.ID) })
	return out
}

func (m *MockImageStore) List(ctx context.Context, skip, limit int) ([]database.Image, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sorted()
	if skip >= len(all) {
		return nil, nil
	}
	end := min(skip+limit, len(all))
	return all[skip:end], nil
}

func (m *MockImageStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images), nil
}

// Stats derives totals from the face_count of each image.
func (m *MockImageStore) Stats(ctx context.Context) (*database.Stats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := &database.Stats{TotalImages: len(m.images)}
	for _, img := range m.images {
		s.TotalFaces += img.FaceCount
		if img.FaceCount > 0 {
			s.ImagesWithFaces++
		}
	}
	return s, nil
}

func (m *MockImageStore) Recent(ctx context.Context, n int) ([]database.Image, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sorted()
	slices.Reverse(all)
	return all[:min(n, len(all))], nil
}

func (m *MockImageStore) setFaceCount(id int64, n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if ok {
		img.FaceCount = n
	}
	return ok
}

// MockFaceStore is an in-memory database.FaceWriter linked to an image store
type MockFaceStore struct {
	mu     sync.RWMutex
	faces  []database.StoredFace
	nextID int64
	images *MockImageStore

	// Error injection
	GetAllError  error
	ReplaceError error
	CountError   error

	// ReplaceCalls counts ReplaceFaces invocations
	ReplaceCalls int
}

// NewMockFaceStore creates a face store whose writes update face_count in images.
func NewMockFaceStore(images *MockImageStore) *MockFaceStore {
	return &MockFaceStore{images: images, nextID: 1}
}

// AddFaces appends faces in scan order without touching face_count
func (m *MockFaceStore) AddFaces(faces ...database.StoredFace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range faces {
		f.ID = m.nextID
		m.nextID++
		m.faces = append(m.faces, f)
	}
}

func (m *MockFaceStore) GetAll(ctx context.Context) ([]database.StoredFace, error) {
	if m.GetAllError != nil {
		return nil, m.GetAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.faces), nil
}

func (m *MockFaceStore) GetByImage(ctx context.Context, imageID int64) ([]database.StoredFace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredFace
	for _, f := range m.faces {
		if f.ImageID == imageID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MockFaceStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

func (m *MockFaceStore) Sample(ctx context.Context, n int) ([]database.StoredFace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.faces[:min(n, len(m.faces))]), nil
}

// ReplaceFaces mirrors the transactional semantics of the PostgreSQL repository.
func (m *MockFaceStore) ReplaceFaces(ctx context.Context, imageID int64, faces []database.StoredFace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplaceCalls++
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	if m.images != nil {
		if _, err := m.images.Get(ctx, imageID); err != nil {
			return err
		}
	}

	seen := make(map[int]bool, len(faces))
	for _, f := range faces {
		if seen[f.FaceIndex] {
			return fmt.Errorf("duplicate face index %d for image %d", f.FaceIndex, imageID)
		}
		seen[f.FaceIndex] = true
	}

	kept := m.faces[:0:0]
	for _, f := range m.faces {
		if f.ImageID != imageID {
			kept = append(kept, f)
		}
	}
	for _, f := range faces {
		f.ID = m.nextID
		f.ImageID = imageID
		f.CreatedAt = time.Now()
		m.nextID++
		kept = append(kept, f)
	}
	m.faces = kept

	if m.images != nil {
		m.images.setFaceCount(imageID, len(faces))
	}
	return nil
}

// MockJobQueue is an in-memory database.JobQueue
type MockJobQueue struct {
	mu     sync.Mutex
	jobs   []*database.Job
	nextID int
	wake   chan struct{}

	// Error injection
	EnqueueError error
	ClaimError   error

	// Failures records Fail calls by job id
	Failures map[string]string
}

// NewMockJobQueue creates an empty queue
func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{wake: make(chan struct{}, 1), Failures: make(map[string]string)}
}

func (m *MockJobQueue) Enqueue(ctx context.Context, imageID int64, payload []byte) (string, error) {
	if m.EnqueueError != nil {
		return "", m.EnqueueError
	}
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("job-%d", m.nextID)
	m.jobs = append(m.jobs, &database.Job{
		ID: id, ImageID: imageID, Payload: payload, Status: database.JobPending, CreatedAt: time.Now(),
	})
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return id, nil
}

func (m *MockJobQueue) Claim(ctx context.Context) (*database.Job, error) {
	if m.ClaimError != nil {
		return nil, m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == database.JobPending {
			j.Status = database.JobRunning
			j.Attempts++
			out := *j
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MockJobQueue) Complete(ctx context.Context, id string) error {
	return m.setStatus(id, database.JobDone, "")
}

func (m *MockJobQueue) Fail(ctx context.Context, id string, reason string, retry bool) error {
	m.mu.Lock()
	m.Failures[id] = reason
	m.mu.Unlock()
	if retry {
		return m.setStatus(id, database.JobPending, reason)
	}
	return m.setStatus(id, database.JobFailed, reason)
}

func (m *MockJobQueue) setStatus(id, status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			j.Status = status
			j.LastError = reason
			return nil
		}
	}
	return fmt.Errorf("job %s not found", id)
}

func (m *MockJobQueue) Wait(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-m.wake:
	}
}

// Jobs returns a snapshot of all jobs
func (m *MockJobQueue) Jobs() []database.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out
}
