package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/mock"
	"github.com/kozaktomas/face-search/internal/extractor"
)

// fakeExtractor returns fixed descriptors. A non-nil block channel holds extraction until closed.
type fakeExtractor struct {
	descriptors []extractor.Descriptor
	err         error
	block       chan struct{}
	started     chan struct{}
}

func (f *fakeExtractor) ExtractErr(ctx context.Context, data []byte) ([]extractor.Descriptor, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.descriptors, f.err
}

func (f *fakeExtractor) Method() string { return "test@1" }

func setup(ex FaceExtractor) (*Pipeline, *mock.MockImageStore, *mock.MockFaceStore) {
	images := mock.NewMockImageStore()
	images.AddImage(database.Image{ID: 1, Filename: "a.jpg"})
	faces := mock.NewMockFaceStore(images)
	return NewPipeline(ex, faces), images, faces
}

func TestIngest_Success(t *testing.T) {
	ex := &fakeExtractor{descriptors: []extractor.Descriptor{{1, 0}, {0, 1}, {0.6, 0.8}}}
	p, images, faces := setup(ex)

	out := p.Ingest(context.Background(), 1, []byte("img"))
	if out.Status != StatusSuccess || out.FaceCount != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Message() != "processed - 3 faces found" {
		t.Errorf("unexpected message %q", out.Message())
	}

	img, _ := images.Get(context.Background(), 1)
	if img.FaceCount != 3 {
		t.Errorf("expected face_count 3, got %d", img.FaceCount)
	}
	stored, _ := faces.GetByImage(context.Background(), 1)
	for i, f := range stored {
		if f.FaceIndex != i || f.Method != "test@1" || f.Dim != 2 {
			t.Errorf("unexpected face %d: %+v", i, f)
		}
	}
}

func TestIngest_NoFaces(t *testing.T) {
	p, images, _ := setup(&fakeExtractor{})
	images.AddImage(database.Image{ID: 1, Filename: "a.jpg", FaceCount: 2})

	out := p.Ingest(context.Background(), 1, []byte("img"))
	if out.Status != StatusNoFaces || out.Message() != "processed - no faces found" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	img, _ := images.Get(context.Background(), 1)
	if img.FaceCount != 0 {
		t.Errorf("expected face_count reset to 0, got %d", img.FaceCount)
	}
}

func TestIngest_ExtractionFailureIsNoFaces(t *testing.T) {
	p, _, _ := setup(&fakeExtractor{err: errors.New("decode image: unknown format")})

	out := p.Ingest(context.Background(), 1, []byte("garbage"))
	if out.Status != StatusNoFaces {
		t.Errorf("expected no_faces for extraction failure, got %+v", out)
	}
}

func TestIngest_PersistenceFailureLeavesCount(t *testing.T) {
	p, images, faces := setup(&fakeExtractor{descriptors: []extractor.Descriptor{{1, 0}}})
	images.AddImage(database.Image{ID: 1, Filename: "a.jpg", FaceCount: 4})
	faces.ReplaceError = errors.New("disk full")

	out := p.Ingest(context.Background(), 1, []byte("img"))
	if out.Status != StatusFailure {
		t.Fatalf("expected failure, got %+v", out)
	}
	if !strings.HasPrefix(out.Message(), "processing failed: disk full") {
		t.Errorf("unexpected message %q", out.Message())
	}
	img, _ := images.Get(context.Background(), 1)
	if img.FaceCount != 4 {
		t.Errorf("face_count must be unchanged, got %d", img.FaceCount)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	p, images, faces := setup(&fakeExtractor{descriptors: []extractor.Descriptor{{1, 0}, {0, 1}}})

	for range 3 {
		if out := p.Ingest(context.Background(), 1, []byte("img")); out.Status != StatusSuccess {
			t.Fatalf("unexpected outcome %+v", out)
		}
	}
	count, _ := faces.Count(context.Background())
	if count != 2 {
		t.Errorf("expected 2 faces after replays, got %d", count)
	}
	img, _ := images.Get(context.Background(), 1)
	if img.FaceCount != 2 {
		t.Errorf("expected face_count 2, got %d", img.FaceCount)
	}
}

func TestIngest_ConcurrentSameImageIsRejected(t *testing.T) {
	ex := &fakeExtractor{
		descriptors: []extractor.Descriptor{{1, 0}},
		block:       make(chan struct{}),
		started:     make(chan struct{}, 1),
	}
	p, _, faces := setup(ex)

	var wg sync.WaitGroup
	var first Outcome
	wg.Go(func() {
		first = p.Ingest(context.Background(), 1, []byte("img"))
	})

	select {
	case <-ex.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first ingestion never started")
	}
	if !p.InFlight(1) {
		t.Error("expected image 1 to be in flight")
	}

	second := p.Ingest(context.Background(), 1, []byte("img"))
	if second.Status != StatusFailure || !errors.Is(second.Err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %+v", second)
	}

	close(ex.block)
	wg.Wait()
	if first.Status != StatusSuccess {
		t.Errorf("first ingestion should succeed, got %+v", first)
	}
	if faces.ReplaceCalls != 1 {
		t.Errorf("expected one write, got %d", faces.ReplaceCalls)
	}
	if p.InFlight(1) {
		t.Error("lock should be released")
	}
}

func TestIngest_MissingImage(t *testing.T) {
	p, _, _ := setup(&fakeExtractor{descriptors: []extractor.Descriptor{{1, 0}}})

	out := p.Ingest(context.Background(), 99, []byte("img"))
	if out.Status != StatusFailure || !errors.Is(out.Err, database.ErrNotFound) {
		t.Errorf("expected not found failure, got %+v", out)
	}
}
