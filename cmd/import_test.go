package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-search/internal/blob"
	"github.com/kozaktomas/face-search/internal/database/mock"
	"github.com/kozaktomas/face-search/internal/extractor"
	"github.com/kozaktomas/face-search/internal/gallery"
	"github.com/kozaktomas/face-search/internal/ingest"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/similarity"
)

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "notes.txt", "c.webp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o700); err != nil {
		t.Fatal(err)
	}

	files, err := listImageFiles(dir)
	if err != nil {
		t.Fatalf("listImageFiles failed: %v", err)
	}
	want := []string{"a.png", "b.JPG", "c.webp"}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i, name := range want {
		if filepath.Base(files[i]) != name {
			t.Errorf("file %d: expected %s, got %s", i, name, files[i])
		}
	}

	if _, err := listImageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestImportSummary(t *testing.T) {
	two, zero := 2, 0
	var s importSummary
	s.add(gallery.UploadResult{Filename: "a.jpg", FaceCount: &two})
	s.add(gallery.UploadResult{Filename: "b.jpg", FaceCount: &zero})
	s.add(gallery.UploadResult{Filename: "c.jpg", Status: "processing"})
	s.add(gallery.UploadResult{Filename: "d.jpg", Status: "failed", Error: "invalid image"})

	if s.Uploaded != 3 || s.Faces != 2 || s.NoFaces != 1 || s.Queued != 1 || len(s.Failed) != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

type oneFaceExtractor struct{}

func (oneFaceExtractor) ExtractErr(ctx context.Context, data []byte) ([]extractor.Descriptor, error) {
	return []extractor.Descriptor{{1, 0}}, nil
}

func (oneFaceExtractor) ExtractOne(ctx context.Context, data []byte) (extractor.Descriptor, bool) {
	return extractor.Descriptor{1, 0}, true
}

func (oneFaceExtractor) Method() string { return "test@1" }

func TestImportSummary_InlinePersistenceFailure(t *testing.T) {
	images := mock.NewMockImageStore()
	faces := mock.NewMockFaceStore(images)
	faces.ReplaceError = errors.New("db down")
	ex := oneFaceExtractor{}
	runner := ingest.NewInlineRunner(ingest.NewPipeline(ex, faces))
	searcher := search.NewSearcher(faces, images, similarity.Cosine{}, ex.Method())
	svc := gallery.NewService(images, faces, blob.InlineStore{}, ex, searcher, runner, gallery.Options{})

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	var s importSummary
	s.add(svc.Upload(context.Background(), "a.png", buf.Bytes()))

	if s.Uploaded != 0 || s.Queued != 0 || len(s.Failed) != 1 {
		t.Errorf("expected the upload to count as failed, got %+v", s)
	}
}
