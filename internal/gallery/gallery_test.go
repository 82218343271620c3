package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/kozaktomas/face-search/internal/blob"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/mock"
	"github.com/kozaktomas/face-search/internal/extractor"
	"github.com/kozaktomas/face-search/internal/ingest"
	"github.com/kozaktomas/face-search/internal/search"
	"github.com/kozaktomas/face-search/internal/similarity"
)

// fakeExtractor maps exact image bytes to descriptors.
type fakeExtractor struct {
	faces map[string][]extractor.Descriptor
}

func (f *fakeExtractor) ExtractErr(ctx context.Context, data []byte) ([]extractor.Descriptor, error) {
	return f.faces[string(data)], nil
}

func (f *fakeExtractor) ExtractOne(ctx context.Context, data []byte) (extractor.Descriptor, bool) {
	d := f.faces[string(data)]
	if len(d) == 0 {
		return nil, false
	}
	return d[0], true
}

func (f *fakeExtractor) Method() string { return "test@1" }

// pngImage returns a small distinct PNG for each seed.
func pngImage(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for x := range 16 {
		for y := range 12 {
			img.Set(x, y, color.RGBA{seed, uint8(x * 8), uint8(y * 8), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc    *Service
	images *mock.MockImageStore
	faces  *mock.MockFaceStore
	ex     *fakeExtractor
}

func newFixture(t *testing.T, runner func(*ingest.Pipeline) ingest.Runner) *fixture {
	t.Helper()
	images := mock.NewMockImageStore()
	faces := mock.NewMockFaceStore(images)
	ex := &fakeExtractor{faces: map[string][]extractor.Descriptor{}}
	pipeline := ingest.NewPipeline(ex, faces)
	if runner == nil {
		runner = func(p *ingest.Pipeline) ingest.Runner { return ingest.NewInlineRunner(p) }
	}
	searcher := search.NewSearcher(faces, images, similarity.Cosine{}, ex.Method())
	svc := NewService(images, faces, blob.InlineStore{}, ex, searcher, runner(pipeline), Options{MaxImageSize: 1 << 20})
	return &fixture{svc: svc, images: images, faces: faces, ex: ex}
}

func TestUpload_TwoFaces(t *testing.T) {
	f := newFixture(t, nil)
	data := pngImage(t, 1)
	f.ex.faces[string(data)] = []extractor.Descriptor{{1, 0}, {0, 1}}

	res := f.svc.Upload(context.Background(), "group.png", data)
	if res.Error != "" {
		t.Fatalf("unexpected error %s", res.Error)
	}
	if res.Status != "processed - 2 faces found" || res.FaceCount == nil || *res.FaceCount != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	img, _ := f.images.Get(context.Background(), res.ID)
	if img.FaceCount != 2 || !blob.IsInline(img.Path) || !blob.IsInline(img.ThumbnailPath) {
		t.Errorf("unexpected record %+v", img)
	}
	stored, _ := f.faces.GetByImage(context.Background(), res.ID)
	if len(stored) != 2 || stored[0].FaceIndex != 0 || stored[1].FaceIndex != 1 {
		t.Errorf("unexpected faces %+v", stored)
	}
}

func TestUpload_NoFace(t *testing.T) {
	f := newFixture(t, nil)

	res := f.svc.Upload(context.Background(), "landscape.png", pngImage(t, 2))
	if res.Error != "" || res.Status != "processed - no faces found" || *res.FaceCount != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if n, _ := f.faces.Count(context.Background()); n != 0 {
		t.Errorf("expected no faces stored, got %d", n)
	}
}

func TestUpload_PerFileFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.opts.MaxImageSize = 64

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "empty file"},
		{"oversize", bytes.Repeat([]byte{1}, 65), "exceeds maximum size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.svc.Upload(context.Background(), "x.jpg", tt.data)
			if res.Status != "failed" || !strings.Contains(res.Error, tt.want) {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}

	f.svc.opts.MaxImageSize = 1 << 20
	res := f.svc.Upload(context.Background(), "x.jpg", []byte("not an image at all"))
	if res.Status != "failed" || res.Error != "invalid image" {
		t.Errorf("unexpected result %+v", res)
	}
	if n, _ := f.images.Count(context.Background()); n != 0 {
		t.Errorf("failed uploads must not create records, got %d", n)
	}
}

func TestUpload_PersistenceFailureReported(t *testing.T) {
	f := newFixture(t, nil)
	data := pngImage(t, 3)
	f.ex.faces[string(data)] = []extractor.Descriptor{{1, 0}}
	f.faces.ReplaceError = errors.New("serialization failure")

	res := f.svc.Upload(context.Background(), "a.png", data)
	if !strings.HasPrefix(res.Status, "processing failed: serialization failure") || res.FaceCount != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Error == "" {
		t.Errorf("inline ingestion failure must be reported as an error, got %+v", res)
	}
	if res.ID == 0 {
		t.Errorf("expected the image record to be kept, got %+v", res)
	}
}

func TestUpload_Deferred(t *testing.T) {
	q := mock.NewMockJobQueue()
	f := newFixture(t, func(*ingest.Pipeline) ingest.Runner { return ingest.NewDeferredRunner(q) })

	res := f.svc.Upload(context.Background(), "a.png", pngImage(t, 4))
	if res.Status != ingest.StatusProcessing || res.FaceCount != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if jobs := q.Jobs(); len(jobs) != 1 || jobs[0].ImageID != res.ID {
		t.Errorf("expected one job for image %d, got %+v", res.ID, jobs)
	}

	q.EnqueueError = errors.New("connection refused")
	res = f.svc.Upload(context.Background(), "b.png", pngImage(t, 5))
	if res.Status != "queue unavailable" || res.Error == "" {
		t.Errorf("expected queue failure to be reported, got %+v", res)
	}
	if n, _ := f.images.Count(context.Background()); n != 1 {
		t.Errorf("unqueued image must not stay listed, got %d images", n)
	}

	f.images.DeleteError = errors.New("connection reset")
	res = f.svc.Upload(context.Background(), "c.png", pngImage(t, 6))
	if res.Error == "" || res.ID == 0 {
		t.Errorf("expected failed result carrying the leftover id, got %+v", res)
	}
}

func TestSearch_NoFaceInQuery(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Search(context.Background(), pngImage(t, 9), 0.4); !errors.Is(err, extractor.ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestSearch_StrictIsSubsetOfLenient(t *testing.T) {
	f := newFixture(t, nil)
	seeds := map[uint8]extractor.Descriptor{10: {1, 0}, 11: {0.8, 0.6}, 12: {0, 1}}
	for seed, d := range seeds {
		data := pngImage(t, seed)
		f.ex.faces[string(data)] = []extractor.Descriptor{d}
		f.svc.Upload(context.Background(), "a.png", data)
	}
	query := pngImage(t, 99)
	f.ex.faces[string(query)] = []extractor.Descriptor{{1, 0}}

	strict, err := f.svc.Search(context.Background(), query, 0.1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	lenient, err := f.svc.Search(context.Background(), query, 1.0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(strict) != 1 || len(lenient) != 3 {
		t.Errorf("expected 1 strict and 3 lenient results, got %d and %d", len(strict), len(lenient))
	}
	in := map[int64]bool{}
	for _, v := range lenient {
		in[v.ID] = true
	}
	for _, v := range strict {
		if !in[v.ID] {
			t.Errorf("strict result %d missing from lenient results", v.ID)
		}
	}
}

func TestSearch_MultiFaceImageAppearsOnce(t *testing.T) {
	f := newFixture(t, nil)
	group := pngImage(t, 20)
	f.ex.faces[string(group)] = []extractor.Descriptor{{0.6, 0.8}, {1, 0}}
	solo := pngImage(t, 21)
	f.ex.faces[string(solo)] = []extractor.Descriptor{{0.8, 0.6}}
	groupRes := f.svc.Upload(context.Background(), "group.png", group)
	soloRes := f.svc.Upload(context.Background(), "solo.png", solo)

	query := pngImage(t, 22)
	f.ex.faces[string(query)] = []extractor.Descriptor{{1, 0}}
	views, err := f.svc.Search(context.Background(), query, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(views) != 2 || views[0].ID != groupRes.ID || views[1].ID != soloRes.ID {
		t.Fatalf("expected [group solo], got %+v", views)
	}
	if views[0].URL == "" || views[0].ThumbnailURL == "" || *views[0].Distance > 1e-6 {
		t.Errorf("unexpected view %+v", views[0])
	}
}

func TestSearch_InvalidTolerance(t *testing.T) {
	f := newFixture(t, nil)
	query := pngImage(t, 30)
	f.ex.faces[string(query)] = []extractor.Descriptor{{1, 0}}
	if _, err := f.svc.Search(context.Background(), query, 2); !errors.Is(err, search.ErrInvalidTolerance) {
		t.Errorf("expected ErrInvalidTolerance, got %v", err)
	}
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.Upload(context.Background(), "a.png", pngImage(t, 40))
	f.svc.Upload(context.Background(), "b.png", pngImage(t, 41))

	page, err := f.svc.List(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Images) != 1 || page.Total != 2 || page.Images[0].Filename != "a.png" {
		t.Errorf("unexpected page %+v", page)
	}

	for _, bad := range [][2]int{{-1, 10}, {0, 0}, {0, 101}} {
		if _, err := f.svc.List(context.Background(), bad[0], bad[1]); !errors.Is(err, ErrInvalidPage) {
			t.Errorf("skip=%d limit=%d: expected ErrInvalidPage, got %v", bad[0], bad[1], err)
		}
	}
}

func TestStatsAndDebug(t *testing.T) {
	f := newFixture(t, nil)
	withFace := pngImage(t, 50)
	f.ex.faces[string(withFace)] = []extractor.Descriptor{{1, 0}, {0, 1}}
	f.svc.Upload(context.Background(), "a.png", withFace)
	f.svc.Upload(context.Background(), "b.png", pngImage(t, 51))

	stats, err := f.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := database.Stats{TotalImages: 2, TotalFaces: 2, ImagesWithFaces: 1}
	if *stats != want {
		t.Errorf("expected %+v, got %+v", want, *stats)
	}

	info, err := f.svc.Debug(context.Background())
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	if len(info.RecentImages) != 2 || info.TotalFaceVectors != 2 || len(info.SampleFaces) != 2 {
		t.Errorf("unexpected debug info %+v", info)
	}
	if info.SampleFaces[0].EncodingLength != 2 || info.IngestMode != "inline" || info.Metric != "cosine" {
		t.Errorf("unexpected debug details %+v", info)
	}
}
