package search

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/mock"
	"github.com/kozaktomas/face-search/internal/similarity"
)

const method = "test@1"

func newStores(imageIDs ...int64) (*mock.MockImageStore, *mock.MockFaceStore) {
	images := mock.NewMockImageStore()
	for _, id := range imageIDs {
		images.AddImage(database.Image{ID: id, Filename: "img.jpg"})
	}
	return images, mock.NewMockFaceStore(images)
}

func face(imageID int64, index int, d ...float32) database.StoredFace {
	return database.StoredFace{ImageID: imageID, FaceIndex: index, Descriptor: d, Method: method, Dim: len(d)}
}

func imageIDs(r *Result) []int64 {
	ids := make([]int64, len(r.Images))
	for i, img := range r.Images {
		ids[i] = img.ID
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch_RanksByDistance(t *testing.T) {
	images, faces := newStores(1, 2, 3)
	faces.AddFaces(
		face(1, 0, 0.8, 0.6), // distance 0.2
		face(2, 0, 1, 0),     // distance 0
		face(3, 0, 0, 1),     // distance 1
	)

	s := NewSearcher(faces, images, similarity.Cosine{}, method)
	res, err := s.Search(context.Background(), []float32{1, 0}, 0.4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := imageIDs(res); !equalIDs(got, []int64{2, 1}) {
		t.Errorf("expected [2 1], got %v", got)
	}
	if res.Total != 2 {
		t.Errorf("expected total 2, got %d", res.Total)
	}
	if res.Matches[0].Distance > 1e-9 {
		t.Errorf("expected exact match first, got %v", res.Matches[0].Distance)
	}
}

func TestSearch_DedupesByBestFace(t *testing.T) {
	images, faces := newStores(1, 2)
	faces.AddFaces(
		face(1, 0, 0.6, 0.8), // 0.4
		face(2, 0, 0.8, 0.6), // 0.2
		face(1, 1, 1, 0),     // 0
	)

	s := NewSearcher(faces, images, similarity.Cosine{}, method)
	res, err := s.Search(context.Background(), []float32{1, 0}, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := imageIDs(res); !equalIDs(got, []int64{1, 2}) {
		t.Errorf("expected [1 2], got %v", got)
	}
	if res.Matches[0].FaceIndex != 1 {
		t.Errorf("expected best face index 1, got %d", res.Matches[0].FaceIndex)
	}
}

func TestSearch_TiesKeepScanOrder(t *testing.T) {
	images, faces := newStores(5, 3, 9)
	faces.AddFaces(face(9, 0, 1, 0), face(3, 0, 2, 0), face(5, 0, 3, 0))

	s := NewSearcher(faces, images, similarity.Cosine{}, method)
	res, err := s.Search(context.Background(), []float32{1, 0}, 0.1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := imageIDs(res); !equalIDs(got, []int64{9, 3, 5}) {
		t.Errorf("expected scan order [9 3 5], got %v", got)
	}
}

func TestSearch_DropsOrphans(t *testing.T) {
	images, faces := newStores(1, 2)
	faces.AddFaces(face(1, 0, 1, 0), face(2, 0, 1, 0))
	_ = images.Delete(context.Background(), 1)

	s := NewSearcher(faces, images, similarity.Cosine{}, method)
	res, err := s.Search(context.Background(), []float32{1, 0}, 0.4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := imageIDs(res); !equalIDs(got, []int64{2}) || res.Total != 1 {
		t.Errorf("expected only image 2, got %v (total %d)", got, res.Total)
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	images, faces := newStores()
	s := NewSearcher(faces, images, similarity.Cosine{}, method)

	res, err := s.Search(context.Background(), []float32{1, 0}, 0.4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 0 || len(res.Images) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestSearch_ToleranceMonotonic(t *testing.T) {
	images, faces := newStores(1, 2, 3, 4)
	faces.AddFaces(face(1, 0, 1, 0), face(2, 0, 0.8, 0.6), face(3, 0, 0.6, 0.8), face(4, 0, 0, 1))
	s := NewSearcher(faces, images, similarity.Cosine{}, method)

	prev := map[int64]bool{}
	for _, tol := range []float64{0.1, 0.25, 0.5, 1.0} {
		res, err := s.Search(context.Background(), []float32{1, 0}, tol)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		cur := map[int64]bool{}
		for _, id := range imageIDs(res) {
			cur[id] = true
		}
		for id := range prev {
			if !cur[id] {
				t.Errorf("image %d lost when tolerance grew to %v", id, tol)
			}
		}
		prev = cur
	}
	if len(prev) != 4 {
		t.Errorf("expected all images at tolerance 1.0, got %d", len(prev))
	}
}

func TestSearch_InvalidTolerance(t *testing.T) {
	images, faces := newStores()
	s := NewSearcher(faces, images, similarity.Cosine{}, method)

	for _, tol := range []float64{0, 0.05, 1.5} {
		if _, err := s.Search(context.Background(), []float32{1}, tol); !errors.Is(err, ErrInvalidTolerance) {
			t.Errorf("tolerance %v: expected ErrInvalidTolerance, got %v", tol, err)
		}
	}
}

func TestSearch_SkipsOtherMethods(t *testing.T) {
	images, faces := newStores(1, 2)
	other := face(2, 0, 1, 0)
	other.Method = "legacy@0"
	faces.AddFaces(face(1, 0, 1, 0), other)

	s := NewSearcher(faces, images, similarity.Cosine{}, method)
	res, err := s.Search(context.Background(), []float32{1, 0}, 0.4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := imageIDs(res); !equalIDs(got, []int64{1}) || res.Skipped != 1 {
		t.Errorf("expected [1] with 1 skipped, got %v (skipped %d)", got, res.Skipped)
	}
}

func TestSearch_StoreErrorsAbort(t *testing.T) {
	images, faces := newStores(1)
	faces.AddFaces(face(1, 0, 1, 0))
	s := NewSearcher(faces, images, similarity.Cosine{}, method)

	faces.GetAllError = errors.New("connection reset")
	if _, err := s.Search(context.Background(), []float32{1, 0}, 0.4); err == nil {
		t.Error("expected scan error to propagate")
	}

	faces.GetAllError = nil
	images.GetByIDsError = errors.New("connection reset")
	if _, err := s.Search(context.Background(), []float32{1, 0}, 0.4); err == nil {
		t.Error("expected fetch error to propagate")
	}
}

func TestSearch_ZeroQueryMatchesOnlyAtFullTolerance(t *testing.T) {
	images, faces := newStores(1)
	faces.AddFaces(face(1, 0, 1, 0))
	s := NewSearcher(faces, images, similarity.Cosine{}, method)

	res, _ := s.Search(context.Background(), []float32{0, 0}, 0.9)
	if res.Total != 0 {
		t.Errorf("zero query should not match below tolerance 1, got %d", res.Total)
	}
	res, _ = s.Search(context.Background(), []float32{0, 0}, 1.0)
	if res.Total != 1 {
		t.Errorf("zero query should match at tolerance 1, got %d", res.Total)
	}
}
